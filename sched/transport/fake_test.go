package transport

import (
	"errors"
	"sync"
	"time"
)

// fakeSocket is an in-memory ReplySocket and SubscriberSocket.
type fakeSocket struct {
	mu       sync.Mutex
	inbox    [][]string
	sent     [][]string
	resets   int
	sendErrs int // number of upcoming SendMessage calls that fail
	pollErr  error
	recvErr  error
	closed   bool
}

func (f *fakeSocket) push(frames []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, frames)
}

func (f *fakeSocket) Poll(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	if f.pollErr != nil {
		err := f.pollErr
		f.pollErr = nil
		f.mu.Unlock()
		return false, err
	}
	ready := len(f.inbox) > 0
	f.mu.Unlock()
	if !ready {
		time.Sleep(timeout)
	}
	return ready, nil
}

func (f *fakeSocket) RecvMessage() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	if len(f.inbox) == 0 {
		return nil, errors.New("nothing to receive")
	}
	msg := f.inbox[0]
	f.inbox = f.inbox[1:]
	return msg, nil
}

func (f *fakeSocket) SendMessage(frames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErrs > 0 {
		f.sendErrs--
		return errors.New("send failed")
	}
	f.sent = append(f.sent, frames)
	return nil
}

func (f *fakeSocket) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) sentMessages() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.sent...)
}

func (f *fakeSocket) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// countingInstrumentation tallies outcomes per channel.
type countingInstrumentation struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingInstrumentation) ObserveMessage(channel, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[channel+"/"+outcome]++
}

func (c *countingInstrumentation) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollTimeout = time.Millisecond
	cfg.ReconnectDelay = time.Millisecond
	cfg.MaxReconnectDelay = 4 * time.Millisecond
	return cfg
}
