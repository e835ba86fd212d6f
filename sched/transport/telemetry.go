package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mpquic-rl/pathsched/sched"
)

// TelemetryChannel receives stream-completion records and queues them until the
// next drain. It implements sched.TelemetrySource.
//
// The queue is the only state shared with the coordinator; Poll and Run append,
// DrainAndClear empties it atomically.
type TelemetryChannel struct {
	socket  SubscriberSocket
	cfg     Config
	inst    Instrumentation
	backoff *Backoff

	mu    sync.Mutex
	queue []sched.StreamCompletionRecord
}

// NewTelemetryChannel wraps socket. inst may be nil.
func NewTelemetryChannel(socket SubscriberSocket, cfg Config, inst Instrumentation) *TelemetryChannel {
	if inst == nil {
		inst = NopInstrumentation{}
	}
	return &TelemetryChannel{
		socket:  socket,
		cfg:     cfg,
		inst:    inst,
		backoff: NewBackoff(cfg.ReconnectDelay, cfg.MaxReconnectDelay),
	}
}

// Poll waits up to PollTimeout for one message and queues it if valid.
// Returns true when a record was queued. Malformed messages are logged and dropped.
func (c *TelemetryChannel) Poll() (bool, error) {
	ready, err := c.socket.Poll(c.cfg.PollTimeout)
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	if !ready {
		return false, nil
	}
	frames, err := c.socket.RecvMessage()
	if err != nil {
		c.inst.ObserveMessage(ChannelTelemetry, OutcomeRecvError)
		return false, fmt.Errorf("recv: %w", err)
	}
	rec, err := sched.DecodeCompletionRecord(frames)
	if err != nil {
		c.inst.ObserveMessage(ChannelTelemetry, OutcomeMalformed)
		logrus.Warnf("Dropping telemetry message: %v", err)
		return false, nil
	}
	c.mu.Lock()
	c.queue = append(c.queue, rec)
	c.mu.Unlock()
	c.inst.ObserveMessage(ChannelTelemetry, OutcomeAccepted)
	logrus.Debugf("Telemetry: stream %s (%s) completed in %.4f", rec.StreamID, rec.RequestPath, rec.CompletionTime)
	return true, nil
}

// Run polls until ctx is cancelled. Socket failures trigger a reset with backoff.
func (c *TelemetryChannel) Run(ctx context.Context) error {
	logrus.Infof("Telemetry channel subscribed to %s", c.cfg.TelemetryEndpoint)
	for ctx.Err() == nil {
		if _, err := c.Poll(); err != nil {
			logrus.Warnf("Telemetry channel: %v", err)
			if !c.backoff.Wait(ctx) {
				break
			}
			c.inst.ObserveMessage(ChannelTelemetry, OutcomeReconnect)
			if err := c.socket.Reset(); err != nil {
				logrus.Errorf("Telemetry channel reset failed: %v", err)
			}
			continue
		}
		c.backoff.Reset()
	}
	return nil
}

// DrainAndClear returns every queued record in arrival order and empties the queue.
func (c *TelemetryChannel) DrainAndClear() []sched.StreamCompletionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// Len returns the number of queued records.
func (c *TelemetryChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
