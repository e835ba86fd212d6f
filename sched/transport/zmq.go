//go:build zmq

package transport

import (
	"fmt"
	"sync"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"
)

// zmqSocket owns one ZeroMQ socket and the poller bound to it.
// The peer binds; this side always connects.
type zmqSocket struct {
	kind     zmq.Type
	endpoint string

	mu     sync.Mutex
	socket *zmq.Socket
	poller *zmq.Poller
}

func newZMQSocket(kind zmq.Type, endpoint string) (*zmqSocket, error) {
	s := &zmqSocket{kind: kind, endpoint: endpoint}
	if err := s.connectLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *zmqSocket) connectLocked() error {
	socket, err := zmq.NewSocket(s.kind)
	if err != nil {
		return fmt.Errorf("failed to create %v socket: %w", s.kind, err)
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return fmt.Errorf("failed to set linger: %w", err)
	}
	if err := socket.SetIpv6(true); err != nil {
		_ = socket.Close()
		return fmt.Errorf("failed to enable IPv6: %w", err)
	}
	if err := socket.Connect(s.endpoint); err != nil {
		_ = socket.Close()
		return fmt.Errorf("failed to connect to %s: %w", s.endpoint, err)
	}
	if s.kind == zmq.SUB {
		if err := socket.SetSubscribe(""); err != nil {
			_ = socket.Close()
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}
	poller := zmq.NewPoller()
	poller.Add(socket, zmq.POLLIN)
	s.socket = socket
	s.poller = poller
	return nil
}

func (s *zmqSocket) Poll(timeout time.Duration) (bool, error) {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller == nil {
		return false, fmt.Errorf("socket %s is closed", s.endpoint)
	}
	polled, err := poller.Poll(timeout)
	if err != nil {
		return false, err
	}
	return len(polled) > 0, nil
}

func (s *zmqSocket) RecvMessage() ([]string, error) {
	s.mu.Lock()
	socket := s.socket
	s.mu.Unlock()
	if socket == nil {
		return nil, fmt.Errorf("socket %s is closed", s.endpoint)
	}
	return socket.RecvMessage(0)
}

func (s *zmqSocket) SendMessage(frames []string) error {
	s.mu.Lock()
	socket := s.socket
	s.mu.Unlock()
	if socket == nil {
		return fmt.Errorf("socket %s is closed", s.endpoint)
	}
	parts := make([]interface{}, len(frames))
	for i, f := range frames {
		parts[i] = f
	}
	_, err := socket.SendMessage(parts...)
	return err
}

// Reset closes the socket and connects a fresh one.
func (s *zmqSocket) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	logrus.Debugf("Reconnecting %v socket to %s", s.kind, s.endpoint)
	return s.connectLocked()
}

func (s *zmqSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *zmqSocket) closeLocked() error {
	if s.socket == nil {
		return nil
	}
	err := s.socket.Close()
	s.socket = nil
	s.poller = nil
	return err
}

// NewZMQReplySocket connects a REP socket to endpoint.
func NewZMQReplySocket(endpoint string) (ReplySocket, error) {
	return newZMQSocket(zmq.REP, endpoint)
}

// NewZMQSubscriberSocket connects a SUB socket to endpoint, subscribed to every topic.
func NewZMQSubscriberSocket(endpoint string) (SubscriberSocket, error) {
	return newZMQSocket(zmq.SUB, endpoint)
}
