// Package transport moves scheduling requests and completion telemetry between
// MPQUIC peers and the coordinator.
//
// Two channels are provided:
//   - DecisionTransport: request/reply. One request in flight, handed to the
//     coordinator through a sched.Exchange.
//   - TelemetryChannel: publish/subscribe. Completion records accumulate in a
//     queue until the coordinator drains them at a run boundary.
//
// Both are written against small socket interfaces so they can be driven by
// in-memory fakes in tests. ZeroMQ implementations live in zmq.go and are only
// compiled with -tags=zmq.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrZMQUnavailable is returned by the socket constructors when the binary was
// built without ZeroMQ support.
var ErrZMQUnavailable = errors.New("ZMQ support not compiled in (build with -tags=zmq)")

// Channel names used in logs and instrumentation.
const (
	ChannelDecision  = "decision"
	ChannelTelemetry = "telemetry"
)

// Message outcomes reported to Instrumentation.
const (
	OutcomeAccepted    = "accepted"
	OutcomeMalformed   = "malformed"
	OutcomeUnknownPath = "unknown_path"
	OutcomeSent        = "sent"
	OutcomeSendError   = "send_error"
	OutcomeRecvError   = "recv_error"
	OutcomeReconnect   = "reconnect"
)

const (
	DefaultPollTimeout       = 50 * time.Millisecond
	DefaultReconnectInterval = 10 * time.Millisecond
	MaxReconnectInterval     = 2 * time.Second
	ReconnectBackoffFactor   = 2.0
	DefaultSendRetries       = 3
)

// ReplySocket is the replying end of a request/reply channel.
// A reply socket alternates strictly between RecvMessage and SendMessage;
// Reset abandons the current request and restores the receive state.
type ReplySocket interface {
	Poll(timeout time.Duration) (bool, error)
	RecvMessage() ([]string, error)
	SendMessage(frames []string) error
	Reset() error
	Close() error
}

// SubscriberSocket is the receiving end of a publish/subscribe channel.
type SubscriberSocket interface {
	Poll(timeout time.Duration) (bool, error)
	RecvMessage() ([]string, error)
	Reset() error
	Close() error
}

// Instrumentation receives per-message outcomes. Implemented by metrics.Recorder.
type Instrumentation interface {
	ObserveMessage(channel, outcome string)
}

// NopInstrumentation discards all observations.
type NopInstrumentation struct{}

func (NopInstrumentation) ObserveMessage(string, string) {}

// Config holds endpoint and retry settings shared by both channels.
type Config struct {
	DecisionEndpoint  string        `yaml:"decision_endpoint"`
	TelemetryEndpoint string        `yaml:"telemetry_endpoint"`
	PollTimeout       time.Duration `yaml:"poll_timeout"`
	SendRetries       int           `yaml:"send_retries"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
}

// DefaultConfig returns the endpoints used by the reference testbed.
func DefaultConfig() Config {
	return Config{
		DecisionEndpoint:  "tcp://localhost:5555",
		TelemetryEndpoint: "tcp://localhost:5556",
		PollTimeout:       DefaultPollTimeout,
		SendRetries:       DefaultSendRetries,
		ReconnectDelay:    DefaultReconnectInterval,
		MaxReconnectDelay: MaxReconnectInterval,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.DecisionEndpoint == "" {
		return fmt.Errorf("decision_endpoint is required")
	}
	if c.TelemetryEndpoint == "" {
		return fmt.Errorf("telemetry_endpoint is required")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive, got %v", c.PollTimeout)
	}
	if c.SendRetries < 1 {
		return fmt.Errorf("send_retries must be >= 1, got %d", c.SendRetries)
	}
	if c.ReconnectDelay <= 0 || c.MaxReconnectDelay < c.ReconnectDelay {
		return fmt.Errorf("reconnect delays must satisfy 0 < reconnect_delay <= max_reconnect_delay, got %v and %v",
			c.ReconnectDelay, c.MaxReconnectDelay)
	}
	return nil
}
