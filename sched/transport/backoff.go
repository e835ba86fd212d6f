package transport

import (
	"context"
	"time"
)

// Backoff yields exponentially growing delays between reconnect attempts.
//
// Thread-safety: NOT thread-safe. Each listener loop owns one.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{initial: initial, max: max, current: initial}
}

// Next returns the delay to wait now and grows the following one.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current = time.Duration(float64(b.current) * ReconnectBackoffFactor)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset restores the initial delay after a success.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Wait sleeps for the next delay. Returns false if ctx ended first.
func (b *Backoff) Wait(ctx context.Context) bool {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
