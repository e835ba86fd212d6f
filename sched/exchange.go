package sched

import (
	"context"
	"sync/atomic"
	"time"
)

// Exchange is the pair of single-slot rendezvous points between the decision
// transport and the coordinator.
//
//	transport                      coordinator
//	Submit(req) ──requests──────▶ Next()
//	            ◀──accepted─────── (ack on receipt)
//	AwaitResponse() ◀─responses── Respond(resp)
//	ConfirmDelivery() ─delivered─▶ (Respond returns)
//
// The transport may not poll for a new request until Submit returns, and the
// coordinator may not move on until the response is on the wire, so at most one
// request is ever in flight.
type Exchange struct {
	requests  chan SchedulingRequest
	accepted  chan struct{}
	responses chan SchedulingResponse
	delivered chan error

	inFlight atomic.Int32
}

// NewExchange creates an Exchange with capacity-1 slots.
func NewExchange() *Exchange {
	return &Exchange{
		requests:  make(chan SchedulingRequest, 1),
		accepted:  make(chan struct{}),
		responses: make(chan SchedulingResponse, 1),
		delivered: make(chan error),
	}
}

// Submit hands req to the coordinator and blocks until it has been accepted.
// Transport side.
func (e *Exchange) Submit(ctx context.Context, req SchedulingRequest) error {
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-e.accepted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitResponse blocks until the coordinator publishes the response for the
// request most recently submitted. Transport side.
func (e *Exchange) AwaitResponse(ctx context.Context) (SchedulingResponse, error) {
	select {
	case resp := <-e.responses:
		return resp, nil
	case <-ctx.Done():
		return SchedulingResponse{}, ctx.Err()
	}
}

// ConfirmDelivery reports the wire outcome of the last response and releases
// the coordinator. Transport side.
func (e *Exchange) ConfirmDelivery(ctx context.Context, sendErr error) error {
	select {
	case e.delivered <- sendErr:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next takes the pending request, if any, and acknowledges acceptance.
// wait <= 0 polls without blocking. ok is false when no request arrived in time.
// Coordinator side.
func (e *Exchange) Next(ctx context.Context, wait time.Duration) (req SchedulingRequest, ok bool, err error) {
	if wait <= 0 {
		select {
		case req = <-e.requests:
		case <-ctx.Done():
			return SchedulingRequest{}, false, ctx.Err()
		default:
			return SchedulingRequest{}, false, nil
		}
	} else {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case req = <-e.requests:
		case <-timer.C:
			return SchedulingRequest{}, false, nil
		case <-ctx.Done():
			return SchedulingRequest{}, false, ctx.Err()
		}
	}
	e.inFlight.Add(1)
	select {
	case e.accepted <- struct{}{}:
		return req, true, nil
	case <-ctx.Done():
		e.inFlight.Add(-1)
		return SchedulingRequest{}, false, ctx.Err()
	}
}

// Respond publishes resp and blocks until the transport confirms delivery.
// Returns the transport's send error, if any. Coordinator side.
func (e *Exchange) Respond(ctx context.Context, resp SchedulingResponse) error {
	defer e.inFlight.Add(-1)
	select {
	case e.responses <- resp:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-e.delivered:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of accepted requests still awaiting delivery (0 or 1).
func (e *Exchange) InFlight() int {
	return int(e.inFlight.Load())
}
