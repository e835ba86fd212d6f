package transport

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mpquic-rl/pathsched/sched"
)

// DecisionTransport serves scheduling requests over a reply socket.
// It holds at most one request at a time: a new request is not polled until the
// previous response has been written (or the request dropped).
type DecisionTransport struct {
	socket  ReplySocket
	paths   sched.PathSet
	cfg     Config
	inst    Instrumentation
	backoff *Backoff
}

// NewDecisionTransport wraps socket. Requests whose path IDs are not in paths are dropped.
// inst may be nil.
func NewDecisionTransport(socket ReplySocket, paths sched.PathSet, cfg Config, inst Instrumentation) *DecisionTransport {
	if inst == nil {
		inst = NopInstrumentation{}
	}
	return &DecisionTransport{
		socket:  socket,
		paths:   paths,
		cfg:     cfg,
		inst:    inst,
		backoff: NewBackoff(cfg.ReconnectDelay, cfg.MaxReconnectDelay),
	}
}

// ReceiveRequest waits up to PollTimeout for one request.
// ok is false on timeout and when the request was malformed and dropped; err is
// non-nil only for socket failures.
func (t *DecisionTransport) ReceiveRequest() (req sched.SchedulingRequest, ok bool, err error) {
	ready, err := t.socket.Poll(t.cfg.PollTimeout)
	if err != nil {
		return sched.SchedulingRequest{}, false, fmt.Errorf("poll: %w", err)
	}
	if !ready {
		return sched.SchedulingRequest{}, false, nil
	}
	frames, err := t.socket.RecvMessage()
	if err != nil {
		t.inst.ObserveMessage(ChannelDecision, OutcomeRecvError)
		return sched.SchedulingRequest{}, false, fmt.Errorf("recv: %w", err)
	}

	req, err = sched.DecodeSchedulingRequest(frames)
	if err == nil {
		_, _, err = t.paths.Canonicalize(req)
		if err != nil {
			t.inst.ObserveMessage(ChannelDecision, OutcomeUnknownPath)
		}
	} else {
		t.inst.ObserveMessage(ChannelDecision, OutcomeMalformed)
	}
	if err != nil {
		logrus.Warnf("Dropping scheduling request: %v", err)
		// No reply is sent; the reply socket must be rewound before the next receive.
		if rerr := t.socket.Reset(); rerr != nil {
			return sched.SchedulingRequest{}, false, fmt.Errorf("reset after dropped request: %w", rerr)
		}
		return sched.SchedulingRequest{}, false, nil
	}
	t.inst.ObserveMessage(ChannelDecision, OutcomeAccepted)
	return req, true, nil
}

// SendResponse writes resp, retrying up to SendRetries times.
func (t *DecisionTransport) SendResponse(resp sched.SchedulingResponse) error {
	var err error
	for attempt := 1; attempt <= t.cfg.SendRetries; attempt++ {
		if err = t.socket.SendMessage(resp.Frames()); err == nil {
			t.inst.ObserveMessage(ChannelDecision, OutcomeSent)
			return nil
		}
		logrus.Debugf("Send of response for stream %s failed (attempt %d/%d): %v",
			resp.StreamID, attempt, t.cfg.SendRetries, err)
	}
	t.inst.ObserveMessage(ChannelDecision, OutcomeSendError)
	return fmt.Errorf("send response for stream %s: %w", resp.StreamID, err)
}

// Run serves requests until ctx is cancelled, handing each one to the coordinator
// through ex. Socket failures are logged and followed by a reset with backoff;
// they never end the loop. Returns nil once ctx is done.
func (t *DecisionTransport) Run(ctx context.Context, ex *sched.Exchange) error {
	logrus.Infof("Decision transport serving on %s", t.cfg.DecisionEndpoint)
	for ctx.Err() == nil {
		req, ok, err := t.ReceiveRequest()
		if err != nil {
			logrus.Warnf("Decision transport: %v", err)
			t.recover(ctx)
			continue
		}
		if !ok {
			continue
		}
		t.backoff.Reset()

		if err := ex.Submit(ctx, req); err != nil {
			break
		}
		resp, err := ex.AwaitResponse(ctx)
		if err != nil {
			break
		}
		if resp.StreamID != req.StreamID {
			logrus.Errorf("Response for stream %s answers stream %s", resp.StreamID, req.StreamID)
		}
		sendErr := t.SendResponse(resp)
		if err := ex.ConfirmDelivery(ctx, sendErr); err != nil {
			break
		}
		if sendErr != nil {
			logrus.Warnf("Decision transport: %v", sendErr)
			t.recover(ctx)
		}
	}
	return nil
}

// recover waits out the backoff and rebuilds the socket.
func (t *DecisionTransport) recover(ctx context.Context) {
	if !t.backoff.Wait(ctx) {
		return
	}
	t.inst.ObserveMessage(ChannelDecision, OutcomeReconnect)
	if err := t.socket.Reset(); err != nil {
		logrus.Errorf("Decision transport reset failed: %v", err)
	}
}
