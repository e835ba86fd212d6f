package sched

import "errors"

var (
	// ErrMalformedRequest marks a scheduling request payload that cannot be decoded.
	ErrMalformedRequest = errors.New("malformed scheduling request")

	// ErrMalformedTelemetry marks a telemetry payload that cannot be decoded.
	ErrMalformedTelemetry = errors.New("malformed telemetry record")

	// ErrUnknownPath marks a request whose path IDs do not match the configured PathSet.
	ErrUnknownPath = errors.New("request path ids do not match configured paths")

	// ErrEmptyRun is returned at a run boundary when no request was accepted.
	ErrEmptyRun = errors.New("no requests accepted during run")

	// ErrCountMismatch is returned when telemetry and request counts differ at a run boundary.
	ErrCountMismatch = errors.New("telemetry record count does not match accepted requests")

	// ErrUnmatchedRecord is returned when a telemetry record has no request with the same path.
	ErrUnmatchedRecord = errors.New("telemetry record has no matching request")

	// ErrExhausted is returned by session sources that have no runs left.
	ErrExhausted = errors.New("session catalog exhausted")
)
