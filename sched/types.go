package sched

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// PathMetrics is the per-path transport state reported with each scheduling request.
// SmoothedRTT is in seconds.
type PathMetrics struct {
	PathID          uint8   `json:"PathID"`
	SmoothedRTT     float64 `json:"SmoothedRTT"`
	Bandwidth       float64 `json:"Bandwidth"`
	Packets         uint64  `json:"Packets"`
	Retransmissions uint64  `json:"Retransmissions"`
	Losses          uint64  `json:"Losses"`
}

// LossSignal returns retransmissions + losses, the per-path congestion feature.
func (p PathMetrics) LossSignal() float64 {
	return float64(p.Retransmissions + p.Losses)
}

// SchedulingRequest asks which path should carry a newly opened stream.
// Path1/Path2 arrive in no guaranteed order; normalize by PathID (see PathSet.Canonicalize).
type SchedulingRequest struct {
	StreamID    string
	RequestPath string
	Path1       PathMetrics
	Path2       PathMetrics
}

// SchedulingResponse carries the chosen path for one stream.
type SchedulingResponse struct {
	StreamID     string
	ChosenPathID uint8
}

// Frames returns the wire form: [StreamID, ChosenPathID], one UTF-8 string per frame.
func (r SchedulingResponse) Frames() []string {
	return []string{r.StreamID, strconv.Itoa(int(r.ChosenPathID))}
}

// StreamCompletionRecord reports how long one stream took to complete.
// StreamID is as published by the sender and is not trusted until reconciled.
type StreamCompletionRecord struct {
	RequestPath    string
	StreamID       string
	ObjectID       string
	CompletionTime float64
}

// flexID accepts a JSON string or number and keeps its textual form.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("stream id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type wireRequest struct {
	StreamID    flexID       `json:"StreamID"`
	RequestPath string       `json:"RequestPath"`
	Path1       *PathMetrics `json:"Path1"`
	Path2       *PathMetrics `json:"Path2"`
}

type wireCompletion struct {
	StreamID       flexID   `json:"StreamID"`
	ObjectID       string   `json:"ObjectID"`
	RequestPath    string   `json:"RequestPath"`
	Path           string   `json:"Path"` // legacy publishers
	CompletionTime *float64 `json:"CompletionTime"`
}

// payload returns the JSON frame of a multipart message.
// Senders prefix the payload with a stream-id envelope frame; the payload is always last.
func payload(frames []string) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	return []byte(frames[len(frames)-1]), nil
}

// DecodeSchedulingRequest parses a multipart scheduling request.
// Returns ErrMalformedRequest (wrapped) when the payload is not a valid request.
func DecodeSchedulingRequest(frames []string) (SchedulingRequest, error) {
	data, err := payload(frames)
	if err != nil {
		return SchedulingRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return SchedulingRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if w.StreamID == "" {
		return SchedulingRequest{}, fmt.Errorf("%w: missing StreamID", ErrMalformedRequest)
	}
	if w.Path1 == nil || w.Path2 == nil {
		return SchedulingRequest{}, fmt.Errorf("%w: both Path1 and Path2 are required", ErrMalformedRequest)
	}
	if w.Path1.PathID == w.Path2.PathID {
		return SchedulingRequest{}, fmt.Errorf("%w: Path1 and Path2 share PathID %d", ErrMalformedRequest, w.Path1.PathID)
	}
	for _, p := range []*PathMetrics{w.Path1, w.Path2} {
		if math.IsNaN(p.SmoothedRTT) || math.IsInf(p.SmoothedRTT, 0) || p.SmoothedRTT < 0 {
			return SchedulingRequest{}, fmt.Errorf("%w: path %d SmoothedRTT must be finite and non-negative, got %f",
				ErrMalformedRequest, p.PathID, p.SmoothedRTT)
		}
	}
	return SchedulingRequest{
		StreamID:    string(w.StreamID),
		RequestPath: w.RequestPath,
		Path1:       *w.Path1,
		Path2:       *w.Path2,
	}, nil
}

// DecodeCompletionRecord parses a multipart telemetry message.
// Returns ErrMalformedTelemetry (wrapped) when the payload is not a valid record.
func DecodeCompletionRecord(frames []string) (StreamCompletionRecord, error) {
	data, err := payload(frames)
	if err != nil {
		return StreamCompletionRecord{}, fmt.Errorf("%w: %v", ErrMalformedTelemetry, err)
	}
	var w wireCompletion
	if err := json.Unmarshal(data, &w); err != nil {
		return StreamCompletionRecord{}, fmt.Errorf("%w: %v", ErrMalformedTelemetry, err)
	}
	path := w.RequestPath
	if path == "" {
		path = w.Path
	}
	if path == "" {
		return StreamCompletionRecord{}, fmt.Errorf("%w: missing RequestPath", ErrMalformedTelemetry)
	}
	if w.CompletionTime == nil {
		return StreamCompletionRecord{}, fmt.Errorf("%w: missing CompletionTime", ErrMalformedTelemetry)
	}
	ct := *w.CompletionTime
	if math.IsNaN(ct) || math.IsInf(ct, 0) || ct < 0 {
		return StreamCompletionRecord{}, fmt.Errorf("%w: CompletionTime must be finite and non-negative, got %f",
			ErrMalformedTelemetry, ct)
	}
	return StreamCompletionRecord{
		RequestPath:    path,
		StreamID:       string(w.StreamID),
		ObjectID:       w.ObjectID,
		CompletionTime: ct,
	}, nil
}

// RunSession describes one run: an opaque topology and workload graph plus the
// bandwidth of each path in canonical order.
type RunSession struct {
	Index          int
	Topology       json.RawMessage
	WorkloadGraph  json.RawMessage
	GraphName      string
	PathBandwidths [2]float64
}
