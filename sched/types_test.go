package sched

import (
	"errors"
	"testing"

	"github.com/mpquic-rl/pathsched/sched/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSchedulingRequest_ValidPayload_ParsesAllFields(t *testing.T) {
	// GIVEN a well-formed request for the reference paths
	p1, p2 := testutil.DefaultPaths()
	frames := testutil.RequestFrames(t, "7", "/index.html", p1, p2)

	// WHEN decoded
	req, err := DecodeSchedulingRequest(frames)

	// THEN every field survives
	require.NoError(t, err)
	assert.Equal(t, "7", req.StreamID)
	assert.Equal(t, "/index.html", req.RequestPath)
	assert.Equal(t, uint8(1), req.Path1.PathID)
	assert.Equal(t, uint8(3), req.Path2.PathID)
	assert.Equal(t, uint64(2), req.Path2.Retransmissions)
	assert.InDelta(t, 3.0, req.Path2.LossSignal(), 1e-12)
}

func TestDecodeSchedulingRequest_NumericStreamID_KeepsText(t *testing.T) {
	// GIVEN a sender that encodes StreamID as a JSON number
	frames := []string{`{"StreamID":15,"RequestPath":"/a","Path1":{"PathID":1},"Path2":{"PathID":3}}`}

	// WHEN decoded
	req, err := DecodeSchedulingRequest(frames)

	// THEN the id is kept in its textual form
	require.NoError(t, err)
	assert.Equal(t, "15", req.StreamID)
}

func TestDecodeSchedulingRequest_Malformed_ReturnsSentinel(t *testing.T) {
	tests := []struct {
		name   string
		frames []string
	}{
		{"no frames", nil},
		{"not json", []string{"1", "{nope"}},
		{"missing stream id", []string{`{"RequestPath":"/a","Path1":{"PathID":1},"Path2":{"PathID":3}}`}},
		{"missing path2", []string{`{"StreamID":"1","Path1":{"PathID":1}}`}},
		{"duplicate path id", []string{`{"StreamID":"1","Path1":{"PathID":1},"Path2":{"PathID":1}}`}},
		{"negative rtt", []string{`{"StreamID":"1","Path1":{"PathID":1,"SmoothedRTT":-1},"Path2":{"PathID":3}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSchedulingRequest(tt.frames)
			if !errors.Is(err, ErrMalformedRequest) {
				t.Errorf("expected ErrMalformedRequest, got %v", err)
			}
		})
	}
}

func TestDecodeCompletionRecord_LegacyPathField_UsedAsRequestPath(t *testing.T) {
	// GIVEN a publisher that still sends "Path" instead of "RequestPath"
	frames := []string{"3", `{"StreamID":"3","ObjectID":"obj","Path":"/b","CompletionTime":0.5}`}

	// WHEN decoded
	rec, err := DecodeCompletionRecord(frames)

	// THEN Path is promoted to RequestPath
	require.NoError(t, err)
	assert.Equal(t, "/b", rec.RequestPath)
	assert.Equal(t, 0.5, rec.CompletionTime)
}

func TestDecodeCompletionRecord_Malformed_ReturnsSentinel(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing completion time", `{"StreamID":"1","RequestPath":"/a"}`},
		{"missing path", `{"StreamID":"1","CompletionTime":1}`},
		{"negative completion time", `{"StreamID":"1","RequestPath":"/a","CompletionTime":-0.1}`},
		{"garbage", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCompletionRecord([]string{tt.payload})
			if !errors.Is(err, ErrMalformedTelemetry) {
				t.Errorf("expected ErrMalformedTelemetry, got %v", err)
			}
		})
	}
}

func TestSchedulingResponse_Frames_StreamIDThenPath(t *testing.T) {
	resp := SchedulingResponse{StreamID: "42", ChosenPathID: 3}
	assert.Equal(t, []string{"42", "3"}, resp.Frames())
}
