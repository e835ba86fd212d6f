// Package testutil provides shared test infrastructure for the path scheduler.
// It builds wire-format payloads the way MPQUIC peers emit them and holds
// assertion helpers used across sched/ and its subpackages.
//
// It has no dependency on sched/ so that sched's own tests can import it.
package testutil

import (
	"encoding/json"
	"math"
	"testing"
)

// Path is the wire form of one path's metrics in a scheduling request.
type Path struct {
	PathID          uint8
	SmoothedRTT     float64
	Bandwidth       float64
	Packets         uint64
	Retransmissions uint64
	Losses          uint64
}

// RequestJSON returns the JSON payload of a scheduling request.
func RequestJSON(t *testing.T, streamID, requestPath string, p1, p2 Path) string {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"StreamID":    streamID,
		"RequestPath": requestPath,
		"Path1":       p1,
		"Path2":       p2,
	})
}

// RequestFrames returns a complete multipart request: [envelope, payload].
func RequestFrames(t *testing.T, streamID, requestPath string, p1, p2 Path) []string {
	t.Helper()
	return []string{streamID, RequestJSON(t, streamID, requestPath, p1, p2)}
}

// CompletionJSON returns the JSON payload of a stream-completion record.
func CompletionJSON(t *testing.T, streamID, requestPath string, completionTime float64) string {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"StreamID":       streamID,
		"ObjectID":       requestPath,
		"RequestPath":    requestPath,
		"CompletionTime": completionTime,
	})
}

// CompletionFrames returns a complete multipart telemetry message: [envelope, payload].
func CompletionFrames(t *testing.T, streamID, requestPath string, completionTime float64) []string {
	t.Helper()
	return []string{streamID, CompletionJSON(t, streamID, requestPath, completionTime)}
}

// DefaultPaths returns metrics for the reference path pair {1, 3}.
func DefaultPaths() (Path, Path) {
	return Path{PathID: 1, SmoothedRTT: 0.021, Bandwidth: 10, Packets: 100},
		Path{PathID: 3, SmoothedRTT: 0.041, Bandwidth: 20, Packets: 80, Retransmissions: 2, Losses: 1}
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal wire payload: %v", err)
	}
	return string(data)
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
