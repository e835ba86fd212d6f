package trace

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelRuns captures run-boundary outcomes only.
	TraceLevelRuns TraceLevel = "runs"
	// TraceLevelDecisions captures every decision and every run outcome.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelRuns:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SessionTrace collects decision and run records during a training session.
// Not thread-safe; record from a single goroutine.
type SessionTrace struct {
	Config    TraceConfig
	Decisions []DecisionRecord
	Runs      []RunRecord
}

// NewSessionTrace creates a SessionTrace ready for recording.
func NewSessionTrace(config TraceConfig) *SessionTrace {
	return &SessionTrace{
		Config:    config,
		Decisions: make([]DecisionRecord, 0),
		Runs:      make([]RunRecord, 0),
	}
}

// RecordDecision appends a decision record. Ignored below TraceLevelDecisions.
func (st *SessionTrace) RecordDecision(record DecisionRecord) {
	if st.Config.Level != TraceLevelDecisions {
		return
	}
	st.Decisions = append(st.Decisions, record)
}

// RecordRun appends a run record. Ignored at TraceLevelNone.
func (st *SessionTrace) RecordRun(record RunRecord) {
	if st.Config.Level != TraceLevelRuns && st.Config.Level != TraceLevelDecisions {
		return
	}
	st.Runs = append(st.Runs, record)
}

var decisionColumns = []string{
	"run", "stream", "request_path", "path", "action",
	"bw_0", "bw_1", "rtt_0", "rtt_1", "loss_0", "loss_1",
	"p_0", "p_1", "entropy", "latency_us", "delivered",
}

// WriteDecisionsTSV writes one tab-separated line per decision, with a header.
func (st *SessionTrace) WriteDecisionsTSV(w io.Writer) error {
	if _, err := fmt.Fprintln(w, strings.Join(decisionColumns, "\t")); err != nil {
		return err
	}
	for _, d := range st.Decisions {
		fields := []string{
			d.RunID, d.StreamID, d.RequestPath,
			strconv.Itoa(int(d.ChosenPathID)), strconv.Itoa(d.Action),
		}
		for i := 0; i < 6; i++ {
			fields = append(fields, formatAt(d.Features, i))
		}
		fields = append(fields,
			formatAt(d.Probabilities, 0), formatAt(d.Probabilities, 1),
			strconv.FormatFloat(d.Entropy, 'f', 6, 64),
			strconv.FormatInt(d.Latency.Microseconds(), 10),
			strconv.FormatBool(d.Delivered),
		)
		if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func formatAt(values []float64, i int) string {
	if i >= len(values) {
		return "-"
	}
	return strconv.FormatFloat(values[i], 'f', 6, 64)
}
