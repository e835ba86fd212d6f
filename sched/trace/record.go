// Package trace provides decision-trace recording for offline policy analysis.
// This package has no dependencies on sched/; it stores pure data types.
package trace

import "time"

// DecisionRecord captures a single path-scheduling decision.
type DecisionRecord struct {
	RunID         string
	StreamID      string
	RequestPath   string
	ChosenPathID  uint8
	Action        int
	Features      []float64 // newest normalized feature column
	Probabilities []float64 // nil for deterministic policies
	Entropy       float64
	Reason        string
	Latency       time.Duration
	Delivered     bool
}

// RunRecord captures the outcome of one run boundary.
type RunRecord struct {
	RunID              string
	Index              int
	Graph              string
	PathBandwidths     [2]float64
	Outcome            string // "trained" or "discarded"
	Reason             string // why a run was discarded
	Requests           int
	Records            int
	Windows            int
	MeanReward         float64
	MeanEntropy        float64
	MeanCompletionTime float64
	Epoch              int
	Duration           time.Duration
}
