package cmd

import (
	"github.com/mpquic-rl/pathsched/sched"
	"github.com/mpquic-rl/pathsched/sched/trace"
)

// traceObserver converts coordinator reports into trace records.
// The coordinator calls observers from its own goroutine, so the
// unsynchronized SessionTrace is safe to read once Run has returned.
type traceObserver struct {
	st *trace.SessionTrace
}

func newTraceObserver(st *trace.SessionTrace) *traceObserver {
	return &traceObserver{st: st}
}

func (o *traceObserver) ObserveDecision(d sched.DecisionReport) {
	features := make([]float64, len(d.Features))
	copy(features, d.Features[:])
	var probs []float64
	if d.Decision.Probabilities != nil {
		probs = append([]float64(nil), d.Decision.Probabilities...)
	}
	o.st.RecordDecision(trace.DecisionRecord{
		RunID:         d.RunID,
		StreamID:      d.Request.StreamID,
		RequestPath:   d.Request.RequestPath,
		ChosenPathID:  d.ChosenPathID,
		Action:        d.Decision.Action,
		Features:      features,
		Probabilities: probs,
		Entropy:       d.Decision.Entropy,
		Reason:        d.Decision.Reason,
		Latency:       d.Latency,
		Delivered:     d.Delivered,
	})
}

func (o *traceObserver) ObserveRun(r sched.RunReport) {
	o.st.RecordRun(trace.RunRecord{
		RunID:              r.RunID,
		Index:              r.Session.Index,
		Graph:              r.Session.GraphName,
		PathBandwidths:     r.Session.PathBandwidths,
		Outcome:            string(r.Outcome),
		Reason:             r.Reason,
		Requests:           r.Stats.Requests,
		Records:            r.Stats.Records,
		Windows:            r.Windows,
		MeanReward:         r.Stats.MeanReward,
		MeanEntropy:        r.Stats.MeanEntropy,
		MeanCompletionTime: r.Stats.MeanCompletionTime,
		Epoch:              r.Epoch,
		Duration:           r.Duration,
	})
}
