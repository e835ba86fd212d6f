package trace

// TraceSummary aggregates statistics from a SessionTrace.
type TraceSummary struct {
	TotalDecisions     int
	UndeliveredCount   int
	PathDistribution   map[uint8]int // path ID → count of streams scheduled on it
	TotalRuns          int
	TrainedRuns        int
	DiscardedRuns      int
	MeanReward         float64 // over trained runs
	MeanEntropy        float64 // over trained runs
	MeanCompletionTime float64 // over trained runs
	FinalEpoch         int
}

// Summarize computes aggregate statistics from a SessionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SessionTrace) *TraceSummary {
	summary := &TraceSummary{
		PathDistribution: make(map[uint8]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Decisions)
	for _, d := range st.Decisions {
		summary.PathDistribution[d.ChosenPathID]++
		if !d.Delivered {
			summary.UndeliveredCount++
		}
	}

	summary.TotalRuns = len(st.Runs)
	var reward, entropy, ct float64
	for _, r := range st.Runs {
		if r.Epoch > summary.FinalEpoch {
			summary.FinalEpoch = r.Epoch
		}
		if r.Outcome != "trained" {
			summary.DiscardedRuns++
			continue
		}
		summary.TrainedRuns++
		reward += r.MeanReward
		entropy += r.MeanEntropy
		ct += r.MeanCompletionTime
	}
	if summary.TrainedRuns > 0 {
		n := float64(summary.TrainedRuns)
		summary.MeanReward = reward / n
		summary.MeanEntropy = entropy / n
		summary.MeanCompletionTime = ct / n
	}

	return summary
}
