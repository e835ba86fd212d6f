package sched

import (
	"fmt"
	"sort"
)

// RewardConfig makes the completion-time scale explicit.
// Completion times are divided by ExpectedCompletionTime before shaping,
// so 1.0 means "took exactly as long as expected" for every workload.
type RewardConfig struct {
	ExpectedCompletionTime float64 `yaml:"expected_completion_time"`
}

// DefaultRewardConfig treats published completion times as already normalized.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{ExpectedCompletionTime: 1.0}
}

// Validate checks the scale is a finite positive number.
func (c RewardConfig) Validate() error {
	if err := validateFinite("expected_completion_time", c.ExpectedCompletionTime); err != nil {
		return err
	}
	if c.ExpectedCompletionTime <= 0 {
		return fmt.Errorf("expected_completion_time must be positive, got %f", c.ExpectedCompletionTime)
	}
	return nil
}

// Reward returns 1 − t², where t is the completion time relative to the expected duration.
// Fast streams approach 1; anything slower than expected goes negative quadratically.
func (c RewardConfig) Reward(completionTime float64) float64 {
	t := completionTime / c.ExpectedCompletionTime
	return 1 - t*t
}

// ReconciledRecord pairs a completion record with the request it completes.
// Record.StreamID is overwritten with the request's StreamID.
type ReconciledRecord struct {
	Request SchedulingRequest
	Record  StreamCompletionRecord
}

// Reconcile pairs each request with a completion record by RequestPath,
// independent of record arrival order. The result is in request order.
// Requests sharing a RequestPath claim matching records first-come in arrival order.
// Returns ErrCountMismatch if the counts differ and ErrUnmatchedRecord if a request
// has no record with its path.
func Reconcile(requests []SchedulingRequest, records []StreamCompletionRecord) ([]ReconciledRecord, error) {
	if len(requests) != len(records) {
		return nil, fmt.Errorf("%w: %d requests, %d records", ErrCountMismatch, len(requests), len(records))
	}
	byPath := make(map[string][]int, len(records))
	for j, rec := range records {
		byPath[rec.RequestPath] = append(byPath[rec.RequestPath], j)
	}
	out := make([]ReconciledRecord, len(requests))
	for i, req := range requests {
		candidates := byPath[req.RequestPath]
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: request %d (stream %s, path %q)", ErrUnmatchedRecord, i, req.StreamID, req.RequestPath)
		}
		rec := records[candidates[0]]
		byPath[req.RequestPath] = candidates[1:]
		rec.StreamID = req.StreamID
		out[i] = ReconciledRecord{Request: req, Record: rec}
	}
	return out, nil
}

// AllUnique reports whether every id is distinct, and returns the duplicated ids sorted.
func AllUnique(ids []string) (bool, []string) {
	seen := make(map[string]int, len(ids))
	for _, id := range ids {
		seen[id]++
	}
	var dups []string
	for id, n := range seen {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return len(dups) == 0, dups
}
