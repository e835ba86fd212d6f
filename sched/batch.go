package sched

import (
	"fmt"
	"math"
)

// TrainingBatch is a contiguous slice of index-aligned (state, action, reward) triples.
type TrainingBatch struct {
	States  []*StateVector
	Actions []int
	Rewards []float64
}

// Len returns the number of triples.
func (b TrainingBatch) Len() int {
	return len(b.States)
}

// Validate checks the three sequences are index-aligned.
func (b TrainingBatch) Validate() error {
	if len(b.States) != len(b.Actions) || len(b.States) != len(b.Rewards) {
		return fmt.Errorf("misaligned batch: %d states, %d actions, %d rewards",
			len(b.States), len(b.Actions), len(b.Rewards))
	}
	return nil
}

// Slice returns triples [i, j).
func (b TrainingBatch) Slice(i, j int) TrainingBatch {
	return TrainingBatch{
		States:  b.States[i:j],
		Actions: b.Actions[i:j],
		Rewards: b.Rewards[i:j],
	}
}

// TrainingConfig controls how a run's experience is chunked and when gradients are applied.
type TrainingConfig struct {
	SequenceLength     int `yaml:"sequence_length"`     // window size W
	MinRemainder       int `yaml:"min_remainder"`       // trailing windows must be strictly longer than this
	GradientBatchSize  int `yaml:"gradient_batch_size"` // accumulated gradients applied once this many exist
	CheckpointInterval int `yaml:"checkpoint_interval"` // checkpoint every N epochs; 0 disables
}

// DefaultTrainingConfig returns the reference agent's batching constants.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		SequenceLength:     32,
		MinRemainder:       8,
		GradientBatchSize:  8,
		CheckpointInterval: 8,
	}
}

// Validate checks the batching constants.
func (c TrainingConfig) Validate() error {
	if c.SequenceLength < 1 {
		return fmt.Errorf("sequence_length must be >= 1, got %d", c.SequenceLength)
	}
	if c.MinRemainder < 0 {
		return fmt.Errorf("min_remainder must be non-negative, got %d", c.MinRemainder)
	}
	if c.GradientBatchSize < 1 {
		return fmt.Errorf("gradient_batch_size must be >= 1, got %d", c.GradientBatchSize)
	}
	if c.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint_interval must be non-negative, got %d", c.CheckpointInterval)
	}
	return nil
}

// BuildWindows chunks batch into windows of SequenceLength. The trailing remainder
// is kept only if it is longer than MinRemainder; shorter tails are too noisy to train on.
func (c TrainingConfig) BuildWindows(batch TrainingBatch) []TrainingBatch {
	var windows []TrainingBatch
	n := batch.Len()
	start := 0
	for ; start+c.SequenceLength <= n; start += c.SequenceLength {
		windows = append(windows, batch.Slice(start, start+c.SequenceLength))
	}
	if rem := n - start; rem > 0 && rem > c.MinRemainder {
		windows = append(windows, batch.Slice(start, n))
	}
	return windows
}

// RunStats summarizes one run at its boundary.
type RunStats struct {
	Requests           int
	Records            int
	MeanReward         float64
	MeanEntropy        float64
	MeanCompletionTime float64
}

// RunBuffer is the per-run arena: every state, action and request of one run.
// A fresh RunBuffer is built when a run starts and handed wholesale to batching
// at its boundary; it is never reused across runs.
//
// Index 0 of states/actions is the synthetic bootstrap entry (zero state, default
// action); entry i+1 belongs to the i-th accepted request.
type RunBuffer struct {
	ID      string
	Session RunSession

	state     *StateVector
	states    []*StateVector
	actions   []int
	entropies []float64
	requests  []SchedulingRequest
}

// NewRunBuffer creates an empty arena seeded with the bootstrap entry.
func NewRunBuffer(id string, session RunSession, historyLength, defaultAction int) *RunBuffer {
	bootstrap := NewStateVector(historyLength)
	return &RunBuffer{
		ID:      id,
		Session: session,
		state:   bootstrap.Clone(),
		states:  []*StateVector{bootstrap},
		actions: []int{defaultAction},
	}
}

// Accept records req and rolls col into the state history.
// Returns a snapshot of the new state, owned by the buffer.
func (b *RunBuffer) Accept(req SchedulingRequest, col [NumFeatures]float64) *StateVector {
	b.requests = append(b.requests, req)
	b.state.Push(col)
	snap := b.state.Clone()
	b.states = append(b.states, snap)
	return snap
}

// RecordAction stores the action chosen for the most recently accepted request.
func (b *RunBuffer) RecordAction(action int, entropy float64) {
	b.actions = append(b.actions, action)
	b.entropies = append(b.entropies, entropy)
}

// Len returns the number of accepted requests.
func (b *RunBuffer) Len() int {
	return len(b.requests)
}

// Requests returns the accepted requests in acceptance order.
func (b *RunBuffer) Requests() []SchedulingRequest {
	return b.requests
}

// Finalize computes rewards for the reconciled records and returns the aligned
// training sequence with the bootstrap entry removed.
func (b *RunBuffer) Finalize(reconciled []ReconciledRecord, rc RewardConfig) (TrainingBatch, RunStats, error) {
	if len(b.states) != len(b.actions) {
		return TrainingBatch{}, RunStats{}, fmt.Errorf("run %s: %d states but %d actions", b.ID, len(b.states), len(b.actions))
	}
	rewards := make([]float64, 0, len(b.states))
	var sumReward, sumCT float64
	for _, rr := range reconciled {
		r := rc.Reward(rr.Record.CompletionTime)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return TrainingBatch{}, RunStats{}, fmt.Errorf("run %s: non-finite reward for stream %s", b.ID, rr.Request.StreamID)
		}
		rewards = append(rewards, r)
		sumReward += r
		sumCT += rr.Record.CompletionTime
	}
	// The bootstrap state has no outcome; pad at the front with a neutral reward.
	for len(rewards) < len(b.states) {
		rewards = append([]float64{0}, rewards...)
	}
	if len(rewards) > len(b.states) {
		return TrainingBatch{}, RunStats{}, fmt.Errorf("run %s: %d rewards for %d states", b.ID, len(rewards), len(b.states))
	}

	batch := TrainingBatch{
		States:  b.states[1:],
		Actions: b.actions[1:],
		Rewards: rewards[1:],
	}
	if err := batch.Validate(); err != nil {
		return TrainingBatch{}, RunStats{}, fmt.Errorf("run %s: %w", b.ID, err)
	}

	stats := RunStats{Requests: len(b.requests), Records: len(reconciled)}
	if n := len(reconciled); n > 0 {
		stats.MeanReward = sumReward / float64(n)
		stats.MeanCompletionTime = sumCT / float64(n)
	}
	if n := len(b.entropies); n > 0 {
		var sum float64
		for _, e := range b.entropies {
			sum += e
		}
		stats.MeanEntropy = sum / float64(n)
	}
	return batch, stats, nil
}
