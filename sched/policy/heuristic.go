package policy

import (
	"fmt"

	"github.com/mpquic-rl/pathsched/sched"
)

// FirstPath always selects the first configured path.
type FirstPath struct{}

func (FirstPath) Decide(*sched.StateVector) (sched.Decision, error) {
	return sched.Decision{Action: 0, Reason: "first-path"}, nil
}

// RoundRobin alternates between the two paths.
type RoundRobin struct {
	next int
}

func (r *RoundRobin) Decide(*sched.StateVector) (sched.Decision, error) {
	action := r.next
	r.next = (r.next + 1) % sched.NumActions
	return sched.Decision{Action: action, Reason: fmt.Sprintf("round-robin (%d)", action)}, nil
}

// LowestRTT selects the path with the smaller smoothed RTT in the newest column.
// Ties go to the first path.
type LowestRTT struct{}

func (LowestRTT) Decide(state *sched.StateVector) (sched.Decision, error) {
	col := state.Newest()
	rtt0, rtt1 := col[sched.FeatureRTT0], col[sched.FeatureRTT1]
	action := 0
	if rtt1 < rtt0 {
		action = 1
	}
	return sched.Decision{Action: action, Reason: fmt.Sprintf("lowest-rtt (%.3f vs %.3f)", rtt0, rtt1)}, nil
}

// NopTrainer accepts experience and learns nothing.
type NopTrainer struct{}

func (NopTrainer) ComputeGradients(b sched.TrainingBatch) (sched.Gradients, error) {
	return sched.Gradients{}, b.Validate()
}

func (NopTrainer) ApplyGradients(sched.Gradients) error { return nil }

func (NopTrainer) Checkpoint(int) error { return nil }
