package sched

import (
	"context"
	"math"
	"time"
)

// Decision is a policy's answer for one state.
type Decision struct {
	Action        int       // index into PathSet (0 = First, 1 = Second)
	Probabilities []float64 // action distribution; nil for deterministic policies
	Entropy       float64   // diagnostics only
	Reason        string    // human-readable explanation
}

// Policy selects a path for the current state.
type Policy interface {
	Decide(state *StateVector) (Decision, error)
}

// Gradients is the output of one ComputeGradients call.
type Gradients struct {
	Actor  []float64
	Critic []float64
	TDLoss float64 // mean squared temporal-difference error of the window
}

// Trainer turns aligned experience into policy updates.
type Trainer interface {
	ComputeGradients(batch TrainingBatch) (Gradients, error)
	ApplyGradients(g Gradients) error
	Checkpoint(epoch int) error
}

// SessionSource enumerates runs. Implemented by catalog.Catalog.
type SessionSource interface {
	Count() int
	Current() (RunSession, bool)
	Advance() bool
}

// EnvironmentDriver starts the workload of one run. It must return promptly and
// signal completion through SharedRunState.SignalEndOfRun.
type EnvironmentDriver interface {
	StartRun(ctx context.Context, session RunSession) error
}

// TelemetrySource yields every completion record received since the last drain.
type TelemetrySource interface {
	DrainAndClear() []StreamCompletionRecord
}

// RunOutcome classifies how a run boundary ended.
type RunOutcome string

const (
	RunTrained   RunOutcome = "trained"
	RunDiscarded RunOutcome = "discarded"
)

// DecisionReport describes one served scheduling request.
type DecisionReport struct {
	RunID        string
	Request      SchedulingRequest
	Features     [NumFeatures]float64
	Decision     Decision
	ChosenPathID uint8
	Latency      time.Duration
	Delivered    bool
}

// RunReport describes one run boundary.
type RunReport struct {
	RunID    string
	Session  RunSession
	Outcome  RunOutcome
	Reason   string
	Stats    RunStats
	Windows  int  // gradient windows computed for this run
	Applied  bool // accumulated gradients were applied at this boundary
	Epoch    int
	Duration time.Duration
}

// Observer receives coordinator events. Implementations must not block.
type Observer interface {
	ObserveDecision(DecisionReport)
	ObserveRun(RunReport)
}

// Entropy returns the Shannon entropy (nats) of a probability vector.
func Entropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}
