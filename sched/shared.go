package sched

import (
	"math"
	"sync/atomic"
)

// SharedRunState is the only state written by the environment driver and read by
// the coordinator.
//
// Field discipline:
//   - endOfRun: set by the driver when a workload finishes; cleared by the
//     coordinator when it re-enters AWAITING_REQUEST.
//   - bandwidths: written by the driver at the start of each run; read by the
//     coordinator's feature normalization.
//
// Safe for concurrent use.
type SharedRunState struct {
	endOfRun   atomic.Bool
	bandwidths [2]atomic.Uint64
}

// NewSharedRunState returns a state with the flag cleared and zero bandwidths.
func NewSharedRunState() *SharedRunState {
	return &SharedRunState{}
}

// SignalEndOfRun marks the current run as finished. Driver side.
func (s *SharedRunState) SignalEndOfRun() {
	s.endOfRun.Store(true)
}

// EndOfRun reports whether the driver has finished the current run.
func (s *SharedRunState) EndOfRun() bool {
	return s.endOfRun.Load()
}

// ClearEndOfRun resets the flag. Coordinator side.
func (s *SharedRunState) ClearEndOfRun() {
	s.endOfRun.Store(false)
}

// SetBandwidths publishes the configured bandwidth of each path, in canonical order. Driver side.
func (s *SharedRunState) SetBandwidths(bw [2]float64) {
	s.bandwidths[0].Store(math.Float64bits(bw[0]))
	s.bandwidths[1].Store(math.Float64bits(bw[1]))
}

// Bandwidths returns the latest bandwidth snapshot.
func (s *SharedRunState) Bandwidths() [2]float64 {
	return [2]float64{
		math.Float64frombits(s.bandwidths[0].Load()),
		math.Float64frombits(s.bandwidths[1].Load()),
	}
}
