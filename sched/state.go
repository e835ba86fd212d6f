package sched

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NumFeatures is the number of rows in a StateVector: two bandwidths, two RTTs,
// two loss+retransmission sums.
const NumFeatures = 6

// Feature row indices within a StateVector column.
const (
	FeatureBandwidth0 = iota
	FeatureBandwidth1
	FeatureRTT0
	FeatureRTT1
	FeatureLoss0
	FeatureLoss1
)

// NumActions is the number of selectable paths.
const NumActions = 2

// StateVector is a fixed-width ring of normalized feature columns,
// shape [NumFeatures × HistoryLength]. Column HistoryLength-1 is the newest.
//
// Thread-safety: NOT thread-safe. Owned by the coordinator goroutine.
type StateVector struct {
	m *mat.Dense
}

// NewStateVector returns an all-zero state (the bootstrap state).
// Panics if historyLength < 1.
func NewStateVector(historyLength int) *StateVector {
	if historyLength < 1 {
		panic(fmt.Sprintf("NewStateVector: historyLength must be >= 1, got %d", historyLength))
	}
	return &StateVector{m: mat.NewDense(NumFeatures, historyLength, nil)}
}

// HistoryLength returns the number of columns.
func (s *StateVector) HistoryLength() int {
	_, c := s.m.Dims()
	return c
}

// Push drops the oldest column and appends col at the newest position.
func (s *StateVector) Push(col [NumFeatures]float64) {
	n := s.HistoryLength()
	for i := 0; i < NumFeatures; i++ {
		row := s.m.RawRowView(i)
		copy(row[:n-1], row[1:])
		row[n-1] = col[i]
	}
}

// Newest returns the most recently pushed column.
func (s *StateVector) Newest() [NumFeatures]float64 {
	var col [NumFeatures]float64
	last := s.HistoryLength() - 1
	for i := range col {
		col[i] = s.m.At(i, last)
	}
	return col
}

// At returns feature i at history position t (0 = oldest).
func (s *StateVector) At(i, t int) float64 {
	return s.m.At(i, t)
}

// Clone returns an independent copy, used to snapshot the state at decision time.
func (s *StateVector) Clone() *StateVector {
	return &StateVector{m: mat.DenseCopyOf(s.m)}
}

// Flatten returns the state in row-major order (feature-major).
func (s *StateVector) Flatten() []float64 {
	raw := s.m.RawMatrix()
	out := make([]float64, 0, NumFeatures*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		out = append(out, s.m.RawRowView(i)...)
	}
	return out
}

// FeatureConfig holds the normalization constants for state features.
// The constants are policy-tuning knobs; the six-feature shape is fixed.
type FeatureConfig struct {
	HistoryLength    int     `yaml:"history_length"`
	BandwidthCeiling float64 `yaml:"bandwidth_ceiling"` // bandwidth normalized as (raw-1)/(ceiling-1)
	RTTScale         float64 `yaml:"rtt_scale"`         // seconds → RTT unit (1000 = ms)
	RTTCeiling       float64 `yaml:"rtt_ceiling"`       // RTT normalized as (raw*scale-1)/ceiling
	LossDivisor      float64 `yaml:"loss_divisor"`      // (retransmissions+losses)/divisor
}

// DefaultFeatureConfig returns the normalization used by the reference agent.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		HistoryLength:    8,
		BandwidthCeiling: 100,
		RTTScale:         1000,
		RTTCeiling:       120,
		LossDivisor:      20,
	}
}

// Validate checks that all constants produce finite features.
func (c FeatureConfig) Validate() error {
	if c.HistoryLength < 1 {
		return fmt.Errorf("history_length must be >= 1, got %d", c.HistoryLength)
	}
	if err := validateFinite("bandwidth_ceiling", c.BandwidthCeiling); err != nil {
		return err
	}
	if c.BandwidthCeiling <= 1 {
		return fmt.Errorf("bandwidth_ceiling must be > 1, got %f", c.BandwidthCeiling)
	}
	for name, v := range map[string]float64{
		"rtt_scale":    c.RTTScale,
		"rtt_ceiling":  c.RTTCeiling,
		"loss_divisor": c.LossDivisor,
	} {
		if err := validateFinite(name, v); err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, v)
		}
	}
	return nil
}

// Column computes the normalized feature column for one request.
// bandwidths come from the shared snapshot; p0/p1 are already in canonical order.
// Deterministic: identical inputs always yield identical columns.
func (c FeatureConfig) Column(bandwidths [2]float64, p0, p1 PathMetrics) [NumFeatures]float64 {
	var col [NumFeatures]float64
	col[FeatureBandwidth0] = (bandwidths[0] - 1) / (c.BandwidthCeiling - 1)
	col[FeatureBandwidth1] = (bandwidths[1] - 1) / (c.BandwidthCeiling - 1)
	col[FeatureRTT0] = (p0.SmoothedRTT*c.RTTScale - 1) / c.RTTCeiling
	col[FeatureRTT1] = (p1.SmoothedRTT*c.RTTScale - 1) / c.RTTCeiling
	col[FeatureLoss0] = p0.LossSignal() / c.LossDivisor
	col[FeatureLoss1] = p1.LossSignal() / c.LossDivisor
	return col
}

// PathSet names the two path identifiers. Action 0 selects First, action 1 selects Second.
type PathSet struct {
	First  uint8 `yaml:"first"`
	Second uint8 `yaml:"second"`
}

// DefaultPathSet returns the path identifiers used by MPQUIC in the reference topology.
func DefaultPathSet() PathSet {
	return PathSet{First: 1, Second: 3}
}

// Validate checks the two identifiers are distinct.
func (ps PathSet) Validate() error {
	if ps.First == ps.Second {
		return fmt.Errorf("paths must be distinct, got %d twice", ps.First)
	}
	return nil
}

// Canonicalize returns the request's metrics ordered (First, Second) by PathID,
// independent of wire order.
func (ps PathSet) Canonicalize(req SchedulingRequest) (PathMetrics, PathMetrics, error) {
	switch {
	case req.Path1.PathID == ps.First && req.Path2.PathID == ps.Second:
		return req.Path1, req.Path2, nil
	case req.Path2.PathID == ps.First && req.Path1.PathID == ps.Second:
		return req.Path2, req.Path1, nil
	default:
		return PathMetrics{}, PathMetrics{}, fmt.Errorf("%w: got (%d, %d), want {%d, %d}",
			ErrUnknownPath, req.Path1.PathID, req.Path2.PathID, ps.First, ps.Second)
	}
}

// PathForAction maps an action index to its path identifier.
// Panics on an action outside [0, NumActions).
func (ps PathSet) PathForAction(action int) uint8 {
	switch action {
	case 0:
		return ps.First
	case 1:
		return ps.Second
	default:
		panic(fmt.Sprintf("PathSet.PathForAction: action %d out of range", action))
	}
}

func validateFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, v)
	}
	return nil
}
