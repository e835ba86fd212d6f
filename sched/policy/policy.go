// Package policy provides the built-in path-selection policies and their trainers.
//
// A policy is chosen by name (see ValidPolicies). Heuristic policies pair with a
// trainer that ignores experience, so the coordinator's run-boundary pipeline
// runs unchanged whether or not anything is being learned.
package policy

import (
	"fmt"

	"github.com/mpquic-rl/pathsched/sched"
)

// ValidPolicies is the set of recognized policy names.
// Shared by Config.Validate() and NewPolicy() to avoid duplication.
var ValidPolicies = map[string]bool{
	"":             true,
	"actor-critic": true,
	"first-path":   true,
	"round-robin":  true,
	"lowest-rtt":   true,
}

// IsValidPolicy returns true if name is a recognized policy name.
func IsValidPolicy(name string) bool {
	return ValidPolicies[name]
}

// Config selects and tunes a policy.
type Config struct {
	Name               string  `yaml:"name"`                 // empty defaults to actor-critic
	ActorLearningRate  float64 `yaml:"actor_learning_rate"`  // actor step size
	CriticLearningRate float64 `yaml:"critic_learning_rate"` // critic step size
	Discount           float64 `yaml:"discount"`             // return discount γ in [0, 1]
	EntropyWeight      float64 `yaml:"entropy_weight"`       // exploration bonus β
	CheckpointDir      string  `yaml:"checkpoint_dir"`       // empty disables checkpoints
	ResumeFrom         string  `yaml:"resume_from"`          // checkpoint to load at startup
}

// DefaultConfig returns the learning rates of the reference agent.
func DefaultConfig() Config {
	return Config{
		Name:               "actor-critic",
		ActorLearningRate:  0.0001,
		CriticLearningRate: 0.001,
		Discount:           0.99,
		EntropyWeight:      0.5,
	}
}

// Validate checks the name and the numeric ranges.
func (c Config) Validate() error {
	if !IsValidPolicy(c.Name) {
		return fmt.Errorf("unknown policy %q", c.Name)
	}
	if c.ActorLearningRate <= 0 || c.CriticLearningRate <= 0 {
		return fmt.Errorf("learning rates must be positive, got actor=%g critic=%g", c.ActorLearningRate, c.CriticLearningRate)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in [0, 1], got %g", c.Discount)
	}
	if c.EntropyWeight < 0 {
		return fmt.Errorf("entropy_weight must be non-negative, got %g", c.EntropyWeight)
	}
	return nil
}

// NewPolicy creates a policy and its trainer by name.
// An empty name defaults to actor-critic. historyLength is the StateVector width.
// Returns an error only if a ResumeFrom checkpoint cannot be loaded.
// Panics on unrecognized names.
func NewPolicy(cfg Config, historyLength int, rng *sched.PartitionedRNG) (sched.Policy, sched.Trainer, error) {
	if !IsValidPolicy(cfg.Name) {
		panic(fmt.Sprintf("unknown policy %q", cfg.Name))
	}
	switch cfg.Name {
	case "", "actor-critic":
		ac := NewActorCritic(cfg, historyLength, rng)
		if cfg.ResumeFrom != "" {
			if err := ac.LoadCheckpoint(cfg.ResumeFrom); err != nil {
				return nil, nil, err
			}
		}
		return ac, ac, nil
	case "first-path":
		return FirstPath{}, NopTrainer{}, nil
	case "round-robin":
		return &RoundRobin{}, NopTrainer{}, nil
	case "lowest-rtt":
		return LowestRTT{}, NopTrainer{}, nil
	default:
		panic(fmt.Sprintf("unhandled policy %q", cfg.Name))
	}
}
