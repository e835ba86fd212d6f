package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/mpquic-rl/pathsched/sched"
	"github.com/mpquic-rl/pathsched/sched/driver"
	"github.com/mpquic-rl/pathsched/sched/policy"
	"github.com/mpquic-rl/pathsched/sched/trace"
	"github.com/mpquic-rl/pathsched/sched/transport"
	"gopkg.in/yaml.v3"
)

// CatalogConfig locates the run definitions.
type CatalogConfig struct {
	TopologiesFile string `yaml:"topologies_file"`
	GraphsFile     string `yaml:"graphs_file"`
	MaxRuns        int    `yaml:"max_runs"` // 0 keeps every combination
}

// MetricsConfig controls the HTTP control surface.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// TraceFileConfig controls decision trace collection and export.
type TraceFileConfig struct {
	Level         string `yaml:"level"`
	DecisionsFile string `yaml:"decisions_file"` // TSV export written at exit
}

// Config represents the full pathsched YAML configuration.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Seed          int64                `yaml:"seed"` // run order and policy randomness
	Transport     transport.Config     `yaml:"transport"`
	Paths         sched.PathSet        `yaml:"paths"`
	Features      sched.FeatureConfig  `yaml:"features"`
	Reward        sched.RewardConfig   `yaml:"reward"`
	Training      sched.TrainingConfig `yaml:"training"`
	PollInterval  time.Duration        `yaml:"poll_interval"`
	DefaultAction int                  `yaml:"default_action"`
	Policy        policy.Config        `yaml:"policy"`
	Catalog       CatalogConfig        `yaml:"catalog"`
	Environment   driver.Config        `yaml:"environment"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Trace         TraceFileConfig      `yaml:"trace"`
}

// DefaultConfig returns a configuration that validates once the catalog files are set.
func DefaultConfig() Config {
	coord := sched.DefaultCoordinatorConfig()
	return Config{
		Seed:          42,
		Transport:     transport.DefaultConfig(),
		Paths:         coord.Paths,
		Features:      coord.Features,
		Reward:        coord.Reward,
		Training:      coord.Training,
		PollInterval:  coord.PollInterval,
		DefaultAction: coord.DefaultAction,
		Policy:        policy.DefaultConfig(),
		Catalog:       CatalogConfig{},
		Environment:   driver.Config{Mode: driver.ModeExternal},
		Metrics:       MetricsConfig{Addr: ":9090"},
		Trace:         TraceFileConfig{Level: string(trace.TraceLevelRuns)},
	}
}

// LoadConfig reads path over DefaultConfig. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	// Parse YAML with strict field checking: typos must cause errors
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Coordinator returns the coordinator section of the configuration.
func (c Config) Coordinator() sched.CoordinatorConfig {
	return sched.CoordinatorConfig{
		Paths:         c.Paths,
		Features:      c.Features,
		Reward:        c.Reward,
		Training:      c.Training,
		PollInterval:  c.PollInterval,
		DefaultAction: c.DefaultAction,
	}
}

// Validate checks every section. Catalog files are checked only when requireCatalog is set.
func (c Config) Validate(requireCatalog bool) error {
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Coordinator().Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if err := c.Environment.Validate(); err != nil {
		return err
	}
	if !trace.IsValidTraceLevel(c.Trace.Level) {
		return fmt.Errorf("trace: unknown level %q", c.Trace.Level)
	}
	if c.Catalog.MaxRuns < 0 {
		return fmt.Errorf("catalog: max_runs must be non-negative, got %d", c.Catalog.MaxRuns)
	}
	if requireCatalog && (c.Catalog.TopologiesFile == "" || c.Catalog.GraphsFile == "") {
		return fmt.Errorf("catalog: topologies_file and graphs_file are required")
	}
	return nil
}
