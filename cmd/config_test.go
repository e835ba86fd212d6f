package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig_ValidWithoutCatalog(t *testing.T) {
	// GIVEN the built-in defaults
	cfg := DefaultConfig()

	// THEN they validate when the catalog is not required
	assert.NoError(t, cfg.Validate(false))

	// AND fail when the catalog files are required but unset
	assert.Error(t, cfg.Validate(true))
}

func TestLoadConfig_OverridesOnlyGivenKeys(t *testing.T) {
	// GIVEN a config file that sets a handful of keys
	path := writeFile(t, t.TempDir(), "pathsched.yaml", `
seed: 7
transport:
  decision_endpoint: tcp://10.0.0.1:6000
  poll_timeout: 250ms
paths:
  first: 2
  second: 4
training:
  sequence_length: 16
  min_remainder: 4
  gradient_batch_size: 2
  checkpoint_interval: 0
policy:
  name: lowest-rtt
catalog:
  topologies_file: topo.json
  graphs_file: graphs.json
  max_runs: 3
`)

	// WHEN it is loaded
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// THEN the given keys are applied
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "tcp://10.0.0.1:6000", cfg.Transport.DecisionEndpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.Transport.PollTimeout)
	assert.Equal(t, uint8(2), cfg.Paths.First)
	assert.Equal(t, uint8(4), cfg.Paths.Second)
	assert.Equal(t, 16, cfg.Training.SequenceLength)
	assert.Equal(t, "lowest-rtt", cfg.Policy.Name)
	assert.Equal(t, 3, cfg.Catalog.MaxRuns)

	// AND everything else keeps its default
	defaults := DefaultConfig()
	assert.Equal(t, defaults.Transport.TelemetryEndpoint, cfg.Transport.TelemetryEndpoint)
	assert.Equal(t, defaults.Features, cfg.Features)
	assert.Equal(t, defaults.Reward, cfg.Reward)
	assert.Equal(t, defaults.Policy.ActorLearningRate, cfg.Policy.ActorLearningRate)

	assert.NoError(t, cfg.Validate(true))
}

func TestLoadConfig_UnknownKey_Errors(t *testing.T) {
	// GIVEN a config with a misspelled key
	path := writeFile(t, t.TempDir(), "typo.yaml", `
training:
  sequnce_length: 16
`)

	// WHEN it is loaded
	_, err := LoadConfig(path)

	// THEN strict parsing rejects it
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequnce_length")
}

func TestLoadConfig_EmptyFile_ReturnsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yaml", "\n")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_MissingFile_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate_RejectsBadSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same path twice", func(c *Config) { c.Paths.Second = c.Paths.First }},
		{"unknown policy", func(c *Config) { c.Policy.Name = "oracle" }},
		{"unknown trace level", func(c *Config) { c.Trace.Level = "verbose" }},
		{"negative max runs", func(c *Config) { c.Catalog.MaxRuns = -1 }},
		{"unknown environment mode", func(c *Config) { c.Environment.Mode = "ssh" }},
		{"command mode without command", func(c *Config) { c.Environment.Mode = "command" }},
		{"empty decision endpoint", func(c *Config) { c.Transport.DecisionEndpoint = "" }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"default action out of range", func(c *Config) { c.DefaultAction = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate(false))
		})
	}
}

func TestConfig_Coordinator_CarriesSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultAction = 1
	cfg.Reward.ExpectedCompletionTime = 4

	coord := cfg.Coordinator()

	assert.Equal(t, cfg.Paths, coord.Paths)
	assert.Equal(t, 1, coord.DefaultAction)
	assert.Equal(t, 4.0, coord.Reward.ExpectedCompletionTime)
	assert.NoError(t, coord.Validate())
}
