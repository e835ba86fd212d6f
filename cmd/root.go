package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpquic-rl/pathsched/sched/catalog"
	"github.com/mpquic-rl/pathsched/sched/trace"
)

var (
	// CLI flags shared by every subcommand
	logLevel   string // Log verbosity level
	configPath string // YAML configuration file

	// CLI flags that override configuration values
	seed              int64  // Seed for run order and policy sampling
	decisionEndpoint  string // REQ/REP endpoint for scheduling requests
	telemetryEndpoint string // PUB/SUB endpoint for completion records
	metricsAddr       string // HTTP control server address
	policyName        string // Policy name
	maxRuns           int    // Number of catalog runs to serve
	traceLevel        string // Trace verbosity
	decisionsFile     string // TSV export path for decision traces
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "pathsched",
	Short: "Learned multipath stream scheduler decision service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// serveCmd runs a training session against the live transport
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scheduling decisions and train the policy over the run catalog",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrDie(cmd)
		if err := cfg.Validate(true); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logrus.Infof("Starting session: policy=%s, seed=%d, decisions=%s, telemetry=%s",
			cfg.Policy.Name, cfg.Seed, cfg.Transport.DecisionEndpoint, cfg.Transport.TelemetryEndpoint)
		st, err := serve(ctx, cfg, zmqSockets)

		if cfg.Trace.DecisionsFile != "" && st.Config.Level == trace.TraceLevelDecisions {
			if werr := writeDecisions(st, cfg.Trace.DecisionsFile); werr != nil {
				logrus.Errorf("Writing decision trace: %v", werr)
			}
		}
		if st.Config.Level != trace.TraceLevelNone && st.Config.Level != "" {
			printSummary(os.Stdout, trace.Summarize(st))
		}
		if err != nil {
			logrus.Fatalf("Session failed: %v", err)
		}
		logrus.Info("Session complete.")
	},
}

// catalogCmd prints the run order a seed produces
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the shuffled run order for the configured catalog and seed",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrDie(cmd)
		if err := cfg.Validate(true); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		cat, err := catalog.Load(cfg.Catalog.TopologiesFile, cfg.Catalog.GraphsFile, cfg.Seed)
		if err != nil {
			logrus.Fatalf("Loading catalog: %v", err)
		}
		if cfg.Catalog.MaxRuns > 0 {
			cat.Truncate(cfg.Catalog.MaxRuns)
		}
		for _, run := range cat.Runs() {
			fmt.Printf("%d\t%s\t%g\t%g\n", run.Index, run.GraphName, run.PathBandwidths[0], run.PathBandwidths[1])
		}
	},
}

// validateCmd checks a configuration file without starting anything
var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Check a configuration file for unknown keys and invalid values",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrDie(cmd)
		if err := cfg.Validate(false); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		fmt.Println("configuration OK")
	},
}

// loadConfigOrDie reads --config (if given) and applies explicitly set flags.
func loadConfigOrDie(cmd *cobra.Command) Config {
	cfg := DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
	}
	applyFlagOverrides(cmd, &cfg)
	return cfg
}

// applyFlagOverrides copies only flags the user set, so config file values survive defaults.
func applyFlagOverrides(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("decision-endpoint") {
		cfg.Transport.DecisionEndpoint = decisionEndpoint
	}
	if flags.Changed("telemetry-endpoint") {
		cfg.Transport.TelemetryEndpoint = telemetryEndpoint
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if flags.Changed("policy") {
		cfg.Policy.Name = policyName
	}
	if flags.Changed("max-runs") {
		cfg.Catalog.MaxRuns = maxRuns
	}
	if flags.Changed("trace-level") {
		cfg.Trace.Level = traceLevel
	}
	if flags.Changed("decisions-file") {
		cfg.Trace.DecisionsFile = decisionsFile
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration")

	for _, c := range []*cobra.Command{serveCmd, catalogCmd} {
		c.Flags().Int64Var(&seed, "seed", 42, "Seed for run order and policy sampling")
		c.Flags().IntVar(&maxRuns, "max-runs", 0, "Serve at most this many runs (0 = whole catalog)")
	}

	serveCmd.Flags().StringVar(&decisionEndpoint, "decision-endpoint", "tcp://localhost:5555", "Endpoint the scheduler sends requests to")
	serveCmd.Flags().StringVar(&telemetryEndpoint, "telemetry-endpoint", "tcp://localhost:5556", "Endpoint completion records are published on")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Control and metrics HTTP address (empty disables)")
	serveCmd.Flags().StringVar(&policyName, "policy", "actor-critic", "Policy (actor-critic, first-path, round-robin, lowest-rtt)")
	serveCmd.Flags().StringVar(&traceLevel, "trace-level", "runs", "Trace verbosity (none, runs, decisions)")
	serveCmd.Flags().StringVar(&decisionsFile, "decisions-file", "", "Write the decision trace as TSV to this path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(validateCmd)
}
