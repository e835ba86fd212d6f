// Package driver starts the workload of each run and reports when it ends.
//
// Two drivers are provided:
//   - CommandDriver runs a configured command per run (the testbed launcher)
//     and signals end-of-run when it exits.
//   - ExternalDriver only publishes the run's bandwidths; something outside the
//     process (an operator, a control endpoint, a signal) calls EndRun.
package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpquic-rl/pathsched/sched"
)

// Driver modes accepted by Config.Mode.
const (
	ModeCommand  = "command"
	ModeExternal = "external"
)

// Environment variables passed to the run command.
const (
	EnvRunIndex   = "PATHSCHED_RUN_INDEX"
	EnvTopology   = "PATHSCHED_TOPOLOGY"
	EnvGraph      = "PATHSCHED_GRAPH"
	EnvGraphName  = "PATHSCHED_GRAPH_NAME"
	EnvBandwidth0 = "PATHSCHED_BANDWIDTH_0"
	EnvBandwidth1 = "PATHSCHED_BANDWIDTH_1"
)

// Config selects and configures the driver.
type Config struct {
	Mode    string        `yaml:"mode"`     // "command" or "external"
	Command []string      `yaml:"command"`  // argv for ModeCommand
	Timeout time.Duration `yaml:"timeout"`  // per-run limit for ModeCommand; 0 means none
	WorkDir string        `yaml:"work_dir"` // working directory for ModeCommand
}

// Validate checks the mode and its required fields.
func (c Config) Validate() error {
	switch c.Mode {
	case "", ModeExternal:
		return nil
	case ModeCommand:
		if len(c.Command) == 0 {
			return fmt.Errorf("environment.command is required in %q mode", ModeCommand)
		}
		if c.Timeout < 0 {
			return fmt.Errorf("environment.timeout must be non-negative, got %v", c.Timeout)
		}
		return nil
	default:
		return fmt.Errorf("unknown environment mode %q", c.Mode)
	}
}

// New builds the driver named by cfg.Mode. An empty mode selects ExternalDriver.
func New(cfg Config, shared *sched.SharedRunState) (sched.EnvironmentDriver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeCommand {
		return NewCommandDriver(cfg, shared), nil
	}
	return NewExternalDriver(shared), nil
}

// CommandDriver runs one process per run.
type CommandDriver struct {
	cfg    Config
	shared *sched.SharedRunState
	wg     sync.WaitGroup
}

// NewCommandDriver returns a driver that runs cfg.Command for every run.
func NewCommandDriver(cfg Config, shared *sched.SharedRunState) *CommandDriver {
	return &CommandDriver{cfg: cfg, shared: shared}
}

// StartRun publishes the session's bandwidths and starts the command.
// End-of-run is signalled when the command exits, whatever its status.
func (d *CommandDriver) StartRun(ctx context.Context, session sched.RunSession) error {
	d.shared.SetBandwidths(session.PathBandwidths)

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
	}
	cmd := exec.CommandContext(runCtx, d.cfg.Command[0], d.cfg.Command[1:]...)
	cmd.Dir = d.cfg.WorkDir
	cmd.Env = append(os.Environ(), sessionEnv(session)...)
	out := logrus.WithField("run_index", session.Index).WriterLevel(logrus.DebugLevel)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		cancel()
		_ = out.Close()
		return fmt.Errorf("starting %s: %w", d.cfg.Command[0], err)
	}
	logrus.Debugf("Run %d: started %v (pid %d)", session.Index, d.cfg.Command, cmd.Process.Pid)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		err := cmd.Wait()
		_ = out.Close()
		if err != nil {
			logrus.Warnf("Run %d: environment command exited: %v", session.Index, err)
		} else {
			logrus.Debugf("Run %d: environment command finished", session.Index)
		}
		d.shared.SignalEndOfRun()
	}()
	return nil
}

// Wait blocks until every started command has exited.
func (d *CommandDriver) Wait() {
	d.wg.Wait()
}

func sessionEnv(s sched.RunSession) []string {
	return []string{
		EnvRunIndex + "=" + strconv.Itoa(s.Index),
		EnvTopology + "=" + string(s.Topology),
		EnvGraph + "=" + string(s.WorkloadGraph),
		EnvGraphName + "=" + s.GraphName,
		EnvBandwidth0 + "=" + strconv.FormatFloat(s.PathBandwidths[0], 'f', -1, 64),
		EnvBandwidth1 + "=" + strconv.FormatFloat(s.PathBandwidths[1], 'f', -1, 64),
	}
}

// ExternalDriver leaves the workload to someone else.
type ExternalDriver struct {
	shared *sched.SharedRunState

	mu      sync.Mutex
	current sched.RunSession
	active  bool
}

// NewExternalDriver returns a driver whose runs end when EndRun is called.
func NewExternalDriver(shared *sched.SharedRunState) *ExternalDriver {
	return &ExternalDriver{shared: shared}
}

// StartRun publishes the session's bandwidths and records it as current.
func (d *ExternalDriver) StartRun(_ context.Context, session sched.RunSession) error {
	d.shared.SetBandwidths(session.PathBandwidths)
	d.mu.Lock()
	d.current = session
	d.active = true
	d.mu.Unlock()
	logrus.Infof("Run %d ready: graph %s, bandwidths %v; waiting for end-of-run", session.Index, session.GraphName, session.PathBandwidths)
	return nil
}

// EndRun signals end-of-run for the current run. Returns false if no run is active.
func (d *ExternalDriver) EndRun() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return false
	}
	d.active = false
	d.shared.SignalEndOfRun()
	return true
}

// Current returns the run most recently started and whether it is still active.
func (d *ExternalDriver) Current() (sched.RunSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.active
}
