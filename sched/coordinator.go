package sched

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Phase is the coordinator's state-machine position.
type Phase int32

const (
	PhaseAwaitingRequest Phase = iota
	PhaseDeciding
	PhaseRunBoundary
	PhaseDrained
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingRequest:
		return "AWAITING_REQUEST"
	case PhaseDeciding:
		return "DECIDING"
	case PhaseRunBoundary:
		return "RUN_BOUNDARY"
	case PhaseDrained:
		return "DRAINED"
	case PhaseStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// CoordinatorConfig collects the tunables of an ExperienceCoordinator.
type CoordinatorConfig struct {
	Paths         PathSet
	Features      FeatureConfig
	Reward        RewardConfig
	Training      TrainingConfig
	PollInterval  time.Duration // how long to wait for a request before re-checking end-of-run
	DefaultAction int           // action used for the bootstrap entry and when the policy fails
}

// DefaultCoordinatorConfig returns the reference agent's settings.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Paths:        DefaultPathSet(),
		Features:     DefaultFeatureConfig(),
		Reward:       DefaultRewardConfig(),
		Training:     DefaultTrainingConfig(),
		PollInterval: 10 * time.Millisecond,
	}
}

// Validate checks every section.
func (c CoordinatorConfig) Validate() error {
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := c.Reward.Validate(); err != nil {
		return fmt.Errorf("reward: %w", err)
	}
	if err := c.Training.Validate(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.DefaultAction < 0 || c.DefaultAction >= NumActions {
		return fmt.Errorf("default action must be in [0, %d), got %d", NumActions, c.DefaultAction)
	}
	return nil
}

// Dependencies are the collaborators an ExperienceCoordinator drives.
// Driver and Observers are optional.
type Dependencies struct {
	Exchange  *Exchange
	Telemetry TelemetrySource
	Shared    *SharedRunState
	Sessions  SessionSource
	Policy    Policy
	Trainer   Trainer
	Driver    EnvironmentDriver
	Observers []Observer
}

// CoordinatorStats is a snapshot of lifetime counters.
type CoordinatorStats struct {
	RequestsServed int64
	RunsTrained    int64
	RunsDiscarded  int64
	Epoch          int64
}

// ExperienceCoordinator serves scheduling decisions and, at every run boundary,
// turns the run's (state, action, outcome) history into policy updates.
//
// All per-run mutation happens on the goroutine that calls Run; the only
// cross-goroutine touch points are the Exchange, the TelemetrySource and the
// SharedRunState.
type ExperienceCoordinator struct {
	cfg  CoordinatorConfig
	deps Dependencies

	run     *RunBuffer
	pending []Gradients
	runFrom time.Time

	phase          atomic.Int32
	epoch          atomic.Int64
	requestsServed atomic.Int64
	runsTrained    atomic.Int64
	runsDiscarded  atomic.Int64

	newRunID func() string
}

// NewExperienceCoordinator validates cfg and deps and returns a coordinator ready to Run.
func NewExperienceCoordinator(cfg CoordinatorConfig, deps Dependencies) (*ExperienceCoordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Exchange == nil:
		return nil, errors.New("coordinator: exchange is required")
	case deps.Telemetry == nil:
		return nil, errors.New("coordinator: telemetry source is required")
	case deps.Shared == nil:
		return nil, errors.New("coordinator: shared run state is required")
	case deps.Sessions == nil:
		return nil, errors.New("coordinator: session source is required")
	case deps.Policy == nil:
		return nil, errors.New("coordinator: policy is required")
	case deps.Trainer == nil:
		return nil, errors.New("coordinator: trainer is required")
	}
	return &ExperienceCoordinator{
		cfg:      cfg,
		deps:     deps,
		newRunID: uuid.NewString,
	}, nil
}

// Phase returns the current state-machine position.
func (c *ExperienceCoordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Epoch returns the number of gradient applications so far.
func (c *ExperienceCoordinator) Epoch() int {
	return int(c.epoch.Load())
}

// Stats returns a snapshot of lifetime counters.
func (c *ExperienceCoordinator) Stats() CoordinatorStats {
	return CoordinatorStats{
		RequestsServed: c.requestsServed.Load(),
		RunsTrained:    c.runsTrained.Load(),
		RunsDiscarded:  c.runsDiscarded.Load(),
		Epoch:          c.epoch.Load(),
	}
}

func (c *ExperienceCoordinator) setPhase(p Phase) {
	c.phase.Store(int32(p))
}

// Run serves requests until the session source is exhausted (returns nil) or ctx
// is cancelled (returns ctx.Err()). Errors from individual requests and runs are
// logged and never end the loop.
func (c *ExperienceCoordinator) Run(ctx context.Context) error {
	session, ok := c.deps.Sessions.Current()
	if !ok {
		c.setPhase(PhaseStopped)
		return ErrExhausted
	}
	logrus.Infof("Coordinator starting: %d runs in catalog", c.deps.Sessions.Count())
	c.startRun(ctx, session)

	for {
		if err := ctx.Err(); err != nil {
			c.setPhase(PhaseStopped)
			return err
		}

		// A request that is already waiting belongs to the current run; take it
		// before honoring end-of-run.
		req, ok, err := c.deps.Exchange.Next(ctx, 0)
		if err != nil {
			continue
		}
		if ok {
			c.handleRequest(ctx, req)
			continue
		}

		if c.deps.Shared.EndOfRun() {
			if !c.runBoundary(ctx) {
				c.setPhase(PhaseStopped)
				logrus.Info("Session catalog exhausted; coordinator stopping")
				return nil
			}
			continue
		}

		req, ok, err = c.deps.Exchange.Next(ctx, c.cfg.PollInterval)
		if err != nil || !ok {
			continue
		}
		c.handleRequest(ctx, req)
	}
}

// startRun builds a fresh arena for session and asks the driver to start it.
func (c *ExperienceCoordinator) startRun(ctx context.Context, session RunSession) {
	c.run = NewRunBuffer(c.newRunID(), session, c.cfg.Features.HistoryLength, c.cfg.DefaultAction)
	c.runFrom = time.Now()
	c.setPhase(PhaseAwaitingRequest)
	logrus.WithFields(c.runFields()).Info("Run started")

	if c.deps.Driver == nil {
		return
	}
	if err := c.deps.Driver.StartRun(ctx, session); err != nil {
		// Nothing will be produced for this run; let the boundary discard it.
		logrus.WithFields(c.runFields()).Errorf("Environment driver failed to start run: %v", err)
		c.deps.Shared.SignalEndOfRun()
	}
}

func (c *ExperienceCoordinator) runFields() logrus.Fields {
	return logrus.Fields{
		"run":     c.run.ID,
		"index":   c.run.Session.Index,
		"graph":   c.run.Session.GraphName,
		"bw_path": c.run.Session.PathBandwidths,
	}
}

// handleRequest runs AWAITING_REQUEST → DECIDING → AWAITING_REQUEST for one accepted request.
func (c *ExperienceCoordinator) handleRequest(ctx context.Context, req SchedulingRequest) {
	start := time.Now()
	c.setPhase(PhaseDeciding)
	defer c.setPhase(PhaseAwaitingRequest)

	p0, p1, err := c.cfg.Paths.Canonicalize(req)
	if err != nil {
		logrus.WithFields(c.runFields()).Warnf("Stream %s: %v; using wire order", req.StreamID, err)
		p0, p1 = req.Path1, req.Path2
	}
	col := c.cfg.Features.Column(c.deps.Shared.Bandwidths(), p0, p1)
	state := c.run.Accept(req, col)

	decision, err := c.decide(state)
	if err != nil {
		logrus.WithFields(c.runFields()).Warnf("Stream %s: policy failed, using default path: %v", req.StreamID, err)
		decision = Decision{Action: c.cfg.DefaultAction, Reason: "policy-error"}
	}
	c.run.RecordAction(decision.Action, decision.Entropy)

	resp := SchedulingResponse{StreamID: req.StreamID, ChosenPathID: c.cfg.Paths.PathForAction(decision.Action)}
	logrus.Debugf("Stream %s (%s) → path %d [%s]", req.StreamID, req.RequestPath, resp.ChosenPathID, decision.Reason)

	delivered := true
	if err := c.deps.Exchange.Respond(ctx, resp); err != nil {
		delivered = false
		logrus.WithFields(c.runFields()).Warnf("Response for stream %s not delivered: %v", req.StreamID, err)
	}
	c.requestsServed.Add(1)

	report := DecisionReport{
		RunID:        c.run.ID,
		Request:      req,
		Features:     col,
		Decision:     decision,
		ChosenPathID: resp.ChosenPathID,
		Latency:      time.Since(start),
		Delivered:    delivered,
	}
	for _, o := range c.deps.Observers {
		o.ObserveDecision(report)
	}
}

// decide calls the policy, converting panics and out-of-range actions into errors.
func (c *ExperienceCoordinator) decide(state *StateVector) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("policy panic: %v", r)
		}
	}()
	d, err = c.deps.Policy.Decide(state)
	if err != nil {
		return Decision{}, err
	}
	if d.Action < 0 || d.Action >= NumActions {
		return Decision{}, fmt.Errorf("policy returned action %d outside [0, %d)", d.Action, NumActions)
	}
	return d, nil
}

// runBoundary runs RUN_BOUNDARY → DRAINED → AWAITING_REQUEST (or STOPPED).
// Returns false once the session source is exhausted.
func (c *ExperienceCoordinator) runBoundary(ctx context.Context) bool {
	c.setPhase(PhaseRunBoundary)
	run := c.run
	records := c.deps.Telemetry.DrainAndClear()
	fields := c.runFields()
	logrus.WithFields(fields).Infof("End of run: %d requests, %d telemetry records", run.Len(), len(records))

	report := RunReport{
		RunID:   run.ID,
		Session: run.Session,
		Stats:   RunStats{Requests: run.Len(), Records: len(records)},
	}
	stats, grads, err := c.trainRun(run, records)
	if err != nil {
		report.Outcome = RunDiscarded
		report.Reason = err.Error()
		c.runsDiscarded.Add(1)
		logrus.WithFields(fields).Warnf("Run discarded: %v", err)
	} else {
		c.pending = append(c.pending, grads...)
		if len(c.pending) >= c.cfg.Training.GradientBatchSize {
			c.applyPending()
			report.Applied = true
		}
		report.Outcome = RunTrained
		report.Stats = stats
		report.Windows = len(grads)
		c.runsTrained.Add(1)
		logrus.WithFields(fields).WithFields(logrus.Fields{
			"windows":       len(grads),
			"avg_reward":    stats.MeanReward,
			"avg_entropy":   stats.MeanEntropy,
			"avg_comp_time": stats.MeanCompletionTime,
			"epoch":         c.Epoch(),
		}).Info("Run trained")
	}
	report.Epoch = c.Epoch()
	report.Duration = time.Since(c.runFrom)

	c.setPhase(PhaseDrained)
	c.run = nil
	for _, o := range c.deps.Observers {
		o.ObserveRun(report)
	}

	if !c.deps.Sessions.Advance() {
		return false
	}
	next, ok := c.deps.Sessions.Current()
	if !ok {
		return false
	}
	c.deps.Shared.ClearEndOfRun()
	c.startRun(ctx, next)
	return true
}

// trainRun reconciles, rewards, batches and computes gradients for one run. Any
// error or panic means the run contributes nothing; gradients from a failed run
// are not kept.
func (c *ExperienceCoordinator) trainRun(run *RunBuffer, records []StreamCompletionRecord) (stats RunStats, grads []Gradients, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while computing batch: %v", r)
		}
	}()

	if run.Len() == 0 {
		return RunStats{}, nil, ErrEmptyRun
	}
	if len(records) != run.Len() {
		return RunStats{}, nil, fmt.Errorf("%w: %d requests, %d records", ErrCountMismatch, run.Len(), len(records))
	}
	reconciled, err := Reconcile(run.Requests(), records)
	if err != nil {
		return RunStats{}, nil, err
	}
	ids := make([]string, len(reconciled))
	for i, rr := range reconciled {
		ids[i] = rr.Record.StreamID
	}
	if unique, dups := AllUnique(ids); !unique {
		logrus.WithFields(c.runFields()).Warnf("Reconciled stream ids are not unique: %v", dups)
	}

	batch, stats, err := run.Finalize(reconciled, c.cfg.Reward)
	if err != nil {
		return RunStats{}, nil, err
	}

	for _, w := range c.cfg.Training.BuildWindows(batch) {
		g, err := c.deps.Trainer.ComputeGradients(w)
		if err != nil {
			return RunStats{}, nil, fmt.Errorf("computing gradients: %w", err)
		}
		logrus.Debugf("Window of %d: td_loss=%.4f", w.Len(), g.TDLoss)
		grads = append(grads, g)
	}
	return stats, grads, nil
}

// applyPending applies every accumulated gradient, bumps the epoch and checkpoints on schedule.
// A failed or panicking apply drops the remaining gradients but still counts as an epoch.
func (c *ExperienceCoordinator) applyPending() {
	pending := c.pending
	c.pending = nil
	for i, g := range pending {
		if err := c.applyGradients(g); err != nil {
			logrus.Warnf("Applying gradient %d/%d failed, dropping the rest: %v", i+1, len(pending), err)
			break
		}
	}
	epoch := c.epoch.Add(1)
	if every := c.cfg.Training.CheckpointInterval; every > 0 && epoch%int64(every) == 0 {
		if err := c.deps.Trainer.Checkpoint(int(epoch)); err != nil {
			logrus.Warnf("Checkpoint at epoch %d failed: %v", epoch, err)
		} else {
			logrus.Infof("Checkpoint saved at epoch %d", epoch)
		}
	}
}

func (c *ExperienceCoordinator) applyGradients(g Gradients) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while applying gradients: %v", r)
		}
	}()
	return c.deps.Trainer.ApplyGradients(g)
}
