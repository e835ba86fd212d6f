package policy

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/mpquic-rl/pathsched/sched"
)

// randRange is the resolution of the uniform draw used for action sampling.
const randRange = 1000

// initScale bounds the magnitude of initial weights.
const initScale = 0.01

// ActorCritic is a linear softmax actor with a linear state-value critic.
// Both read the flattened StateVector plus a bias input.
//
// Actor weights have shape [NumActions × (inputs+1)]; critic weights [inputs+1].
// Gradients are flattened row-major in that layout.
//
// Thread-safety: NOT thread-safe. Decide and the Trainer methods are called from
// the coordinator goroutine only.
type ActorCritic struct {
	cfg           Config
	historyLength int
	actor         *mat.Dense
	critic        *mat.VecDense
	rng           *rand.Rand
}

// NewActorCritic creates a model with small random weights drawn from the init
// subsystem; action sampling uses the policy subsystem.
func NewActorCritic(cfg Config, historyLength int, rng *sched.PartitionedRNG) *ActorCritic {
	if historyLength < 1 {
		panic(fmt.Sprintf("NewActorCritic: historyLength must be >= 1, got %d", historyLength))
	}
	inputs := sched.NumFeatures*historyLength + 1
	initRNG := rng.ForSubsystem(sched.SubsystemInit)
	actor := mat.NewDense(sched.NumActions, inputs, nil)
	for i := 0; i < sched.NumActions; i++ {
		for j := 0; j < inputs; j++ {
			actor.Set(i, j, (initRNG.Float64()*2-1)*initScale)
		}
	}
	return &ActorCritic{
		cfg:           cfg,
		historyLength: historyLength,
		actor:         actor,
		critic:        mat.NewVecDense(inputs, nil),
		rng:           rng.ForSubsystem(sched.SubsystemPolicy),
	}
}

// input returns the flattened state with a trailing bias of 1.
func (ac *ActorCritic) input(state *sched.StateVector) (*mat.VecDense, error) {
	if state.HistoryLength() != ac.historyLength {
		return nil, fmt.Errorf("state has history length %d, model expects %d", state.HistoryLength(), ac.historyLength)
	}
	x := append(state.Flatten(), 1)
	return mat.NewVecDense(len(x), x), nil
}

// Probabilities returns the actor's action distribution for state.
func (ac *ActorCritic) Probabilities(state *sched.StateVector) ([]float64, error) {
	x, err := ac.input(state)
	if err != nil {
		return nil, err
	}
	return ac.softmax(x), nil
}

func (ac *ActorCritic) softmax(x *mat.VecDense) []float64 {
	var logits mat.VecDense
	logits.MulVec(ac.actor, x)
	maxLogit := math.Inf(-1)
	for i := 0; i < logits.Len(); i++ {
		maxLogit = math.Max(maxLogit, logits.AtVec(i))
	}
	probs := make([]float64, logits.Len())
	var sum float64
	for i := range probs {
		probs[i] = math.Exp(logits.AtVec(i) - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Value returns the critic's estimate for state.
func (ac *ActorCritic) Value(state *sched.StateVector) (float64, error) {
	x, err := ac.input(state)
	if err != nil {
		return 0, err
	}
	return mat.Dot(ac.critic, x), nil
}

// Decide samples an action: the first index whose cumulative probability
// exceeds a uniform draw.
func (ac *ActorCritic) Decide(state *sched.StateVector) (sched.Decision, error) {
	probs, err := ac.Probabilities(state)
	if err != nil {
		return sched.Decision{}, err
	}
	u := float64(ac.rng.Intn(randRange-1)+1) / randRange
	action := len(probs) - 1
	var cum float64
	for i, p := range probs {
		cum += p
		if cum > u {
			action = i
			break
		}
	}
	return sched.Decision{
		Action:        action,
		Probabilities: probs,
		Entropy:       sched.Entropy(probs),
		Reason:        fmt.Sprintf("actor-critic p=%.3f/%.3f", probs[0], probs[1]),
	}, nil
}

// ComputeGradients returns the mean advantage actor-critic gradient over batch.
// Returns are discounted to the end of the window, which is treated as terminal.
func (ac *ActorCritic) ComputeGradients(batch sched.TrainingBatch) (sched.Gradients, error) {
	if err := batch.Validate(); err != nil {
		return sched.Gradients{}, err
	}
	n := batch.Len()
	if n == 0 {
		return sched.Gradients{}, fmt.Errorf("empty batch")
	}

	inputs := make([]*mat.VecDense, n)
	values := make([]float64, n)
	for t, s := range batch.States {
		x, err := ac.input(s)
		if err != nil {
			return sched.Gradients{}, fmt.Errorf("state %d: %w", t, err)
		}
		inputs[t] = x
		values[t] = mat.Dot(ac.critic, x)
	}

	returns := make([]float64, n)
	var running float64
	for t := n - 1; t >= 0; t-- {
		running = batch.Rewards[t] + ac.cfg.Discount*running
		returns[t] = running
	}

	rows, cols := ac.actor.Dims()
	actorGrad := mat.NewDense(rows, cols, nil)
	criticGrad := mat.NewVecDense(cols, nil)
	var tdLoss float64
	for t := 0; t < n; t++ {
		a := batch.Actions[t]
		if a < 0 || a >= sched.NumActions {
			return sched.Gradients{}, fmt.Errorf("action %d at step %d out of range", a, t)
		}
		x := inputs[t]
		advantage := returns[t] - values[t]
		tdLoss += advantage * advantage

		probs := ac.softmax(x)
		entropy := sched.Entropy(probs)
		for k := 0; k < rows; k++ {
			indicator := 0.0
			if k == a {
				indicator = 1
			}
			// d(loss)/d(logit_k) for loss = -log π(a)·A - β·H(π)
			dz := -advantage * (indicator - probs[k])
			if probs[k] > 0 {
				dz += ac.cfg.EntropyWeight * probs[k] * (math.Log(probs[k]) + entropy)
			}
			row := actorGrad.RawRowView(k)
			for j := 0; j < cols; j++ {
				row[j] += dz * x.AtVec(j)
			}
		}
		// d(loss)/d(w) for loss = (R - V)²
		criticGrad.AddScaledVec(criticGrad, -2*advantage, x)
	}

	scale := 1 / float64(n)
	actorGrad.Scale(scale, actorGrad)
	criticGrad.ScaleVec(scale, criticGrad)

	grads := sched.Gradients{
		Actor:  append([]float64(nil), actorGrad.RawMatrix().Data...),
		Critic: append([]float64(nil), criticGrad.RawVector().Data...),
		TDLoss: tdLoss * scale,
	}
	for _, g := range [][]float64{grads.Actor, grads.Critic} {
		for _, v := range g {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return sched.Gradients{}, fmt.Errorf("non-finite gradient")
			}
		}
	}
	return grads, nil
}

// ApplyGradients takes one descent step on each network.
func (ac *ActorCritic) ApplyGradients(g sched.Gradients) error {
	rows, cols := ac.actor.Dims()
	if len(g.Actor) != rows*cols {
		return fmt.Errorf("actor gradient has %d values, want %d", len(g.Actor), rows*cols)
	}
	if len(g.Critic) != ac.critic.Len() {
		return fmt.Errorf("critic gradient has %d values, want %d", len(g.Critic), ac.critic.Len())
	}
	var step mat.Dense
	step.Scale(ac.cfg.ActorLearningRate, mat.NewDense(rows, cols, g.Actor))
	ac.actor.Sub(ac.actor, &step)
	ac.critic.AddScaledVec(ac.critic, -ac.cfg.CriticLearningRate, mat.NewVecDense(len(g.Critic), g.Critic))
	return nil
}

// checkpoint is the on-disk form of the model.
type checkpoint struct {
	Epoch         int         `yaml:"epoch"`
	HistoryLength int         `yaml:"history_length"`
	Actor         [][]float64 `yaml:"actor"`
	Critic        []float64   `yaml:"critic"`
}

// CheckpointPath returns the file a checkpoint for epoch is written to.
func CheckpointPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("nn_model_ep_%d.yaml", epoch))
}

// Checkpoint writes the weights to CheckpointDir. A no-op if no directory is configured.
func (ac *ActorCritic) Checkpoint(epoch int) error {
	if ac.cfg.CheckpointDir == "" {
		return nil
	}
	if err := os.MkdirAll(ac.cfg.CheckpointDir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}
	rows, _ := ac.actor.Dims()
	cp := checkpoint{
		Epoch:         epoch,
		HistoryLength: ac.historyLength,
		Critic:        append([]float64(nil), ac.critic.RawVector().Data...),
	}
	for i := 0; i < rows; i++ {
		cp.Actor = append(cp.Actor, append([]float64(nil), ac.actor.RawRowView(i)...))
	}
	data, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	path := CheckpointPath(ac.cfg.CheckpointDir, epoch)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	logrus.Debugf("Model saved in file: %s", path)
	return nil
}

// LoadCheckpoint replaces the weights with those stored at path.
func (ac *ActorCritic) LoadCheckpoint(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp checkpoint
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("parsing checkpoint %s: %w", path, err)
	}
	if cp.HistoryLength != ac.historyLength {
		return fmt.Errorf("checkpoint %s has history length %d, model expects %d", path, cp.HistoryLength, ac.historyLength)
	}
	rows, cols := ac.actor.Dims()
	if len(cp.Actor) != rows || len(cp.Critic) != cols {
		return fmt.Errorf("checkpoint %s has wrong shape", path)
	}
	for i, row := range cp.Actor {
		if len(row) != cols {
			return fmt.Errorf("checkpoint %s: actor row %d has %d weights, want %d", path, i, len(row), cols)
		}
		ac.actor.SetRow(i, row)
	}
	ac.critic = mat.NewVecDense(cols, append([]float64(nil), cp.Critic...))
	logrus.Infof("Restored model from %s (epoch %d)", path, cp.Epoch)
	return nil
}
