// Package actors implements policy agents. An actor reads the current
// observation from the workspace and writes an action, the action's
// log-probability under the policy, and optionally the policy
// entropy. When re-scoring is requested, an actor instead reads the
// action already stored at the time step and writes its
// log-probability under the actor's current weights, which is how
// off-policy updates score old rollouts without re-simulating them.
package actors

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/sampleuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/utils/floatutils"
	"github.com/samuelfneumann/gorollout/workspace"
)

// Discrete is a softmax policy over a discrete action set. Its network
// maps a batch of observations to one logit per action.
type Discrete struct {
	policy  network.NeuralNet
	vm      G.VM
	actions int
	batch   int
	rng     *rand.Rand
	seed    uint64
}

// Compile-time interface checks
var (
	_ agent.Agent  = (*Discrete)(nil)
	_ agent.Seeder = (*Discrete)(nil)
	_ agent.Writer = (*Discrete)(nil)
)

// NewDiscrete returns a Discrete actor using policy to produce action
// logits. The policy's graph must hold nothing but the policy, since
// the actor runs the whole graph each step.
func NewDiscrete(policy network.NeuralNet, seed uint64) (*Discrete, error) {
	if policy.Outputs() < 2 {
		return nil, fmt.Errorf("newdiscrete: policy predicts %d < 2 "+
			"action logits", policy.Outputs())
	}

	d := &Discrete{
		policy:  policy,
		vm:      G.NewTapeMachine(policy.Graph()),
		actions: policy.Outputs(),
		batch:   policy.BatchSize(),
	}
	d.Seed(seed)
	return d, nil
}

// Seed fixes the actor's action sampling stream.
func (d *Discrete) Seed(seed uint64) {
	d.seed = seed
	d.rng = rand.New(rand.NewSource(seed))
}

// Network returns the actor's policy network.
func (d *Discrete) Network() network.NeuralNet { return d.policy }

// SetWeights copies the weights of source into the actor's policy.
// Training loops use this to push updated weights from a training
// graph back into the rollout policy.
func (d *Discrete) SetWeights(source network.NeuralNet) error {
	return d.policy.Set(source)
}

// WrittenChannels lists every channel the actor may write.
func (d *Discrete) WrittenChannels() []string {
	return []string{
		workspace.ActionChannel,
		workspace.ActionLogProbsChannel,
		workspace.EntropyChannel,
		workspace.LogProbPredictChannel,
	}
}

// Forward runs the policy on the observation at time step t. Unless
// re-scoring was requested, it writes an action and the action's
// log-probability; sampled when opts.Stochastic, greedy otherwise.
// With opts.PredictProba it instead re-scores the action already
// stored at t. With opts.ComputeEntropy it also writes the policy
// entropy.
func (d *Discrete) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	logProbs, err := d.logProbs(ws, t)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	if opts.ComputeEntropy {
		entropy := make([]float64, d.batch)
		for i, row := range logProbs {
			for _, lp := range row {
				entropy[i] -= math.Exp(lp) * lp
			}
		}
		err := ws.Set(workspace.EntropyChannel, t,
			tensor.New(tensor.WithShape(d.batch),
				tensor.WithBacking(entropy)))
		if err != nil {
			return fmt.Errorf("forward: %v", err)
		}
	}

	if opts.PredictProba {
		return d.rescore(ws, t, logProbs)
	}
	return d.act(ws, t, logProbs, opts.Stochastic)
}

// logProbs runs the policy network and returns one row of action
// log-probabilities per batch slot.
func (d *Discrete) logProbs(ws *workspace.Workspace,
	t int) ([][]float64, error) {
	obs, err := ws.Get(workspace.ObsChannel, t)
	if err != nil {
		return nil, err
	}
	if err := d.policy.SetInput(workspace.Float64s(obs)); err != nil {
		return nil, err
	}

	d.vm.Reset()
	if err := d.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("could not run policy network: %v", err)
	}

	logits := workspace.Float64s(d.policy.Output().(*tensor.Dense))
	rows := make([][]float64, d.batch)
	for i := range rows {
		row := logits[i*d.actions : (i+1)*d.actions]

		// A NaN logit poisons every downstream statistic, so fail
		// loudly at the step that produced it
		for _, logit := range row {
			if math.IsNaN(logit) {
				return nil, fmt.Errorf("policy network produced NaN "+
					"logits for batch slot %d", i)
			}
		}

		max := floatutils.Max(row...)
		sumExp := 0.0
		for _, logit := range row {
			sumExp += math.Exp(logit - max)
		}
		logSumExp := max + math.Log(sumExp)

		rows[i] = make([]float64, d.actions)
		for a, logit := range row {
			rows[i][a] = logit - logSumExp
		}
	}
	return rows, nil
}

// act selects an action per slot and records it with its
// log-probability.
func (d *Discrete) act(ws *workspace.Workspace, t int,
	logProbs [][]float64, stochastic bool) error {
	actions := make([]float64, d.batch)
	selected := make([]float64, d.batch)

	for i, row := range logProbs {
		var action int
		if stochastic {
			probs := make([]float64, d.actions)
			for a, lp := range row {
				probs[a] = math.Exp(lp)
			}
			sampler := sampleuv.NewWeighted(probs, d.rng)
			choice, ok := sampler.Take()
			if !ok {
				return fmt.Errorf("act: could not sample an action for "+
					"batch slot %d", i)
			}
			action = choice
		} else {
			action = floatutils.ArgMax(d.rng, row...)
		}
		actions[i] = float64(action)
		selected[i] = row[action]
	}

	err := ws.Set(workspace.ActionChannel, t,
		tensor.New(tensor.WithShape(d.batch, 1),
			tensor.WithBacking(actions)))
	if err != nil {
		return fmt.Errorf("act: %v", err)
	}
	err = ws.Set(workspace.ActionLogProbsChannel, t,
		tensor.New(tensor.WithShape(d.batch),
			tensor.WithBacking(selected)))
	if err != nil {
		return fmt.Errorf("act: %v", err)
	}
	return nil
}

// rescore writes the log-probability of the action already stored at
// time step t under the actor's current weights.
func (d *Discrete) rescore(ws *workspace.Workspace, t int,
	logProbs [][]float64) error {
	stored, err := ws.Get(workspace.ActionChannel, t)
	if err != nil {
		return fmt.Errorf("rescore: %v", err)
	}

	actions := workspace.Float64s(stored)
	scored := make([]float64, d.batch)
	for i := range scored {
		action := int(actions[i])
		if action < 0 || action >= d.actions {
			return fmt.Errorf("rescore: stored action %d out of range "+
				"for batch slot %d", action, i)
		}
		scored[i] = logProbs[i][action]
	}

	err = ws.Set(workspace.LogProbPredictChannel, t,
		tensor.New(tensor.WithShape(d.batch),
			tensor.WithBacking(scored)))
	if err != nil {
		return fmt.Errorf("rescore: %v", err)
	}
	return nil
}
