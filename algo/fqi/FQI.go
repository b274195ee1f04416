// Package fqi implements fitted Q iteration with a replay buffer and a
// periodically synchronized target network. Each training step drains
// the transitions of a completed rollout segment into the buffer, then
// fits the action-value network to one-step bootstrap targets computed
// with the target network.
package fqi

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent/critics"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/solver"
	"github.com/samuelfneumann/gorollout/utils/floatutils"
	"github.com/samuelfneumann/gorollout/workspace"
)

// Config holds the hyperparameters of an FQI update.
type Config struct {
	Gamma           float64       `yaml:"gamma"`
	BatchSize       int           `yaml:"batch_size"`
	UpdatesPerStep  int           `yaml:"updates_per_step"`
	TargetSyncEvery int           `yaml:"target_sync_every"`
	Capacity        int           `yaml:"capacity"`
	Solver          solver.Config `yaml:"solver"`
}

// FQI updates a discrete action-value critic from replayed
// transitions. The critic's rollout network receives the fitted
// weights after every training step, so an epsilon-greedy selector
// reading its action values acts on the newest estimates.
type FQI struct {
	config Config
	critic *critics.DiscreteQ

	actions int
	obsDim  int
	buffer  *replay
	updates int

	trainQ   network.NeuralNet
	selected *G.Node
	targets  *G.Node
	loss     G.Value
	vm       G.VM
	solver   G.Solver

	targetQ  network.NeuralNet
	targetVM G.VM
}

// New returns an FQI updater. The replay buffer's sampling stream is
// seeded with seed.
func New(config Config, critic *critics.DiscreteQ,
	seed uint64) (*FQI, error) {
	if config.BatchSize < 1 {
		return nil, fmt.Errorf("new: batch size must be positive, "+
			"got %d", config.BatchSize)
	}
	if config.UpdatesPerStep < 1 {
		return nil, fmt.Errorf("new: need at least 1 update per step, "+
			"got %d", config.UpdatesPerStep)
	}
	if config.TargetSyncEvery < 1 {
		return nil, fmt.Errorf("new: target network must sync at least "+
			"every 1 update, got %d", config.TargetSyncEvery)
	}

	buffer, err := newReplay(config.Capacity, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	f := &FQI{
		config:  config,
		critic:  critic,
		actions: critic.Network().Outputs(),
		obsDim:  critic.Network().Features(),
		buffer:  buffer,
	}
	if err := f.buildGraphs(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return f, nil
}

// buildGraphs clones the critic network into a training network with a
// regression loss and a target network used only for computing
// bootstrap targets.
func (f *FQI) buildGraphs() error {
	trainQ, err := f.critic.Network().CloneWithBatch(f.config.BatchSize)
	if err != nil {
		return fmt.Errorf("could not clone training network: %v", err)
	}
	graph := trainQ.Graph()

	f.selected = G.NewMatrix(graph, tensor.Float64,
		G.WithShape(f.config.BatchSize, f.actions),
		G.WithName("selectedActions"))
	f.targets = G.NewVector(graph, tensor.Float64,
		G.WithShape(f.config.BatchSize), G.WithName("targets"))

	// Value of the taken action per batch row
	qSelected := G.Must(G.Sum(G.Must(G.HadamardProd(
		trainQ.Prediction(), f.selected)), 1))

	loss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(qSelected,
		f.targets))))))
	G.Read(loss, &f.loss)

	if _, err := G.Grad(loss, trainQ.Learnables()...); err != nil {
		return fmt.Errorf("could not differentiate loss: %v", err)
	}

	f.trainQ = trainQ
	f.vm = G.NewTapeMachine(graph,
		G.BindDualValues(trainQ.Learnables()...))
	f.solver, err = f.config.Solver.Create(f.config.BatchSize)
	if err != nil {
		return fmt.Errorf("could not create solver: %v", err)
	}

	targetQ, err := f.critic.Network().CloneWithBatch(f.config.BatchSize)
	if err != nil {
		return fmt.Errorf("could not clone target network: %v", err)
	}
	f.targetQ = targetQ
	f.targetVM = G.NewTapeMachine(targetQ.Graph())
	return nil
}

// Step drains the transitions of the completed rollout segment in ws
// into the replay buffer and performs UpdatesPerStep fitting updates.
// It returns the loss of the final update, or 0 before the buffer
// holds a full batch.
func (f *FQI) Step(ws *workspace.Workspace) (float64, error) {
	if err := f.drain(ws); err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	if f.buffer.size() < f.config.BatchSize {
		return 0, nil
	}

	for i := 0; i < f.config.UpdatesPerStep; i++ {
		if err := f.fit(); err != nil {
			return 0, fmt.Errorf("step: update %d: %v", i, err)
		}

		f.updates++
		if f.updates%f.config.TargetSyncEvery == 0 {
			if err := f.targetQ.Set(f.trainQ); err != nil {
				return 0, fmt.Errorf("step: could not sync target "+
					"network: %v", err)
			}
		}
	}

	if err := f.critic.SetWeights(f.trainQ); err != nil {
		return 0, fmt.Errorf("step: could not push critic weights: %v",
			err)
	}
	return f.loss.Data().(float64), nil
}

// drain converts the workspace's adjacent-pair view into stored
// transitions. Pairs that span an auto-reset boundary were already
// dropped by the view.
func (f *FQI) drain(ws *workspace.Workspace) error {
	view, err := ws.Transitions()
	if err != nil {
		return err
	}

	obsPairs, err := view.Get(workspace.ObsChannel)
	if err != nil {
		return err
	}
	obsFirst, obsSecond, err := workspace.Rows(obsPairs)
	if err != nil {
		return err
	}

	actionPairs, err := view.Get(workspace.ActionChannel)
	if err != nil {
		return err
	}
	actionFirst, _, err := workspace.Rows(actionPairs)
	if err != nil {
		return err
	}

	rewardPairs, err := view.Get(workspace.RewardChannel)
	if err != nil {
		return err
	}
	_, rewardSecond, err := workspace.Rows(rewardPairs)
	if err != nil {
		return err
	}

	donePairs, err := view.Get(workspace.DoneChannel)
	if err != nil {
		return err
	}
	_, doneSecond, err := workspace.Rows(donePairs)
	if err != nil {
		return err
	}

	truncatedPairs, err := view.Get(workspace.TruncatedChannel)
	if err != nil {
		return err
	}
	_, truncatedSecond, err := workspace.Rows(truncatedPairs)
	if err != nil {
		return err
	}

	obs := workspace.Float64s(obsFirst)
	nextObs := workspace.Float64s(obsSecond)
	actions := workspace.Float64s(actionFirst)
	rewards := workspace.Float64s(rewardSecond)
	done := workspace.Bools(doneSecond)
	truncated := workspace.Bools(truncatedSecond)

	for i := 0; i < view.Len(); i++ {
		action := int(actions[i])
		if action < 0 || action >= f.actions {
			return fmt.Errorf("drain: stored action %d out of range "+
				"[0, %d)", action, f.actions)
		}
		f.buffer.add(transition{
			obs: append([]float64{},
				obs[i*f.obsDim:(i+1)*f.obsDim]...),
			nextObs: append([]float64{},
				nextObs[i*f.obsDim:(i+1)*f.obsDim]...),
			action:        action,
			reward:        rewards[i],
			mustBootstrap: !done[i] || truncated[i],
		})
	}
	return nil
}

// fit performs one regression update on a sampled minibatch.
func (f *FQI) fit() error {
	batch, err := f.buffer.sample(f.config.BatchSize)
	if err != nil {
		return err
	}

	// Bootstrap targets from the target network's value of the best
	// next action
	nextObs := make([]float64, f.config.BatchSize*f.obsDim)
	for i, tr := range batch {
		copy(nextObs[i*f.obsDim:], tr.nextObs)
	}
	if err := f.targetQ.SetInput(nextObs); err != nil {
		return err
	}
	f.targetVM.Reset()
	if err := f.targetVM.RunAll(); err != nil {
		return fmt.Errorf("could not run target network: %v", err)
	}
	nextValues := workspace.Float64s(f.targetQ.Output().(*tensor.Dense))

	obs := make([]float64, f.config.BatchSize*f.obsDim)
	targets := make([]float64, f.config.BatchSize)
	selected := make([]float64, f.config.BatchSize*f.actions)
	for i, tr := range batch {
		copy(obs[i*f.obsDim:], tr.obs)
		selected[i*f.actions+tr.action] = 1

		targets[i] = tr.reward
		if tr.mustBootstrap {
			row := nextValues[i*f.actions : (i+1)*f.actions]
			targets[i] += f.config.Gamma * floatutils.Max(row...)
		}
	}

	if err := f.trainQ.SetInput(obs); err != nil {
		return err
	}
	err = G.Let(f.selected, tensor.New(
		tensor.WithShape(f.config.BatchSize, f.actions),
		tensor.WithBacking(selected)))
	if err != nil {
		return fmt.Errorf("could not set actions: %v", err)
	}
	err = G.Let(f.targets, tensor.New(
		tensor.WithShape(f.config.BatchSize),
		tensor.WithBacking(targets)))
	if err != nil {
		return fmt.Errorf("could not set targets: %v", err)
	}

	f.vm.Reset()
	if err := f.vm.RunAll(); err != nil {
		return fmt.Errorf("could not run update: %v", err)
	}
	if err := f.solver.Step(f.trainQ.Model()); err != nil {
		return fmt.Errorf("could not step solver: %v", err)
	}
	return nil
}
