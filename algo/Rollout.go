// Package algo implements training algorithms that consume completed
// rollout segments. The package root holds the training view shared by
// the policy-gradient algorithms: flattened rollout channels together
// with advantage estimates and value targets.
package algo

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/gae"
	"github.com/samuelfneumann/gorollout/workspace"
)

// Rollout is a training view of a completed workspace segment holding
// T time steps of a batch of size Batch. Slices are row-major over
// [time, slot, feature]. Fields derived from transitions (Advantages,
// Targets) cover the first T-1 time steps only, since the final step
// has no successor to learn from.
type Rollout struct {
	Steps  int
	Batch  int
	ObsDim int

	Obs      []float64 // [T * Batch * ObsDim]
	Actions  []float64 // [T * Batch * actionDims]
	Rewards  []float64 // [T * Batch]
	Values   []float64 // [T * Batch]
	LogProbs []float64 // [T * Batch]

	Advantages []float64 // [(T-1) * Batch]
	Targets    []float64 // [(T-1) * Batch], value regression targets

	// Mask is 1 for real transitions and 0 for pairs whose first step
	// ends an episode. Such a pair joins a terminal observation to the
	// next episode's first step, and the action stored on it was never
	// executed, so it must not reach a loss. Masked rows carry a zero
	// advantage and a zero value-target delta; anything else row-shaped
	// that a caller feeds to a fixed-size loss graph must be zeroed with
	// this mask.
	Mask []float64 // [(T-1) * Batch]
}

// Extract builds the training view of ws. The workspace must hold the
// observation, reward, done, truncated, action, action log-probability,
// and state-value channels, all of the same length. Advantages are
// GAE(λ) estimates, normalized to zero mean and unit deviation when
// normalize is set; value targets are the advantage plus the stored
// value estimate.
func Extract(ws *workspace.Workspace, gamma, lambda float64,
	normalize bool) (*Rollout, error) {
	T := ws.Len(workspace.ObsChannel)
	if T < 2 {
		return nil, fmt.Errorf("extract: need at least 2 time steps, "+
			"have %d", T)
	}
	batch := ws.BatchSize()

	obs, err := ws.Slice(workspace.ObsChannel)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}
	obsDim := obs.Shape()[len(obs.Shape())-1]

	actions, err := ws.Slice(workspace.ActionChannel)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}
	rewards, err := ws.Slice(workspace.RewardChannel)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}
	values, err := ws.Slice(workspace.VValueChannel)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}
	logProbs, err := ws.Slice(workspace.ActionLogProbsChannel)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}
	done, err := ws.Slice(workspace.DoneChannel)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}
	truncated, err := ws.Slice(workspace.TruncatedChannel)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}

	for _, channel := range []string{workspace.ActionChannel,
		workspace.RewardChannel, workspace.VValueChannel,
		workspace.ActionLogProbsChannel, workspace.DoneChannel,
		workspace.TruncatedChannel} {
		if ws.Len(channel) != T {
			return nil, fmt.Errorf("extract: channel %q has %d time "+
				"steps, expected %d", channel, ws.Len(channel), T)
		}
	}

	// The reward and episode-boundary flags entering step t+1 drive the
	// advantage of step t
	rewardData := workspace.Float64s(rewards)
	doneData := workspace.Bools(done)
	truncatedData := workspace.Bools(truncated)

	transitionRewards := tensor.New(tensor.WithShape(T-1, batch),
		tensor.WithBacking(append([]float64{}, rewardData[batch:]...)))
	transitionDone := tensor.New(tensor.WithShape(T-1, batch),
		tensor.WithBacking(append([]bool{}, doneData[batch:]...)))
	transitionTruncated := tensor.New(tensor.WithShape(T-1, batch),
		tensor.WithBacking(append([]bool{}, truncatedData[batch:]...)))

	mustBootstrap, err := gae.MustBootstrap(transitionDone,
		transitionTruncated)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}

	valueData := workspace.Float64s(values)
	valueTensor := tensor.New(tensor.WithShape(T, batch),
		tensor.WithBacking(append([]float64{}, valueData...)))

	adv, err := gae.Estimate(valueTensor, transitionRewards,
		mustBootstrap, gamma, lambda)
	if err != nil {
		return nil, fmt.Errorf("extract: %v", err)
	}

	// Targets are computed before normalization so value regression
	// stays on the reward scale
	advData := workspace.Float64s(adv)
	targets := make([]float64, (T-1)*batch)
	for i := range targets {
		targets[i] = advData[i] + valueData[i]
	}

	// Pairs starting on a done step span a reset boundary; mask them
	// out of the loss. doneData[i] for i < (T-1)*batch is the done flag
	// of the pair's first step.
	mask := make([]float64, (T-1)*batch)
	for i := range mask {
		if doneData[i] {
			advData[i] = 0
			targets[i] = valueData[i]
		} else {
			mask[i] = 1
		}
	}

	if normalize {
		advData = workspace.Float64s(gae.Normalize(adv, mask))
	}

	return &Rollout{
		Steps:      T,
		Batch:      batch,
		ObsDim:     obsDim,
		Obs:        workspace.Float64s(obs),
		Actions:    workspace.Float64s(actions),
		Rewards:    rewardData,
		Values:     valueData,
		LogProbs:   workspace.Float64s(logProbs),
		Advantages: advData,
		Targets:    targets,
		Mask:       mask,
	}, nil
}

// Transitions returns the number of transition rows in the rollout.
func (r *Rollout) Transitions() int {
	return (r.Steps - 1) * r.Batch
}

// TransitionObs returns the observations of the first T-1 time steps,
// the rows that advantage estimates and value targets exist for.
func (r *Rollout) TransitionObs() []float64 {
	return r.Obs[:r.Transitions()*r.ObsDim]
}

// OneHotActions one-hot encodes the transition-row actions, with the
// rows of masked transitions zeroed so a fixed-size loss graph scores
// them as exactly zero.
func (r *Rollout) OneHotActions(numActions int) ([]float64, error) {
	encoded, err := OneHot(r.Actions[:r.Transitions()], numActions)
	if err != nil {
		return nil, err
	}
	for i, keep := range r.Mask {
		if keep == 0 {
			for a := 0; a < numActions; a++ {
				encoded[i*numActions+a] = 0
			}
		}
	}
	return encoded, nil
}

// OneHot encodes discrete actions stored as float64 indices into a
// one-hot matrix with one row per action.
func OneHot(actions []float64, numActions int) ([]float64, error) {
	out := make([]float64, len(actions)*numActions)
	for i, a := range actions {
		idx := int(a)
		if idx < 0 || idx >= numActions {
			return nil, fmt.Errorf("onehot: action %v out of range [0, %d)",
				a, numActions)
		}
		out[i*numActions+idx] = 1
	}
	return out, nil
}
