// Package gae implements generalized advantage estimation - GAE(λ) -
// following https://arxiv.org/abs/1506.02438 over batched, multi-step
// value and reward tensors.
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/workspace"
)

// Estimate computes GAE(λ) advantages from batched value estimates.
//
// The value tensor has shape [T, batch]: one state-value estimate per
// time step per batch slot. The reward and mustBootstrap tensors have
// shape [T-1, batch]: reward[t] is the reward received on the
// transition from step t to step t+1, and mustBootstrap[t] reports
// whether the value estimate at step t+1 may propagate backwards
// through that transition. mustBootstrap is false exactly at true
// termination, where both the bootstrap term and the backward
// recursion must be cut so that value estimates cannot leak across
// episode boundaries.
//
// The returned advantages have shape [T-1, batch] with
//
//	δ_t = r_t + γ·V_{t+1}·mb_t − V_t
//	A_t = δ_t + γλ·mb_t·A_{t+1}
//
// With λ=1 this is the discounted Monte-Carlo advantage, with λ=0 the
// one-step TD residual. Estimate is a pure function: its inputs are
// left untouched.
func Estimate(value, reward, mustBootstrap *tensor.Dense, gamma,
	lambda float64) (*tensor.Dense, error) {
	vShape := value.Shape()
	if len(vShape) != 2 {
		return nil, fmt.Errorf("estimate: value must have shape "+
			"[T, batch], got %v", vShape)
	}
	T, batch := vShape[0], vShape[1]
	if T < 2 {
		return nil, fmt.Errorf("estimate: need at least 2 time steps of "+
			"values, have %d", T)
	}
	if !reward.Shape().Eq(tensor.Shape{T - 1, batch}) {
		return nil, fmt.Errorf("estimate: reward shape \n\twant(%v)"+
			"\n\thave(%v)", tensor.Shape{T - 1, batch}, reward.Shape())
	}
	if !mustBootstrap.Shape().Eq(tensor.Shape{T - 1, batch}) {
		return nil, fmt.Errorf("estimate: mustBootstrap shape \n\twant(%v)"+
			"\n\thave(%v)", tensor.Shape{T - 1, batch},
			mustBootstrap.Shape())
	}
	if mustBootstrap.Dtype() != tensor.Bool {
		return nil, fmt.Errorf("estimate: mustBootstrap must be a Bool "+
			"tensor, got %v", mustBootstrap.Dtype())
	}

	v := workspace.Float64s(value)
	r := workspace.Float64s(reward)
	mb := workspace.Bools(mustBootstrap)

	adv := make([]float64, (T-1)*batch)
	for t := T - 2; t >= 0; t-- {
		for b := 0; b < batch; b++ {
			i := t*batch + b

			var bootstrap float64
			if mb[i] {
				bootstrap = gamma * v[(t+1)*batch+b]
			}
			delta := r[i] + bootstrap - v[t*batch+b]

			adv[i] = delta
			if mb[i] && t < T-2 {
				adv[i] += gamma * lambda * adv[(t+1)*batch+b]
			}
		}
	}

	return tensor.New(tensor.WithShape(T-1, batch),
		tensor.WithBacking(adv)), nil
}

// MustBootstrap computes the bootstrap mask ¬done ∨ truncated
// elementwise. A value estimate propagates past a step unless the
// step truly terminated the episode: an episode cut by a time limit
// while still alive keeps bootstrapping.
func MustBootstrap(done, truncated *tensor.Dense) (*tensor.Dense, error) {
	if !done.Shape().Eq(truncated.Shape()) {
		return nil, fmt.Errorf("mustbootstrap: shape mismatch \n\twant(%v)"+
			"\n\thave(%v)", done.Shape(), truncated.Shape())
	}
	if done.Dtype() != tensor.Bool || truncated.Dtype() != tensor.Bool {
		return nil, fmt.Errorf("mustbootstrap: done and truncated must be "+
			"Bool tensors")
	}

	d := workspace.Bools(done)
	tr := workspace.Bools(truncated)
	out := make([]bool, len(d))
	for i := range d {
		out[i] = !d[i] || tr[i]
	}
	return tensor.New(tensor.WithShape(done.Shape()...),
		tensor.WithBacking(out)), nil
}

// Normalize returns the advantages standardized to mean 0 and standard
// deviation 1. A non-nil weights slice weights each entry's
// contribution to the statistics, and entries with weight 0 are zeroed
// in the output rather than standardized; callers use this to keep
// masked transitions out of a loss. A small constant is added to the
// deviation so that a constant advantage signal does not divide by
// zero.
func Normalize(adv *tensor.Dense, weights []float64) *tensor.Dense {
	data := workspace.Float64s(adv)
	mean := stat.Mean(data, weights)
	std := stat.StdDev(data, weights) + 1e-8

	out := make([]float64, len(data))
	for i, v := range data {
		if weights != nil && weights[i] == 0 {
			continue
		}
		out[i] = (v - mean) / std
	}
	return tensor.New(tensor.WithShape(adv.Shape()...),
		tensor.WithBacking(out))
}
