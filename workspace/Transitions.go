package workspace

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// Transitions is the adjacent-pair view of a Workspace. For every
// channel it holds a tensor of shape [2, n, featureDims...] where
// entry [0, i] is the channel's value at the first step of transition
// i and entry [1, i] its value at the following step. Loss
// computations consume this view instead of the raw per-step tensors.
type Transitions struct {
	channels map[string]*tensor.Dense
	n        int
}

// Transitions builds the adjacent-pair view of the Workspace. Each
// pair (t, t+1) of consecutive time steps contributes one transition
// per batch slot; the last time step has no successor and is dropped.
// If the env/done channel is present, pairs whose first step ended an
// episode are removed, so no transition spans an auto-reset boundary.
//
// All channels must have the same number of time steps.
func (w *Workspace) Transitions() (*Transitions, error) {
	names := w.Channels()
	if len(names) == 0 {
		return nil, fmt.Errorf("transitions: empty workspace")
	}

	T := w.Len(names[0])
	for _, name := range names[1:] {
		if w.Len(name) != T {
			return nil, fmt.Errorf("transitions: channel %q has %d time "+
				"steps, channel %q has %d", names[0], T, name, w.Len(name))
		}
	}
	if T < 2 {
		return nil, fmt.Errorf("transitions: need at least 2 time steps, "+
			"have %d", T)
	}
	batch := w.BatchSize()

	// One index pair per kept transition, time-major.
	type pair struct{ t, b int }
	kept := make([]pair, 0, (T-1)*batch)
	for t := 0; t < T-1; t++ {
		var done []bool
		if w.Len(DoneChannel) > 0 {
			dv, err := w.Get(DoneChannel, t)
			if err != nil {
				return nil, fmt.Errorf("transitions: %v", err)
			}
			done = Bools(dv)
		}
		for b := 0; b < batch; b++ {
			if done != nil && done[b] {
				continue
			}
			kept = append(kept, pair{t, b})
		}
	}

	channels := make(map[string]*tensor.Dense, len(names))
	for _, name := range names {
		steps := w.channels[name]
		featSize := steps[0].Shape().TotalSize() / batch
		featShape := steps[0].Shape()[1:]
		outShape := append([]int{2, len(kept)}, featShape...)

		switch steps[0].Dtype() {
		case tensor.Float64:
			out := make([]float64, 2*len(kept)*featSize)
			for i, p := range kept {
				first := Float64s(steps[p.t])
				second := Float64s(steps[p.t+1])
				copy(out[i*featSize:], first[p.b*featSize:(p.b+1)*featSize])
				copy(out[(len(kept)+i)*featSize:],
					second[p.b*featSize:(p.b+1)*featSize])
			}
			channels[name] = tensor.New(tensor.WithShape(outShape...),
				tensor.WithBacking(out))

		case tensor.Bool:
			out := make([]bool, 2*len(kept)*featSize)
			for i, p := range kept {
				first := Bools(steps[p.t])
				second := Bools(steps[p.t+1])
				copy(out[i*featSize:], first[p.b*featSize:(p.b+1)*featSize])
				copy(out[(len(kept)+i)*featSize:],
					second[p.b*featSize:(p.b+1)*featSize])
			}
			channels[name] = tensor.New(tensor.WithShape(outShape...),
				tensor.WithBacking(out))
		}
	}

	return &Transitions{channels: channels, n: len(kept)}, nil
}

// Get returns the pair tensor for channel, with shape
// [2, n, featureDims...].
func (tr *Transitions) Get(channel string) (*tensor.Dense, error) {
	v, ok := tr.channels[channel]
	if !ok {
		return nil, fmt.Errorf("get: missing entry: no channel %q", channel)
	}
	return v, nil
}

// Len returns the number of transitions n in the view.
func (tr *Transitions) Len() int {
	return tr.n
}

// Channels returns the channel names present in the view in sorted
// order.
func (tr *Transitions) Channels() []string {
	names := make([]string, 0, len(tr.channels))
	for name := range tr.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rows splits a pair tensor into its first-step and second-step rows,
// each with shape [n, featureDims...].
func Rows(pairs *tensor.Dense) (first, second *tensor.Dense, err error) {
	shape := pairs.Shape()
	if len(shape) < 2 || shape[0] != 2 {
		return nil, nil, fmt.Errorf("rows: not a pair tensor: shape %v",
			shape)
	}
	rowShape := shape[1:]
	half := rowShape.TotalSize()

	switch pairs.Dtype() {
	case tensor.Float64:
		data := Float64s(pairs)
		first = tensor.New(tensor.WithShape(rowShape...),
			tensor.WithBacking(append([]float64{}, data[:half]...)))
		second = tensor.New(tensor.WithShape(rowShape...),
			tensor.WithBacking(append([]float64{}, data[half:]...)))
	case tensor.Bool:
		data := Bools(pairs)
		first = tensor.New(tensor.WithShape(rowShape...),
			tensor.WithBacking(append([]bool{}, data[:half]...)))
		second = tensor.New(tensor.WithShape(rowShape...),
			tensor.WithBacking(append([]bool{}, data[half:]...)))
	default:
		return nil, nil, fmt.Errorf("rows: unsupported dtype %v",
			pairs.Dtype())
	}
	return first, second, nil
}
