// Package workspace implements the time-indexed tensor store that
// agents read from and write to during a rollout.
//
// A Workspace maps channel names to ordered sequences of batched
// tensors, one tensor per time step. Every tensor in a channel has the
// same shape [batchSize, featureDims...], and every channel in a
// Workspace shares the same batch size. Time steps must be written in
// order: writing time step t requires that steps 0..t-1 of the channel
// already exist.
package workspace

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// Workspace stores batched tensors by channel name and time step. A
// Workspace is owned by exactly one rollout at a time and is not safe
// for concurrent mutation.
type Workspace struct {
	channels map[string][]*tensor.Dense
}

// New returns a new, empty Workspace.
func New() *Workspace {
	return &Workspace{channels: make(map[string][]*tensor.Dense)}
}

// Set writes v as the value of channel at time step t. The first write
// to a channel fixes its shape and dtype; later writes must match.
// Writing at t == Len(channel) appends a new time step. Writing at an
// earlier t replaces the stored value, which callers use to re-score
// an existing step, never to skip ahead: t > Len(channel) is an error.
func (w *Workspace) Set(channel string, t int, v *tensor.Dense) error {
	if v == nil {
		return fmt.Errorf("set: nil tensor for channel %q", channel)
	}
	if t < 0 {
		return fmt.Errorf("set: negative time step %d", t)
	}
	if dt := v.Dtype(); dt != tensor.Float64 && dt != tensor.Bool {
		return fmt.Errorf("set: channel %q: unsupported dtype %v", channel, dt)
	}

	steps := w.channels[channel]
	if t > len(steps) {
		return fmt.Errorf("set: channel %q: cannot write time step %d "+
			"before steps %d..%d exist", channel, t, len(steps), t-1)
	}

	if len(steps) > 0 {
		if err := w.matchChannel(channel, steps[0], v); err != nil {
			return fmt.Errorf("set: %v", err)
		}
	} else if err := w.matchBatch(channel, v); err != nil {
		return fmt.Errorf("set: %v", err)
	}

	if t == len(steps) {
		w.channels[channel] = append(steps, v)
	} else {
		steps[t] = v
	}
	return nil
}

// Get returns the value of channel at time step t. Reading an unset
// entry is an error.
func (w *Workspace) Get(channel string, t int) (*tensor.Dense, error) {
	steps, ok := w.channels[channel]
	if !ok {
		return nil, fmt.Errorf("get: missing entry: no channel %q", channel)
	}
	if t < 0 || t >= len(steps) {
		return nil, fmt.Errorf("get: missing entry: channel %q has no "+
			"time step %d", channel, t)
	}
	return steps[t], nil
}

// Len returns the number of time steps written to channel. A channel
// that was never written has length 0.
func (w *Workspace) Len(channel string) int {
	return len(w.channels[channel])
}

// TimeSize returns the largest number of time steps written to any
// channel.
func (w *Workspace) TimeSize() int {
	max := 0
	for _, steps := range w.channels {
		if len(steps) > max {
			max = len(steps)
		}
	}
	return max
}

// BatchSize returns the shared batch size of the stored channels, or 0
// if the Workspace is empty.
func (w *Workspace) BatchSize() int {
	for _, steps := range w.channels {
		if len(steps) > 0 {
			return steps[0].Shape()[0]
		}
	}
	return 0
}

// Channels returns the names of all written channels in sorted order.
func (w *Workspace) Channels() []string {
	names := make([]string, 0, len(w.channels))
	for name := range w.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Slice returns the full sequence of channel stacked along a new
// leading time axis, with shape [T, batchSize, featureDims...].
func (w *Workspace) Slice(channel string) (*tensor.Dense, error) {
	steps, ok := w.channels[channel]
	if !ok || len(steps) == 0 {
		return nil, fmt.Errorf("slice: missing entry: no channel %q", channel)
	}
	stacked, err := stack(steps)
	if err != nil {
		return nil, fmt.Errorf("slice: channel %q: %v", channel, err)
	}
	return stacked, nil
}

// CopyNLastSteps replaces the contents of the Workspace with only the
// last n time steps of every channel, re-indexed to start at time 0.
// Consecutive rollout segments use this to continue a trajectory
// without re-simulating from the episode start.
func (w *Workspace) CopyNLastSteps(n int) error {
	if n < 0 {
		return fmt.Errorf("copynlaststeps: negative step count %d", n)
	}
	for _, name := range w.Channels() {
		steps := w.channels[name]
		if len(steps) < n {
			return fmt.Errorf("copynlaststeps: channel %q has %d < %d "+
				"time steps", name, len(steps), n)
		}
		kept := make([]*tensor.Dense, n)
		copy(kept, steps[len(steps)-n:])
		w.channels[name] = kept
	}
	return nil
}

// ZeroGrad detaches every stored tensor from any computation state that
// produced it by replacing it with a copy that owns its backing array.
// Values are preserved exactly; only aliasing with graph-owned memory
// is severed, so a new rollout segment cannot reach back into the
// previous optimizer step.
func (w *Workspace) ZeroGrad() {
	for name, steps := range w.channels {
		for t, v := range steps {
			w.channels[name][t] = v.Clone().(*tensor.Dense)
		}
	}
}

// Clear removes all channels and time steps from the Workspace.
func (w *Workspace) Clear() {
	w.channels = make(map[string][]*tensor.Dense)
}

// matchChannel verifies that v has the shape and dtype fixed by the
// first write to the channel.
func (w *Workspace) matchChannel(channel string, first,
	v *tensor.Dense) error {
	if !v.Shape().Eq(first.Shape()) {
		return fmt.Errorf("channel %q: shape mismatch \n\twant(%v)"+
			"\n\thave(%v)", channel, first.Shape(), v.Shape())
	}
	if v.Dtype() != first.Dtype() {
		return fmt.Errorf("channel %q: dtype mismatch \n\twant(%v)"+
			"\n\thave(%v)", channel, first.Dtype(), v.Dtype())
	}
	return nil
}

// matchBatch verifies that the first write to a new channel agrees
// with the batch size shared by the existing channels.
func (w *Workspace) matchBatch(channel string, v *tensor.Dense) error {
	batch := w.BatchSize()
	if batch == 0 {
		return nil
	}
	if v.Shape()[0] != batch {
		return fmt.Errorf("channel %q: batch size mismatch \n\twant(%v)"+
			"\n\thave(%v)", channel, batch, v.Shape()[0])
	}
	return nil
}

// stack concatenates time steps of a single channel along a new
// leading axis.
func stack(steps []*tensor.Dense) (*tensor.Dense, error) {
	shape := steps[0].Shape()
	outShape := append([]int{len(steps)}, shape...)

	switch steps[0].Dtype() {
	case tensor.Float64:
		backing := make([]float64, 0, len(steps)*shape.TotalSize())
		for _, s := range steps {
			backing = append(backing, Float64s(s)...)
		}
		return tensor.New(tensor.WithShape(outShape...),
			tensor.WithBacking(backing)), nil

	case tensor.Bool:
		backing := make([]bool, 0, len(steps)*shape.TotalSize())
		for _, s := range steps {
			backing = append(backing, Bools(s)...)
		}
		return tensor.New(tensor.WithShape(outShape...),
			tensor.WithBacking(backing)), nil
	}
	return nil, fmt.Errorf("stack: unsupported dtype %v", steps[0].Dtype())
}

// Float64s returns the elements of a Float64 tensor as a flat slice.
// Single-element tensors are unwrapped from their scalar
// representation.
func Float64s(t *tensor.Dense) []float64 {
	if data, ok := t.Data().([]float64); ok {
		return data
	}
	return []float64{t.Data().(float64)}
}

// Bools returns the elements of a Bool tensor as a flat slice.
func Bools(t *tensor.Dense) []bool {
	if data, ok := t.Data().([]bool); ok {
		return data
	}
	return []bool{t.Data().(bool)}
}
