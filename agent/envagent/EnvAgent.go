// Package envagent implements the environment drivers: agents that
// step a batch of independent environment instances and record their
// observations, rewards, and episode boundaries in the workspace.
//
// Both drivers write the same five channels each time step. They
// differ in what happens when a batch slot's episode ends: the
// auto-reset driver starts a fresh episode in the slot on the next
// step, while the no-auto-reset driver freezes the slot so evaluation
// returns are never contaminated by a following episode.
package envagent

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	env "github.com/samuelfneumann/gorollout/environment"
	"github.com/samuelfneumann/gorollout/workspace"
)

// slot holds one environment instance of the batch together with its
// driver-side episode state. Workspaces hold no hidden state, so
// everything needed to continue a trajectory across rollout segments
// lives here.
type slot struct {
	env env.Environment

	// needsReset marks an auto-reset slot whose episode ended on the
	// previous step, so its next step begins a new episode.
	needsReset bool

	// frozen marks a no-auto-reset slot whose episode has ended. The
	// slot's environment is never stepped again.
	frozen bool

	// Last frame written for the slot, repeated while frozen.
	lastObs       []float64
	lastTruncated bool

	cumulated float64
}

// frame collects the batched results of one driver step before they
// are written to the workspace.
type frame struct {
	obs       []float64
	reward    []float64
	done      []bool
	truncated []bool
	cumulated []float64
}

func newFrame(n, obsDim int) *frame {
	return &frame{
		obs:       make([]float64, n*obsDim),
		reward:    make([]float64, n),
		done:      make([]bool, n),
		truncated: make([]bool, n),
		cumulated: make([]float64, n),
	}
}

// driver holds the state shared by both driver variants.
type driver struct {
	slots  []*slot
	obsDim int
}

// newDriver creates n independent environment instances from factory.
func newDriver(factory func() (env.Environment, error),
	n int) (*driver, error) {
	if n <= 0 {
		return nil, fmt.Errorf("newdriver: batch size must be positive, "+
			"got %d", n)
	}

	slots := make([]*slot, n)
	obsDim := 0
	for i := range slots {
		e, err := factory()
		if err != nil {
			return nil, fmt.Errorf("newdriver: could not create "+
				"environment %d: %v", i, err)
		}
		if i == 0 {
			obsDim = e.ObservationSize()
		} else if e.ObservationSize() != obsDim {
			return nil, fmt.Errorf("newdriver: environment %d has "+
				"observation size %d ≠ %d", i, e.ObservationSize(), obsDim)
		}
		slots[i] = &slot{env: e}
	}
	return &driver{slots: slots, obsDim: obsDim}, nil
}

// Seed seeds each environment of the batch with its own stream derived
// from seed, so slots produce distinct but reproducible episodes.
func (d *driver) Seed(seed uint64) {
	for i, s := range d.slots {
		s.env.Seed(seed + uint64(i))
	}
}

// BatchSize returns the number of environment instances in the batch.
func (d *driver) BatchSize() int { return len(d.slots) }

// WrittenChannels lists the channels the drivers write each step.
func (d *driver) WrittenChannels() []string {
	return []string{
		workspace.ObsChannel,
		workspace.RewardChannel,
		workspace.DoneChannel,
		workspace.TruncatedChannel,
		workspace.CumulatedRewardChannel,
	}
}

// ReadChannels lists the channels the drivers read. The action at the
// previous time step drives every step after the first.
func (d *driver) ReadChannels() []string {
	return []string{workspace.ActionChannel}
}

// readActions reads the batch of actions stored at time step t and
// splits it into one action vector per slot.
func (d *driver) readActions(ws *workspace.Workspace,
	t int) ([]mat.Vector, error) {
	actions, err := ws.Get(workspace.ActionChannel, t)
	if err != nil {
		return nil, fmt.Errorf("readactions: %v", err)
	}

	n := len(d.slots)
	if actions.Shape()[0] != n {
		return nil, fmt.Errorf("readactions: action batch size %d ≠ "+
			"environment batch size %d", actions.Shape()[0], n)
	}

	data := workspace.Float64s(actions)
	dims := len(data) / n
	out := make([]mat.Vector, n)
	for i := range out {
		row := make([]float64, dims)
		copy(row, data[i*dims:(i+1)*dims])
		out[i] = mat.NewVecDense(dims, row)
	}
	return out, nil
}

// write records a completed frame in the workspace at time step t.
func (d *driver) write(ws *workspace.Workspace, t int, f *frame) error {
	n := len(d.slots)

	writes := []struct {
		channel string
		value   *tensor.Dense
	}{
		{workspace.ObsChannel, tensor.New(tensor.WithShape(n, d.obsDim),
			tensor.WithBacking(f.obs))},
		{workspace.RewardChannel, tensor.New(tensor.WithShape(n),
			tensor.WithBacking(f.reward))},
		{workspace.DoneChannel, tensor.New(tensor.WithShape(n),
			tensor.WithBacking(f.done))},
		{workspace.TruncatedChannel, tensor.New(tensor.WithShape(n),
			tensor.WithBacking(f.truncated))},
		{workspace.CumulatedRewardChannel, tensor.New(tensor.WithShape(n),
			tensor.WithBacking(f.cumulated))},
	}

	for _, wr := range writes {
		if err := ws.Set(wr.channel, t, wr.value); err != nil {
			return fmt.Errorf("write: %v", err)
		}
	}
	return nil
}

// forEachSlot runs fn for every slot concurrently and waits for the
// full batch to finish before returning the first error encountered.
// The barrier keeps the batch in lockstep: no slot runs ahead of the
// time step being filled.
func (d *driver) forEachSlot(fn func(i int, s *slot) error) error {
	errs := make([]error, len(d.slots))

	var wait sync.WaitGroup
	for i, s := range d.slots {
		wait.Add(1)
		go func(i int, s *slot) {
			defer wait.Done()
			errs[i] = fn(i, s)
		}(i, s)
	}
	wait.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// resetSlot starts a new episode in s and records the reset step in f.
// The reset step carries the new episode's first observation, a reward
// of 0, and a cumulated reward restarted at 0.
func (d *driver) resetSlot(i int, s *slot, f *frame) error {
	obs, err := s.env.Reset()
	if err != nil {
		return fmt.Errorf("reset: environment %d: %v", i, err)
	}
	if obs.Len() != d.obsDim {
		return fmt.Errorf("reset: environment %d returned observation of "+
			"size %d ≠ %d", i, obs.Len(), d.obsDim)
	}

	s.needsReset = false
	s.frozen = false
	s.cumulated = 0
	s.lastTruncated = false
	s.lastObs = vectorData(obs)

	copy(f.obs[i*d.obsDim:(i+1)*d.obsDim], s.lastObs)
	f.reward[i] = 0
	f.done[i] = false
	f.truncated[i] = false
	f.cumulated[i] = 0
	return nil
}

// stepSlot applies action to s and records the resulting step in f.
func (d *driver) stepSlot(i int, s *slot, action mat.Vector,
	f *frame) error {
	step, err := s.env.Step(action)
	if err != nil {
		return fmt.Errorf("step: environment %d: %v", i, err)
	}
	if step.Observation == nil || step.Observation.Len() != d.obsDim {
		return fmt.Errorf("step: environment %d returned malformed "+
			"observation", i)
	}

	s.cumulated += step.Reward
	s.lastTruncated = step.Truncated
	s.lastObs = vectorData(step.Observation)

	copy(f.obs[i*d.obsDim:(i+1)*d.obsDim], s.lastObs)
	f.reward[i] = step.Reward
	f.done[i] = step.Over()
	f.truncated[i] = step.Truncated
	f.cumulated[i] = s.cumulated
	return nil
}

// vectorData copies a vector's elements into a fresh slice.
func vectorData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
