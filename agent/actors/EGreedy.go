package actors

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent"
	"github.com/samuelfneumann/gorollout/utils/floatutils"
	"github.com/samuelfneumann/gorollout/workspace"
)

// EGreedy selects actions from the action values already stored in the
// workspace by a Q critic running earlier in the composition. When
// acting stochastically it explores with probability epsilon;
// otherwise it is purely greedy. EGreedy holds no network of its own.
type EGreedy struct {
	epsilon float64
	rng     *rand.Rand
}

// Compile-time interface checks
var (
	_ agent.Agent  = (*EGreedy)(nil)
	_ agent.Seeder = (*EGreedy)(nil)
	_ agent.Writer = (*EGreedy)(nil)
	_ agent.Reader = (*EGreedy)(nil)
)

// NewEGreedy returns an EGreedy selector exploring with probability
// epsilon.
func NewEGreedy(epsilon float64, seed uint64) (*EGreedy, error) {
	if epsilon < 0 || epsilon > 1 {
		return nil, fmt.Errorf("newegreedy: epsilon must be in [0, 1], "+
			"got %v", epsilon)
	}
	e := &EGreedy{epsilon: epsilon}
	e.Seed(seed)
	return e, nil
}

// Seed fixes the selector's exploration stream.
func (e *EGreedy) Seed(seed uint64) {
	e.rng = rand.New(rand.NewSource(seed))
}

// WrittenChannels lists the channels the selector writes.
func (e *EGreedy) WrittenChannels() []string {
	return []string{workspace.ActionChannel}
}

// ReadChannels lists the channels the selector reads.
func (e *EGreedy) ReadChannels() []string {
	return []string{workspace.QValuesChannel}
}

// Forward reads the action values at time step t and writes one action
// per batch slot: greedy, or uniformly random with probability epsilon
// when opts.Stochastic.
func (e *EGreedy) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	qValues, err := ws.Get(workspace.QValuesChannel, t)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	batch := qValues.Shape()[0]
	values := workspace.Float64s(qValues)
	actions := len(values) / batch
	if actions < 2 {
		return fmt.Errorf("forward: action values hold %d < 2 actions",
			actions)
	}

	selected := make([]float64, batch)
	for i := 0; i < batch; i++ {
		if opts.Stochastic && e.rng.Float64() < e.epsilon {
			selected[i] = float64(e.rng.Intn(actions))
			continue
		}
		row := values[i*actions : (i+1)*actions]
		selected[i] = float64(floatutils.ArgMax(e.rng, row...))
	}

	err = ws.Set(workspace.ActionChannel, t,
		tensor.New(tensor.WithShape(batch, 1),
			tensor.WithBacking(selected)))
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	return nil
}
