// Package agent defines the unit of computation executed against a
// workspace, sequential composition of such units, and the temporal
// driver that runs a composition across a range of time steps.
package agent

import "github.com/samuelfneumann/gorollout/workspace"

// Options is the fixed set of flags threaded unchanged to every agent
// call in an execution pass.
type Options struct {
	// Stochastic selects sampled actions; when false, actors choose
	// greedily.
	Stochastic bool

	// PredictProba makes actors re-score the probability of the action
	// already stored in the workspace instead of producing a new one.
	PredictProba bool

	// ComputeEntropy makes actors additionally record the entropy of
	// their action distribution.
	ComputeEntropy bool
}

// Agent is a computation over the workspace at a single time step.
// Agents are stateless with respect to the workspace between
// invocations; anything they need from earlier steps they read back
// out of the workspace.
type Agent interface {
	Forward(ws *workspace.Workspace, t int, opts Options) error
}

// Seeder is implemented by agents whose computation involves
// randomness. Composites propagate seeds to every member implementing
// Seeder, deriving distinct streams where needed.
type Seeder interface {
	Seed(seed uint64)
}

// Writer is implemented by agents that declare the channels they
// write. Declared channels are validated at composition time, turning
// conflicting writers into a construction error instead of a silent
// last-writer-wins overwrite at run time.
type Writer interface {
	WrittenChannels() []string
}

// Reader is implemented by agents that declare the channels they read.
type Reader interface {
	ReadChannels() []string
}
