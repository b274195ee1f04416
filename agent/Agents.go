package agent

import (
	"fmt"

	"github.com/samuelfneumann/gorollout/workspace"
)

// Agents executes a fixed sequence of agents at a single time step.
// Each member sees the workspace effects of all its predecessors at
// the same step, so an environment driver placed before a policy
// guarantees the policy reads the observation the driver just wrote.
type Agents struct {
	agents []Agent
}

// NewAgents returns the sequential composition of agents. Members
// implementing Writer are validated against each other: two members
// declaring the same written channel is a caller error, reported here
// rather than at first access.
func NewAgents(agents ...Agent) (*Agents, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("newagents: empty composition")
	}

	writtenBy := make(map[string]int)
	for i, a := range agents {
		w, ok := a.(Writer)
		if !ok {
			continue
		}
		for _, channel := range w.WrittenChannels() {
			if j, clash := writtenBy[channel]; clash {
				return nil, fmt.Errorf("newagents: agents %d and %d both "+
					"write channel %q", j, i, channel)
			}
			writtenBy[channel] = i
		}
	}

	return &Agents{agents: agents}, nil
}

// Forward executes every member in order at time step t.
func (a *Agents) Forward(ws *workspace.Workspace, t int,
	opts Options) error {
	for i, member := range a.agents {
		if err := member.Forward(ws, t, opts); err != nil {
			return fmt.Errorf("forward: agent %d: %v", i, err)
		}
	}
	return nil
}

// Seed propagates the seed to every member implementing Seeder. Each
// member receives a distinct stream offset so that two random agents
// in one composition do not share a sequence.
func (a *Agents) Seed(seed uint64) {
	for i, member := range a.agents {
		if s, ok := member.(Seeder); ok {
			s.Seed(seed + uint64(i))
		}
	}
}

// WrittenChannels returns the union of channels declared by members
// implementing Writer.
func (a *Agents) WrittenChannels() []string {
	var channels []string
	for _, member := range a.agents {
		if w, ok := member.(Writer); ok {
			channels = append(channels, w.WrittenChannels()...)
		}
	}
	return channels
}
