package envagent

import (
	"fmt"

	"github.com/samuelfneumann/gorollout/agent"
	env "github.com/samuelfneumann/gorollout/environment"
	"github.com/samuelfneumann/gorollout/workspace"
)

// AutoReset is the training-time environment driver. When a slot's
// episode ends, the next time step of that slot is the reset step of a
// fresh episode, so a fixed-length rollout over a batch of
// environments never stalls on a finished slot.
//
// The reset boundary belongs to the new episode: a reset step carries
// the new episode's first observation, reward 0, done and truncated
// false, and a cumulated reward restarted at 0. The final reward of
// the finished episode was already recorded on its done step.
type AutoReset struct {
	*driver
}

// Compile-time interface checks
var (
	_ agent.Agent  = (*AutoReset)(nil)
	_ agent.Seeder = (*AutoReset)(nil)
	_ agent.Writer = (*AutoReset)(nil)
	_ agent.Reader = (*AutoReset)(nil)
)

// NewAutoReset returns an AutoReset driver over n independent
// environment instances created by factory.
func NewAutoReset(factory func() (env.Environment, error),
	n int) (*AutoReset, error) {
	d, err := newDriver(factory, n)
	if err != nil {
		return nil, fmt.Errorf("newautoreset: %v", err)
	}
	return &AutoReset{driver: d}, nil
}

// Forward advances every slot of the batch by one time step and writes
// the resulting frame at time step t. At t == 0 every slot starts a
// fresh episode. At later steps each slot either applies the action
// stored at t-1 or, if its episode ended at t-1, starts a fresh
// episode instead. The slot state survives across calls, so a rollout
// continued at t == 1 after keeping the last step of the previous
// segment picks up every episode exactly where it left off.
func (a *AutoReset) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	f := newFrame(len(a.slots), a.obsDim)

	if t == 0 {
		for _, s := range a.slots {
			s.needsReset = true
		}
		err := a.forEachSlot(func(i int, s *slot) error {
			return a.resetSlot(i, s, f)
		})
		if err != nil {
			return fmt.Errorf("forward: %v", err)
		}
		return a.write(ws, t, f)
	}

	actions, err := a.readActions(ws, t-1)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	err = a.forEachSlot(func(i int, s *slot) error {
		if s.needsReset {
			return a.resetSlot(i, s, f)
		}
		if err := a.stepSlot(i, s, actions[i], f); err != nil {
			return err
		}
		if f.done[i] {
			s.needsReset = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	return a.write(ws, t, f)
}
