package envagent

import (
	"fmt"

	"github.com/samuelfneumann/gorollout/agent"
	env "github.com/samuelfneumann/gorollout/environment"
	"github.com/samuelfneumann/gorollout/workspace"
)

// NoAutoReset is the evaluation-time environment driver. Once a slot's
// episode ends, the slot freezes: its environment is never stepped
// again, its final observation is repeated, its reward is exactly 0,
// and done stays true. The cumulated reward freezes at the episode
// return, so reading the last time step of the cumulated reward
// channel after every slot is done yields one clean return per slot.
//
// Evaluation loops run this driver under a stop condition on the done
// channel rather than for a fixed step count.
type NoAutoReset struct {
	*driver
}

// Compile-time interface checks
var (
	_ agent.Agent  = (*NoAutoReset)(nil)
	_ agent.Seeder = (*NoAutoReset)(nil)
	_ agent.Writer = (*NoAutoReset)(nil)
	_ agent.Reader = (*NoAutoReset)(nil)
)

// NewNoAutoReset returns a NoAutoReset driver over n independent
// environment instances created by factory.
func NewNoAutoReset(factory func() (env.Environment, error),
	n int) (*NoAutoReset, error) {
	d, err := newDriver(factory, n)
	if err != nil {
		return nil, fmt.Errorf("newnoautoreset: %v", err)
	}
	return &NoAutoReset{driver: d}, nil
}

// Forward advances every running slot by one time step and writes the
// resulting frame at time step t. At t == 0 every slot starts a fresh
// episode. Frozen slots repeat their final frame with reward 0.
func (a *NoAutoReset) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	f := newFrame(len(a.slots), a.obsDim)

	if t == 0 {
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
		if s.frozen {
			a.freezeFrame(i, s, f)
			return nil
		}
		if err := a.stepSlot(i, s, actions[i], f); err != nil {
			return err
		}
		if f.done[i] {
			s.frozen = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	return a.write(ws, t, f)
}

// freezeFrame records the held frame of a finished slot: the final
// observation, zero reward, done true, and the frozen episode return.
func (a *NoAutoReset) freezeFrame(i int, s *slot, f *frame) {
	copy(f.obs[i*a.obsDim:(i+1)*a.obsDim], s.lastObs)
	f.reward[i] = 0
	f.done[i] = true
	f.truncated[i] = s.lastTruncated
	f.cumulated[i] = s.cumulated
}
