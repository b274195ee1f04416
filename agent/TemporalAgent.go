package agent

import (
	"fmt"

	"github.com/samuelfneumann/gorollout/workspace"
)

// TemporalAgent drives a wrapped agent across a range of time steps,
// advancing t between calls so that later steps can read what earlier
// steps wrote.
//
// Two starting modes matter to callers. Seeding a rollout runs from
// t=0 on a fresh workspace. Continuing a rollout runs from t=1 on a
// workspace pre-populated with exactly one carried-over step via
// CopyNLastSteps(1); together these stitch consecutive training
// iterations into one continuous trajectory without re-simulating from
// the episode start.
type TemporalAgent struct {
	agent Agent
}

// NewTemporalAgent returns a TemporalAgent driving a.
func NewTemporalAgent(a Agent) *TemporalAgent {
	return &TemporalAgent{agent: a}
}

// Agent returns the wrapped agent.
func (ta *TemporalAgent) Agent() Agent {
	return ta.agent
}

// Seed propagates the seed to the wrapped agent if it accepts one.
func (ta *TemporalAgent) Seed(seed uint64) {
	if s, ok := ta.agent.(Seeder); ok {
		s.Seed(seed)
	}
}

// Run executes the wrapped agent once per time step for
// t, t+1, ..., t+nSteps-1, threading opts unchanged to every call.
func (ta *TemporalAgent) Run(ws *workspace.Workspace, t, nSteps int,
	opts Options) error {
	if nSteps < 0 {
		return fmt.Errorf("run: negative step count %d", nSteps)
	}
	for step := t; step < t+nSteps; step++ {
		if err := ta.agent.Forward(ws, step, opts); err != nil {
			return fmt.Errorf("run: time step %d: %v", step, err)
		}
	}
	return nil
}

// RunUntil executes the wrapped agent from time step t onward until
// every batch slot of the Bool stop channel is true at the step just
// executed, or until maxSteps steps have run. A maxSteps of 0 means no
// limit; evaluation rollouts on environments with a step cutoff always
// stop on their own. RunUntil returns the number of time steps
// executed.
func (ta *TemporalAgent) RunUntil(ws *workspace.Workspace, t int,
	stopChannel string, maxSteps int, opts Options) (int, error) {
	ran := 0
	for step := t; maxSteps <= 0 || step < t+maxSteps; step++ {
		if err := ta.agent.Forward(ws, step, opts); err != nil {
			return ran, fmt.Errorf("rununtil: time step %d: %v", step, err)
		}
		ran++

		stop, err := ws.Get(stopChannel, step)
		if err != nil {
			return ran, fmt.Errorf("rununtil: stop channel: %v", err)
		}
		all := true
		for _, done := range workspace.Bools(stop) {
			if !done {
				all = false
				break
			}
		}
		if all {
			return ran, nil
		}
	}
	return ran, fmt.Errorf("rununtil: stop channel %q not fully set "+
		"after %d steps", stopChannel, maxSteps)
}
