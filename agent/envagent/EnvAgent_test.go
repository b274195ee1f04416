package envagent

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent"
	env "github.com/samuelfneumann/gorollout/environment"
	"github.com/samuelfneumann/gorollout/workspace"
)

// scriptedEnv is a deterministic environment for driver tests.
// Episodes last length steps. The single observation feature encodes
// the seed, the episode number, and the step within the episode, so a
// test can tell exactly which frame the driver recorded. The reward on
// step k of an episode is k, making episode returns predictable.
type scriptedEnv struct {
	length   int
	truncate bool
	seed     uint64
	episode  int
	step     int
}

func (s *scriptedEnv) Seed(seed uint64) { s.seed = seed }

func (s *scriptedEnv) Reset() (mat.Vector, error) {
	s.episode++
	s.step = 0
	return s.obs(), nil
}

func (s *scriptedEnv) Step(a mat.Vector) (env.Step, error) {
	s.step++
	over := s.step >= s.length
	return env.Step{
		Observation: s.obs(),
		Reward:      float64(s.step),
		Terminal:    over && !s.truncate,
		Truncated:   over && s.truncate,
	}, nil
}

func (s *scriptedEnv) obs() mat.Vector {
	code := float64(s.seed)*1000 + float64(s.episode)*100 +
		float64(s.step)
	return mat.NewVecDense(1, []float64{code})
}

func (s *scriptedEnv) ObservationSize() int   { return 1 }
func (s *scriptedEnv) ActionSize() int        { return 1 }
func (s *scriptedEnv) ContinuousAction() bool { return false }

func scripted(length int) func() (env.Environment, error) {
	return func() (env.Environment, error) {
		return &scriptedEnv{length: length}, nil
	}
}

func truncating(length int) func() (env.Environment, error) {
	return func() (env.Environment, error) {
		return &scriptedEnv{length: length, truncate: true}, nil
	}
}

// setActions writes a zero action for every slot at time step t.
func setActions(t *testing.T, ws *workspace.Workspace, step, n int) {
	t.Helper()
	action := tensor.New(tensor.WithShape(n, 1),
		tensor.WithBacking(make([]float64, n)))
	if err := ws.Set(workspace.ActionChannel, step, action); err != nil {
		t.Fatalf("could not write actions: %v", err)
	}
}

// channelRow reads the float64 row of channel at time step t.
func channelRow(t *testing.T, ws *workspace.Workspace, channel string,
	step int) []float64 {
	t.Helper()
	v, err := ws.Get(channel, step)
	if err != nil {
		t.Fatalf("could not read %v at %v: %v", channel, step, err)
	}
	return workspace.Float64s(v)
}

// boolRow reads the bool row of channel at time step t.
func boolRow(t *testing.T, ws *workspace.Workspace, channel string,
	step int) []bool {
	t.Helper()
	v, err := ws.Get(channel, step)
	if err != nil {
		t.Fatalf("could not read %v at %v: %v", channel, step, err)
	}
	return workspace.Bools(v)
}

// rollout runs driver for steps time steps, writing a zero action
// after each frame the way a policy agent would.
func rollout(t *testing.T, driver agent.Agent, ws *workspace.Workspace,
	from, steps, n int) {
	t.Helper()
	for step := from; step < from+steps; step++ {
		if err := driver.Forward(ws, step, agent.Options{}); err != nil {
			t.Fatalf("forward failed at time step %v: %v", step, err)
		}
		setActions(t, ws, step, n)
	}
}

func TestAutoResetFirstStepIsReset(t *testing.T) {
	driver, err := NewAutoReset(scripted(2), 3)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	ws := workspace.New()
	if err := driver.Forward(ws, 0, agent.Options{}); err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	for i, r := range channelRow(t, ws, workspace.RewardChannel, 0) {
		if r != 0 {
			t.Errorf("slot %v: reset step reward = %v, expected 0", i, r)
		}
	}
	for i, d := range boolRow(t, ws, workspace.DoneChannel, 0) {
		if d {
			t.Errorf("slot %v: reset step done = true", i)
		}
	}
	for i, c := range channelRow(t, ws, workspace.CumulatedRewardChannel,
		0) {
		if c != 0 {
			t.Errorf("slot %v: reset step cumulated reward = %v", i, c)
		}
	}
	obs := channelRow(t, ws, workspace.ObsChannel, 0)
	for i, o := range obs {
		if o != 100 {
			t.Errorf("slot %v: reset observation = %v, expected 100", i, o)
		}
	}
}

// TestAutoResetBoundary checks which time step the reset boundary
// belongs to: the step after an episode ends must already be the reset
// step of the next episode, with reward 0, done false, and the
// cumulated reward restarted, while the done step before it keeps the
// final reward and the full episode return.
func TestAutoResetBoundary(t *testing.T) {
	driver, err := NewAutoReset(scripted(2), 1)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	ws := workspace.New()
	rollout(t, driver, ws, 0, 4, 1)

	// Episode 1: reset at t=0, steps at t=1, t=2 (done), rewards 1 and 2
	wantObs := []float64{100, 101, 102, 200}
	wantReward := []float64{0, 1, 2, 0}
	wantDone := []bool{false, false, true, false}
	wantCumulated := []float64{0, 1, 3, 0}

	for step := 0; step < 4; step++ {
		obs := channelRow(t, ws, workspace.ObsChannel, step)[0]
		if obs != wantObs[step] {
			t.Errorf("time step %v: observation = %v, expected %v", step,
				obs, wantObs[step])
		}
		r := channelRow(t, ws, workspace.RewardChannel, step)[0]
		if r != wantReward[step] {
			t.Errorf("time step %v: reward = %v, expected %v", step, r,
				wantReward[step])
		}
		done := boolRow(t, ws, workspace.DoneChannel, step)[0]
		if done != wantDone[step] {
			t.Errorf("time step %v: done = %v, expected %v", step, done,
				wantDone[step])
		}
		c := channelRow(t, ws, workspace.CumulatedRewardChannel, step)[0]
		if c != wantCumulated[step] {
			t.Errorf("time step %v: cumulated reward = %v, expected %v",
				step, c, wantCumulated[step])
		}
	}
}

// TestAutoResetIndependentSlots runs slots with different episode
// lengths and checks that one slot resetting never disturbs another.
func TestAutoResetIndependentSlots(t *testing.T) {
	lengths := []int{2, 4}
	next := 0
	factory := func() (env.Environment, error) {
		e := &scriptedEnv{length: lengths[next]}
		next++
		return e, nil
	}

	driver, err := NewAutoReset(factory, 2)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	ws := workspace.New()
	rollout(t, driver, ws, 0, 5, 2)

	// Slot 0 finished at t=2 and reset at t=3; slot 1 finished at t=4
	done2 := boolRow(t, ws, workspace.DoneChannel, 2)
	if !done2[0] || done2[1] {
		t.Errorf("time step 2: done = %v, expected [true false]", done2)
	}

	done3 := boolRow(t, ws, workspace.DoneChannel, 3)
	if done3[0] || done3[1] {
		t.Errorf("time step 3: done = %v, expected [false false]", done3)
	}

	obs3 := channelRow(t, ws, workspace.ObsChannel, 3)
	if obs3[0] != 200 {
		t.Errorf("slot 0 did not reset: observation = %v", obs3[0])
	}
	if obs3[1] != 103 {
		t.Errorf("slot 1 was disturbed: observation = %v", obs3[1])
	}

	done4 := boolRow(t, ws, workspace.DoneChannel, 4)
	if done4[0] || !done4[1] {
		t.Errorf("time step 4: done = %v, expected [false true]", done4)
	}
	cumulated4 := channelRow(t, ws, workspace.CumulatedRewardChannel, 4)
	if cumulated4[1] != 10 {
		t.Errorf("slot 1 return = %v, expected 10", cumulated4[1])
	}
}

// TestAutoResetContinuation keeps the last step of a rollout segment
// and continues from t=1, checking that episodes pick up where they
// left off instead of restarting.
func TestAutoResetContinuation(t *testing.T) {
	driver, err := NewAutoReset(scripted(4), 1)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	ws := workspace.New()
	rollout(t, driver, ws, 0, 3, 1)

	if err := ws.CopyNLastSteps(1); err != nil {
		t.Fatalf("could not keep last step: %v", err)
	}

	rollout(t, driver, ws, 1, 2, 1)

	// Before the copy the last frame was episode 1 step 2; the
	// continued segment must follow with steps 3 (done) and the next
	// episode's reset
	obs := channelRow(t, ws, workspace.ObsChannel, 1)[0]
	if obs != 103 {
		t.Errorf("continued observation = %v, expected 103", obs)
	}
	if done := boolRow(t, ws, workspace.DoneChannel, 1)[0]; !done {
		t.Error("episode should have finished on the continued step")
	}
	cumulated := channelRow(t, ws, workspace.CumulatedRewardChannel, 1)[0]
	if cumulated != 10 {
		t.Errorf("continued return = %v, expected 10", cumulated)
	}
	if obs := channelRow(t, ws, workspace.ObsChannel, 2)[0]; obs != 200 {
		t.Errorf("slot did not reset after continuation: observation = %v",
			obs)
	}
}

func TestAutoResetTruncated(t *testing.T) {
	driver, err := NewAutoReset(truncating(2), 1)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	ws := workspace.New()
	rollout(t, driver, ws, 0, 3, 1)

	if done := boolRow(t, ws, workspace.DoneChannel, 2)[0]; !done {
		t.Error("truncated step should also set done")
	}
	truncated := boolRow(t, ws, workspace.TruncatedChannel, 2)[0]
	if !truncated {
		t.Error("truncated step should set truncated")
	}
	if tr := boolRow(t, ws, workspace.TruncatedChannel, 1)[0]; tr {
		t.Error("mid-episode step should not be truncated")
	}
}

func TestAutoResetSeededSlotsDiffer(t *testing.T) {
	driver, err := NewAutoReset(scripted(3), 2)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}
	driver.Seed(7)

	ws := workspace.New()
	if err := driver.Forward(ws, 0, agent.Options{}); err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	obs := channelRow(t, ws, workspace.ObsChannel, 0)
	if obs[0] == obs[1] {
		t.Error("slots seeded from the same base should draw distinct " +
			"streams")
	}
	if obs[0] != 7100 || obs[1] != 8100 {
		t.Errorf("seeded observations = %v, expected [7100 8100]", obs)
	}
}

func TestAutoResetMissingAction(t *testing.T) {
	driver, err := NewAutoReset(scripted(3), 1)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	ws := workspace.New()
	if err := driver.Forward(ws, 0, agent.Options{}); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if err := driver.Forward(ws, 1, agent.Options{}); err == nil {
		t.Error("expected an error when no action was written")
	}
}

func TestNoAutoResetFreezesFinishedSlot(t *testing.T) {
	driver, err := NewNoAutoReset(scripted(2), 2)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	ws := workspace.New()
	rollout(t, driver, ws, 0, 5, 2)

	// Both slots finish at t=2 and must hold their final frame after
	finalObs := channelRow(t, ws, workspace.ObsChannel, 2)
	for step := 3; step < 5; step++ {
		obs := channelRow(t, ws, workspace.ObsChannel, step)
		for i := range obs {
			if obs[i] != finalObs[i] {
				t.Errorf("time step %v slot %v: observation changed "+
					"after done: %v ≠ %v", step, i, obs[i], finalObs[i])
			}
		}
		for i, r := range channelRow(t, ws, workspace.RewardChannel,
			step) {
			if r != 0 {
				t.Errorf("time step %v slot %v: frozen reward = %v", step,
					i, r)
			}
		}
		for i, done := range boolRow(t, ws, workspace.DoneChannel, step) {
			if !done {
				t.Errorf("time step %v slot %v: done dropped back to "+
					"false", step, i)
			}
		}
		cumulated := channelRow(t, ws,
			workspace.CumulatedRewardChannel, step)
		for i, c := range cumulated {
			if c != 3 {
				t.Errorf("time step %v slot %v: frozen return = %v, "+
					"expected 3", step, i, c)
			}
		}
	}
}

// TestNoAutoResetStopsTemporalLoop checks the evaluation pattern: a
// temporal run over the done channel stops once every slot finished.
func TestNoAutoResetStopsTemporalLoop(t *testing.T) {
	lengths := []int{2, 3}
	next := 0
	factory := func() (env.Environment, error) {
		e := &scriptedEnv{length: lengths[next]}
		next++
		return e, nil
	}

	driver, err := NewNoAutoReset(factory, 2)
	if err != nil {
		t.Fatalf("could not create driver: %v", err)
	}

	actor := actionWriter{n: 2}
	agents, err := agent.NewAgents(driver, actor)
	if err != nil {
		t.Fatalf("could not compose agents: %v", err)
	}
	temporal := agent.NewTemporalAgent(agents)

	ws := workspace.New()
	ran, err := temporal.RunUntil(ws, 0, workspace.DoneChannel, 100,
		agent.Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Reset at t=0 plus three stepped frames: the longer episode ends
	// on the fourth frame
	if ran != 4 {
		t.Errorf("ran %v time steps, expected 4", ran)
	}
	returns := channelRow(t, ws, workspace.CumulatedRewardChannel, ran-1)
	if returns[0] != 3 || returns[1] != 6 {
		t.Errorf("episode returns = %v, expected [3 6]", returns)
	}
}

// actionWriter writes a zero action each step, standing in for a
// policy.
type actionWriter struct{ n int }

func (a actionWriter) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	action := tensor.New(tensor.WithShape(a.n, 1),
		tensor.WithBacking(make([]float64, a.n)))
	return ws.Set(workspace.ActionChannel, t, action)
}

func (a actionWriter) WrittenChannels() []string {
	return []string{workspace.ActionChannel}
}
