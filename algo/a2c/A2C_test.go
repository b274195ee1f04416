package a2c

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent/actors"
	"github.com/samuelfneumann/gorollout/agent/critics"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/solver"
	"github.com/samuelfneumann/gorollout/workspace"
)

const (
	testObsDim  int = 2
	testActions int = 3
	testEnvs    int = 2
	testSteps   int = 4
)

func newNet(t *testing.T, outputs int) network.NeuralNet {
	t.Helper()
	g := G.NewGraph()
	net, err := network.NewMLP(testObsDim, testEnvs, outputs, g,
		[]int{8}, []bool{true}, G.GlorotU(1.0),
		[]*network.Activation{network.TanH()})
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	return net
}

func testConfig() Config {
	return Config{
		Gamma:         0.99,
		Lambda:        0.95,
		EntropyWeight: 0.01,
		ActorSolver:   solver.Config{Type: solver.Adam, StepSize: 1e-3},
		CriticSolver:  solver.Config{Type: solver.Adam, StepSize: 1e-3},
	}
}

// segment fills a synthetic rollout of testSteps steps over testEnvs
// slots.
func segment(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New()

	for step := 0; step < testSteps; step++ {
		set := func(channel string, v *tensor.Dense) {
			if err := ws.Set(channel, step, v); err != nil {
				t.Fatalf("could not write %v: %v", channel, err)
			}
		}
		set(workspace.ObsChannel,
			tensor.New(tensor.WithShape(testEnvs, testObsDim),
				tensor.WithBacking([]float64{float64(step), 0.5, 0.1,
					float64(step)})))
		set(workspace.RewardChannel,
			tensor.New(tensor.WithShape(testEnvs),
				tensor.WithBacking([]float64{1, -1})))
		set(workspace.ActionChannel,
			tensor.New(tensor.WithShape(testEnvs, 1),
				tensor.WithBacking([]float64{float64(step % testActions),
					0})))
		set(workspace.ActionLogProbsChannel,
			tensor.New(tensor.WithShape(testEnvs),
				tensor.WithBacking([]float64{-1.1, -1.1})))
		set(workspace.VValueChannel,
			tensor.New(tensor.WithShape(testEnvs),
				tensor.WithBacking([]float64{0.1, -0.1})))
		set(workspace.DoneChannel,
			tensor.New(tensor.WithShape(testEnvs),
				tensor.WithBacking([]bool{false, step == 2})))
		set(workspace.TruncatedChannel,
			tensor.New(tensor.WithShape(testEnvs),
				tensor.WithBacking([]bool{false, false})))
	}
	return ws
}

func TestStepUpdatesWeights(t *testing.T) {
	actor, err := actors.NewDiscrete(newNet(t, testActions), 14)
	if err != nil {
		t.Fatalf("could not create actor: %v", err)
	}
	critic, err := critics.NewV(newNet(t, 1))
	if err != nil {
		t.Fatalf("could not create critic: %v", err)
	}

	before := make([]*tensor.Dense, 0)
	for _, learnable := range actor.Network().Learnables() {
		value := learnable.Value().(*tensor.Dense)
		before = append(before, value.Clone().(*tensor.Dense))
	}

	updater, err := New(testConfig(), actor, critic, testSteps, testEnvs)
	if err != nil {
		t.Fatalf("could not create updater: %v", err)
	}

	losses, err := updater.Step(segment(t))
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if math.IsNaN(losses.Actor) || math.IsNaN(losses.Critic) {
		t.Fatalf("losses are NaN: %+v", losses)
	}

	changed := false
	for i, learnable := range actor.Network().Learnables() {
		if !before[i].Eq(learnable.Value().(*tensor.Dense)) {
			changed = true
		}
	}
	if !changed {
		t.Error("actor weights unchanged after an update")
	}
}

func TestStepRejectsWrongSegmentSize(t *testing.T) {
	actor, err := actors.NewDiscrete(newNet(t, testActions), 14)
	if err != nil {
		t.Fatalf("could not create actor: %v", err)
	}
	critic, err := critics.NewV(newNet(t, 1))
	if err != nil {
		t.Fatalf("could not create critic: %v", err)
	}

	updater, err := New(testConfig(), actor, critic, testSteps+1,
		testEnvs)
	if err != nil {
		t.Fatalf("could not create updater: %v", err)
	}

	if _, err := updater.Step(segment(t)); err == nil {
		t.Error("expected an error with a wrong-sized segment")
	}
}

func TestNewRejectsShortSegments(t *testing.T) {
	actor, err := actors.NewDiscrete(newNet(t, testActions), 14)
	if err != nil {
		t.Fatalf("could not create actor: %v", err)
	}
	critic, err := critics.NewV(newNet(t, 1))
	if err != nil {
		t.Fatalf("could not create critic: %v", err)
	}

	if _, err := New(testConfig(), actor, critic, 1, testEnvs); err == nil {
		t.Error("expected an error with a single-step segment")
	}
}
