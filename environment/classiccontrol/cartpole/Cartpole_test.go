package cartpole

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestResetIsReproducible(t *testing.T) {
	first := New(500)
	first.Seed(14)
	second := New(500)
	second.Seed(14)

	obs1, err := first.Reset()
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	obs2, err := second.Reset()
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	for i := 0; i < ObservationDims; i++ {
		if obs1.AtVec(i) != obs2.AtVec(i) {
			t.Fatalf("equally seeded starts differ: %v vs %v",
				mat.Formatted(obs1.T()), mat.Formatted(obs2.T()))
		}
		if math.Abs(obs1.AtVec(i)) > StartBound {
			t.Errorf("start feature %v = %v outside +/- %v", i,
				obs1.AtVec(i), StartBound)
		}
	}

	first.Seed(15)
	obs3, err := first.Reset()
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	same := true
	for i := 0; i < ObservationDims; i++ {
		if obs3.AtVec(i) != obs2.AtVec(i) {
			same = false
		}
	}
	if same {
		t.Error("differently seeded starts are identical")
	}
}

func TestStepRewardsBalancing(t *testing.T) {
	c := New(500)
	c.Seed(14)
	if _, err := c.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	step, err := c.Step(mat.NewVecDense(1, []float64{float64(ActionRight)}))
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if step.Reward != 1.0 {
		t.Errorf("reward = %v, expected 1", step.Reward)
	}
	if step.Over() {
		t.Error("episode ended on the first step from a near-upright start")
	}
}

// Constantly pushing right topples the pole, which must register as a
// terminal state rather than a truncation.
func TestStepTerminatesOnFailure(t *testing.T) {
	c := New(10_000)
	c.Seed(14)
	if _, err := c.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	right := mat.NewVecDense(1, []float64{float64(ActionRight)})
	for i := 0; i < 10_000; i++ {
		step, err := c.Step(right)
		if err != nil {
			t.Fatalf("step %v failed: %v", i, err)
		}
		if step.Terminal {
			if step.Truncated {
				t.Error("step is both terminal and truncated")
			}
			return
		}
	}
	t.Fatal("pole never fell under a constant push")
}

// A bang-bang controller pushing toward the lean keeps the pole up
// past the cutoff, which must register as a truncation rather than a
// terminal state.
func TestStepTruncatesAtCutoff(t *testing.T) {
	cutoff := 50
	c := New(cutoff)
	c.Seed(14)
	obs, err := c.Reset()
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	for i := 0; i < cutoff; i++ {
		action := float64(ActionLeft)
		if obs.AtVec(2)+0.2*obs.AtVec(3) > 0 {
			action = float64(ActionRight)
		}

		step, err := c.Step(mat.NewVecDense(1, []float64{action}))
		if err != nil {
			t.Fatalf("step %v failed: %v", i, err)
		}
		obs = step.Observation

		if step.Terminal {
			t.Fatalf("pole fell at step %v under the stabilizer", i)
		}
		if i < cutoff-1 && step.Truncated {
			t.Fatalf("episode truncated early at step %v", i)
		}
		if i == cutoff-1 && !step.Truncated {
			t.Error("episode not truncated at the cutoff")
		}
	}
}

func TestStepRejectsIllegalActions(t *testing.T) {
	c := New(500)
	c.Seed(14)

	action := mat.NewVecDense(1, []float64{float64(ActionLeft)})
	if _, err := c.Step(action); err == nil {
		t.Error("expected an error stepping before the first reset")
	}

	if _, err := c.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if _, err := c.Step(mat.NewVecDense(1, []float64{2})); err == nil {
		t.Error("expected an error with an out-of-range action")
	}
}
