package pendulum

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestResetObservationIsOnCircle(t *testing.T) {
	p := New(200)
	p.Seed(14)

	obs, err := p.Reset()
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	norm := obs.AtVec(0)*obs.AtVec(0) + obs.AtVec(1)*obs.AtVec(1)
	if math.Abs(norm-1) > 1e-12 {
		t.Errorf("cos²θ + sin²θ = %v, expected 1", norm)
	}
	if speed := obs.AtVec(2); math.Abs(speed) > SpeedBound {
		t.Errorf("starting speed %v outside +/- %v", speed, SpeedBound)
	}
}

func TestStepIsReproducible(t *testing.T) {
	run := func() []float64 {
		p := New(200)
		p.Seed(14)
		if _, err := p.Reset(); err != nil {
			t.Fatalf("reset failed: %v", err)
		}

		rewards := make([]float64, 0, 10)
		for i := 0; i < 10; i++ {
			step, err := p.Step(mat.NewVecDense(1, []float64{1.0}))
			if err != nil {
				t.Fatalf("step %v failed: %v", i, err)
			}
			rewards = append(rewards, step.Reward)
		}
		return rewards
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("equally seeded runs diverge: %v vs %v", first,
				second)
		}
	}
}

func TestStepClipsTorqueAndSpeed(t *testing.T) {
	p := New(1000)
	p.Seed(14)
	if _, err := p.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	// An absurd torque is clipped to MaxTorque, so the cost it incurs
	// is bounded
	huge := mat.NewVecDense(1, []float64{1e6})
	for i := 0; i < 200; i++ {
		step, err := p.Step(huge)
		if err != nil {
			t.Fatalf("step %v failed: %v", i, err)
		}

		maxCost := math.Pi*math.Pi + 0.1*MaxSpeed*MaxSpeed +
			0.001*MaxTorque*MaxTorque
		if -step.Reward > maxCost+1e-12 {
			t.Fatalf("cost %v exceeds the bound %v", -step.Reward, maxCost)
		}
		if speed := step.Observation.AtVec(2); math.Abs(speed) > MaxSpeed {
			t.Fatalf("angular speed %v exceeds +/- %v", speed, MaxSpeed)
		}
	}
}

// Pendulum episodes never terminate; they can only be cut by the
// cutoff.
func TestStepOnlyTruncates(t *testing.T) {
	cutoff := 30
	p := New(cutoff)
	p.Seed(14)
	if _, err := p.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	zero := mat.NewVecDense(1, []float64{0})
	for i := 0; i < cutoff; i++ {
		step, err := p.Step(zero)
		if err != nil {
			t.Fatalf("step %v failed: %v", i, err)
		}
		if step.Terminal {
			t.Fatalf("episode terminated at step %v", i)
		}
		if trunc := i == cutoff-1; step.Truncated != trunc {
			t.Fatalf("truncated = %v at step %v", step.Truncated, i)
		}
	}
}

func TestStepBeforeReset(t *testing.T) {
	p := New(200)
	if _, err := p.Step(mat.NewVecDense(1, []float64{0})); err == nil {
		t.Error("expected an error stepping before the first reset")
	}
}
