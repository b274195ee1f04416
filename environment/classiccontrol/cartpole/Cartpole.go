// Package cartpole implements the Cartpole classic control
// environment: a pole is attached to a cart moving on a horizontal
// track, and the agent accelerates the cart left or right to keep the
// pole upright for as long as possible.
package cartpole

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/gorollout/environment"
)

const (
	// Physical constants
	Gravity        float64 = 9.8
	CartMass       float64 = 1.0
	PoleMass       float64 = 0.1
	HalfPoleLength float64 = 0.5  // half of pole length
	ForceMag       float64 = 10.0 // Magnitude of force applied
	Dt             float64 = 0.02 // Seconds between state updates

	// An episode terminates when the cart leaves the track or the pole
	// falls past the failure angle
	TrackLimit float64 = 2.4
	FailAngle  float64 = 12.0 * math.Pi / 180.0

	// Starting states are drawn uniformly from +/- StartBound on every
	// state feature
	StartBound float64 = 0.05

	// Discrete actions
	ActionLeft  int = 0
	ActionRight int = 1

	ObservationDims int = 4
)

// Cartpole implements the Cartpole environment. The state consists of
// the cart's position and speed and the pole's angle from vertical and
// angular velocity. Two discrete actions accelerate the cart left or
// right; every step while balancing earns reward 1. Episodes end in
// failure when a state bound is exceeded, or are truncated at the step
// cutoff while still balancing.
type Cartpole struct {
	starter *env.UniformStarter
	state   mat.Vector
	steps   int
	cutoff  int
}

// New returns a Cartpole whose episodes are truncated after cutoff
// steps.
func New(cutoff int) *Cartpole {
	bound := r1.Interval{Min: -StartBound, Max: StartBound}
	starter := env.NewUniformStarter([]r1.Interval{bound, bound, bound,
		bound}, 0)

	return &Cartpole{starter: starter, cutoff: cutoff}
}

// Seed fixes the randomness of the starting state distribution.
func (c *Cartpole) Seed(seed uint64) {
	c.starter.Seed(seed)
}

// Reset starts a new episode at a state drawn from the starter.
func (c *Cartpole) Reset() (mat.Vector, error) {
	c.state = c.starter.Start()
	c.steps = 0
	return c.state, nil
}

// Step applies a discrete action and advances the cart-pole dynamics
// by Dt using Euler integration.
func (c *Cartpole) Step(a mat.Vector) (env.Step, error) {
	if c.state == nil {
		return env.Step{}, fmt.Errorf("step: environment was never reset")
	}

	action := int(a.AtVec(0))
	if action != ActionLeft && action != ActionRight {
		return env.Step{}, fmt.Errorf("step: illegal action %v ∉ {%v, %v}",
			action, ActionLeft, ActionRight)
	}

	x, xDot := c.state.AtVec(0), c.state.AtVec(1)
	th, thDot := c.state.AtVec(2), c.state.AtVec(3)

	force := ForceMag
	if action == ActionLeft {
		force = -ForceMag
	}

	cosTheta := math.Cos(th)
	sinTheta := math.Sin(th)

	totalMass := PoleMass + CartMass
	poleMassLength := PoleMass * HalfPoleLength

	temp := (force + poleMassLength*thDot*thDot*sinTheta) / totalMass
	thAcc := (Gravity*sinTheta - cosTheta*temp) / (HalfPoleLength *
		(4.0/3.0 - PoleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thAcc*cosTheta/totalMass

	x += Dt * xDot
	xDot += Dt * xAcc
	th += Dt * thDot
	thDot += Dt * thAcc

	c.state = mat.NewVecDense(ObservationDims, []float64{x, xDot, th,
		thDot})
	c.steps++

	terminal := math.Abs(x) > TrackLimit || math.Abs(th) > FailAngle
	truncated := !terminal && c.steps >= c.cutoff

	return env.Step{
		Observation: c.state,
		Reward:      1.0,
		Terminal:    terminal,
		Truncated:   truncated,
	}, nil
}

// ObservationSize returns the number of observation features.
func (c *Cartpole) ObservationSize() int { return ObservationDims }

// ActionSize returns the number of action dimensions.
func (c *Cartpole) ActionSize() int { return 1 }

// ContinuousAction returns false: Cartpole actions are discrete.
func (c *Cartpole) ContinuousAction() bool { return false }

// NumActions returns the number of discrete actions.
func (c *Cartpole) NumActions() int { return 2 }

func (c *Cartpole) String() string {
	if c.state == nil {
		return "Cartpole  |  unreset"
	}
	msg := "Cartpole  |  Position: %v  |  Speed: %v  |  Angle: %v" +
		"  |  Angular Velocity: %v"
	return fmt.Sprintf(msg, c.state.AtVec(0), c.state.AtVec(1),
		c.state.AtVec(2), c.state.AtVec(3))
}
