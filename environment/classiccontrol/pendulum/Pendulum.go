// Package pendulum implements the Pendulum classic control
// environment: a free pendulum must be swung up and held upright by
// applying a bounded torque at its pivot.
package pendulum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "github.com/samuelfneumann/gorollout/environment"
	"github.com/samuelfneumann/gorollout/utils/floatutils"
)

const (
	// Physical constants
	Gravity    float64 = 10.0
	Mass       float64 = 1.0
	Length     float64 = 1.0
	Dt         float64 = 0.05
	MaxSpeed   float64 = 8.0
	MaxTorque  float64 = 2.0
	AngleBound float64 = math.Pi

	// Starting angular speeds are drawn from +/- SpeedBound
	SpeedBound float64 = 1.0

	ObservationDims int = 3
)

// Pendulum implements the Pendulum environment. The observation is
// [cos θ, sin θ, angular velocity]; the single continuous action is
// the torque applied at the pivot, clipped to +/- MaxTorque. The
// reward is the negative of a cost that penalizes distance from
// upright, speed, and effort, so it is 0 at rest pointing up and
// negative elsewhere. Episodes never reach a terminal state; they are
// always cut by the step cutoff.
type Pendulum struct {
	starter  *env.UniformStarter
	theta    float64
	thetaDot float64
	reset    bool
	steps    int
	cutoff   int
}

// New returns a Pendulum whose episodes are truncated after cutoff
// steps.
func New(cutoff int) *Pendulum {
	angle := r1.Interval{Min: -AngleBound, Max: AngleBound}
	speed := r1.Interval{Min: -SpeedBound, Max: SpeedBound}
	starter := env.NewUniformStarter([]r1.Interval{angle, speed}, 0)

	return &Pendulum{starter: starter, cutoff: cutoff}
}

// Seed fixes the randomness of the starting state distribution.
func (p *Pendulum) Seed(seed uint64) {
	p.starter.Seed(seed)
}

// Reset starts a new episode at an angle and speed drawn from the
// starter.
func (p *Pendulum) Reset() (mat.Vector, error) {
	start := p.starter.Start()
	p.theta = start.AtVec(0)
	p.thetaDot = start.AtVec(1)
	p.steps = 0
	p.reset = true
	return p.observation(), nil
}

// Step applies a torque and advances the pendulum dynamics by Dt.
func (p *Pendulum) Step(a mat.Vector) (env.Step, error) {
	if !p.reset {
		return env.Step{}, fmt.Errorf("step: environment was never reset")
	}

	torque := floatutils.Clip(a.AtVec(0), -MaxTorque, MaxTorque)

	angle := normalizeAngle(p.theta)
	cost := angle*angle + 0.1*p.thetaDot*p.thetaDot +
		0.001*torque*torque

	thetaDot := p.thetaDot + Dt*(3.0*Gravity/(2.0*Length)*
		math.Sin(p.theta)+3.0/(Mass*Length*Length)*torque)
	thetaDot = floatutils.Clip(thetaDot, -MaxSpeed, MaxSpeed)

	p.theta += Dt * thetaDot
	p.thetaDot = thetaDot
	p.steps++

	return env.Step{
		Observation: p.observation(),
		Reward:      -cost,
		Terminal:    false,
		Truncated:   p.steps >= p.cutoff,
	}, nil
}

// ObservationSize returns the number of observation features.
func (p *Pendulum) ObservationSize() int { return ObservationDims }

// ActionSize returns the number of action dimensions.
func (p *Pendulum) ActionSize() int { return 1 }

// ContinuousAction returns true: the torque is continuous.
func (p *Pendulum) ContinuousAction() bool { return true }

func (p *Pendulum) String() string {
	msg := "Pendulum  |  Angle: %v  |  Angular Velocity: %v"
	return fmt.Sprintf(msg, p.theta, p.thetaDot)
}

func (p *Pendulum) observation() mat.Vector {
	return mat.NewVecDense(ObservationDims, []float64{
		math.Cos(p.theta), math.Sin(p.theta), p.thetaDot,
	})
}

// normalizeAngle wraps an angle to [-π, π).
func normalizeAngle(th float64) float64 {
	wrapped := math.Mod(th+math.Pi, 2.0*math.Pi)
	if wrapped < 0 {
		wrapped += 2.0 * math.Pi
	}
	return wrapped - math.Pi
}
