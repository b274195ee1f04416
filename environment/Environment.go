// Package environment outlines the interface that simulated
// environments expose to the environment drivers, along with starting
// state distributions shared by the concrete environments.
package environment

import "gonum.org/v1/gonum/mat"

// Step packages the result of one environment transition.
type Step struct {
	Observation mat.Vector
	Reward      float64

	// Terminal reports that the underlying dynamics reached a terminal
	// state. Value bootstrapping must stop at such a step.
	Terminal bool

	// Truncated reports that the episode was cut by a time limit while
	// still alive. Value bootstrapping continues past such a step.
	Truncated bool
}

// Over returns whether the episode has ended, for either reason.
func (s Step) Over() bool {
	return s.Terminal || s.Truncated
}

// Environment implements a simulated environment. Environments are
// independent: a batch of instances never interact, and each is seeded
// separately before its first Reset.
type Environment interface {
	// Seed fixes the randomness of the starting state distribution and
	// any stochastic dynamics. Given a fixed seed, trajectories are
	// reproducible.
	Seed(seed uint64)

	// Reset starts a new episode and returns its first observation.
	Reset() (mat.Vector, error)

	// Step applies an action and advances the environment by one
	// transition.
	Step(action mat.Vector) (Step, error)

	// ObservationSize returns the number of observation features.
	ObservationSize() int

	// ActionSize returns the number of action dimensions.
	ActionSize() int

	// ContinuousAction returns whether actions are continuous vectors
	// rather than discrete choices.
	ContinuousAction() bool
}
