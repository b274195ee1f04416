// Package solver wraps Gorgonia Solvers so that they can be selected
// and parameterized from YAML configuration files.
package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
	RMSProp Type = "RMSProp"
)

// Config describes a Gorgonia Solver. Hyperparameters left at zero
// fall back to defaults. Clip <= 0 disables gradient clipping.
type Config struct {
	Type     Type    `yaml:"type"`
	StepSize float64 `yaml:"step_size"`
	Epsilon  float64 `yaml:"epsilon"`
	Beta1    float64 `yaml:"beta1"`
	Beta2    float64 `yaml:"beta2"`
	Rho      float64 `yaml:"rho"`
	Clip     float64 `yaml:"clip"`
}

// withDefaults fills unset hyperparameters with their defaults.
func (c Config) withDefaults() Config {
	if c.Epsilon == 0 {
		c.Epsilon = 1e-8
	}
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Rho == 0 {
		c.Rho = 0.99
	}
	return c
}

// Create returns the Gorgonia Solver described by the Config. The
// batch parameter is the number of samples each gradient was computed
// over.
func (c Config) Create(batch int) (G.Solver, error) {
	if c.StepSize <= 0 {
		return nil, fmt.Errorf("create: step size must be positive, "+
			"got %v", c.StepSize)
	}
	c = c.withDefaults()

	opts := []G.SolverOpt{
		G.WithLearnRate(c.StepSize),
		G.WithBatchSize(float64(batch)),
	}
	if c.Clip > 0 {
		opts = append(opts, G.WithClip(c.Clip))
	}

	switch c.Type {
	case Adam:
		opts = append(opts, G.WithEps(c.Epsilon), G.WithBeta1(c.Beta1),
			G.WithBeta2(c.Beta2))
		return G.NewAdamSolver(opts...), nil

	case Vanilla:
		return G.NewVanillaSolver(opts...), nil

	case RMSProp:
		opts = append(opts, G.WithEps(c.Epsilon), G.WithRho(c.Rho))
		return G.NewRMSPropSolver(opts...), nil
	}
	return nil, fmt.Errorf("create: no such solver type %q", c.Type)
}

// NewDefaultAdam returns an Adam Solver with default hyperparameters.
func NewDefaultAdam(stepSize float64, batch int) (G.Solver, error) {
	return Config{Type: Adam, StepSize: stepSize}.Create(batch)
}

// NewVanilla returns a vanilla gradient descent Solver.
func NewVanilla(stepSize float64, batch int, clip float64) (G.Solver,
	error) {
	return Config{Type: Vanilla, StepSize: stepSize, Clip: clip}.
		Create(batch)
}
