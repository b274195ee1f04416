// Package envconfig provides configuration structs for creating
// environments with default physical parameters. Environment
// configurations in this package are YAML serializable.
package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/gorollout/environment"
	"github.com/samuelfneumann/gorollout/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/gorollout/environment/classiccontrol/pendulum"
)

// EnvName stores the names of environments that can be configured
// with this package.
type EnvName string

// Environments available for configuration
const (
	Cartpole EnvName = "Cartpole"
	Pendulum EnvName = "Pendulum"
)

// Config describes a specific environment configuration.
type Config struct {
	Environment   EnvName `yaml:"environment"`
	EpisodeCutoff int     `yaml:"episode_cutoff"`
}

// Create returns the environment described by the Config. An unknown
// environment name is a fatal configuration error.
func (c Config) Create() (env.Environment, error) {
	if c.EpisodeCutoff <= 0 {
		return nil, fmt.Errorf("create: episode cutoff must be positive, "+
			"got %d", c.EpisodeCutoff)
	}

	switch c.Environment {
	case Cartpole:
		return cartpole.New(c.EpisodeCutoff), nil
	case Pendulum:
		return pendulum.New(c.EpisodeCutoff), nil
	}
	return nil, fmt.Errorf("create: no such environment %q", c.Environment)
}

// Factory returns a factory function creating independent instances of
// the configured environment, one per batch slot of an environment
// driver.
func (c Config) Factory() func() (env.Environment, error) {
	return func() (env.Environment, error) {
		return c.Create()
	}
}

// NumActions returns the number of discrete actions of the configured
// environment, or an error for continuous-action environments.
func (c Config) NumActions() (int, error) {
	e, err := c.Create()
	if err != nil {
		return 0, err
	}
	if e.ContinuousAction() {
		return 0, fmt.Errorf("numactions: %q has continuous actions",
			c.Environment)
	}
	switch concrete := e.(type) {
	case *cartpole.Cartpole:
		return concrete.NumActions(), nil
	}
	return 0, fmt.Errorf("numactions: unknown discrete environment %q",
		c.Environment)
}
