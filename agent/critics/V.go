// Package critics implements value-function agents. A critic reads the
// observation at a time step and records value estimates that later
// stages of a training loop consume, state values for advantage
// estimation and per-action values for Q-learning style targets.
package critics

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/workspace"
)

// V estimates state values. Its network predicts a single value per
// batch row, written to the state-value channel each step.
type V struct {
	critic network.NeuralNet
	vm     G.VM
	batch  int
}

// Compile-time interface checks
var (
	_ agent.Agent  = (*V)(nil)
	_ agent.Writer = (*V)(nil)
)

// NewV returns a V critic using critic to predict state values.
func NewV(critic network.NeuralNet) (*V, error) {
	if critic.Outputs() != 1 {
		return nil, fmt.Errorf("newv: critic predicts %d outputs, "+
			"expected 1", critic.Outputs())
	}
	return &V{
		critic: critic,
		vm:     G.NewTapeMachine(critic.Graph()),
		batch:  critic.BatchSize(),
	}, nil
}

// Network returns the critic's network.
func (v *V) Network() network.NeuralNet { return v.critic }

// SetWeights copies the weights of source into the critic's network.
func (v *V) SetWeights(source network.NeuralNet) error {
	return v.critic.Set(source)
}

// WrittenChannels lists the channels the critic writes.
func (v *V) WrittenChannels() []string {
	return []string{workspace.VValueChannel}
}

// Forward predicts the value of every observation at time step t.
func (v *V) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	obs, err := ws.Get(workspace.ObsChannel, t)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	if err := v.critic.SetInput(workspace.Float64s(obs)); err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	v.vm.Reset()
	if err := v.vm.RunAll(); err != nil {
		return fmt.Errorf("forward: could not run critic network: %v", err)
	}

	values := make([]float64, v.batch)
	copy(values, workspace.Float64s(v.critic.Output().(*tensor.Dense)))

	err = ws.Set(workspace.VValueChannel, t,
		tensor.New(tensor.WithShape(v.batch),
			tensor.WithBacking(values)))
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	return nil
}
