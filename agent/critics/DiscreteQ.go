package critics

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/workspace"
)

// DiscreteQ estimates action values. Its network predicts one value
// per discrete action per batch row, written to the action-value
// channel each step.
type DiscreteQ struct {
	critic  network.NeuralNet
	vm      G.VM
	batch   int
	actions int
}

// Compile-time interface checks
var (
	_ agent.Agent  = (*DiscreteQ)(nil)
	_ agent.Writer = (*DiscreteQ)(nil)
)

// NewDiscreteQ returns a DiscreteQ critic using critic to predict
// action values.
func NewDiscreteQ(critic network.NeuralNet) (*DiscreteQ, error) {
	if critic.Outputs() < 2 {
		return nil, fmt.Errorf("newdiscreteq: critic predicts %d < 2 "+
			"action values", critic.Outputs())
	}
	return &DiscreteQ{
		critic:  critic,
		vm:      G.NewTapeMachine(critic.Graph()),
		batch:   critic.BatchSize(),
		actions: critic.Outputs(),
	}, nil
}

// Network returns the critic's network.
func (q *DiscreteQ) Network() network.NeuralNet { return q.critic }

// SetWeights copies the weights of source into the critic's network.
func (q *DiscreteQ) SetWeights(source network.NeuralNet) error {
	return q.critic.Set(source)
}

// WrittenChannels lists the channels the critic writes.
func (q *DiscreteQ) WrittenChannels() []string {
	return []string{workspace.QValuesChannel}
}

// Forward predicts the value of every action at time step t.
func (q *DiscreteQ) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	obs, err := ws.Get(workspace.ObsChannel, t)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	if err := q.critic.SetInput(workspace.Float64s(obs)); err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	q.vm.Reset()
	if err := q.vm.RunAll(); err != nil {
		return fmt.Errorf("forward: could not run critic network: %v", err)
	}

	values := make([]float64, q.batch*q.actions)
	copy(values, workspace.Float64s(q.critic.Output().(*tensor.Dense)))

	err = ws.Set(workspace.QValuesChannel, t,
		tensor.New(tensor.WithShape(q.batch, q.actions),
			tensor.WithBacking(values)))
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	return nil
}
