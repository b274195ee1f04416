package actors

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/workspace"
)

const (
	// Log standard deviations are clipped into this range to keep the
	// policy density finite
	minLogStd float64 = -20.0
	maxLogStd float64 = 2.0
)

// Gaussian is a diagonal Gaussian policy over continuous actions. Its
// network predicts 2 * actionDims outputs per batch row: the first
// actionDims are the mean and the rest are the log standard deviation
// of each action dimension.
type Gaussian struct {
	policy     network.NeuralNet
	vm         G.VM
	actionDims int
	batch      int
	normal     distuv.Normal
	seed       uint64
}

// Compile-time interface checks
var (
	_ agent.Agent  = (*Gaussian)(nil)
	_ agent.Seeder = (*Gaussian)(nil)
	_ agent.Writer = (*Gaussian)(nil)
)

// NewGaussian returns a Gaussian actor using policy to produce action
// distribution parameters.
func NewGaussian(policy network.NeuralNet, seed uint64) (*Gaussian,
	error) {
	if policy.Outputs()%2 != 0 {
		return nil, fmt.Errorf("newgaussian: policy must predict an "+
			"even number of outputs, got %d", policy.Outputs())
	}

	g := &Gaussian{
		policy:     policy,
		vm:         G.NewTapeMachine(policy.Graph()),
		actionDims: policy.Outputs() / 2,
		batch:      policy.BatchSize(),
	}
	g.Seed(seed)
	return g, nil
}

// Seed fixes the actor's action sampling stream.
func (g *Gaussian) Seed(seed uint64) {
	g.seed = seed
	g.normal = distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.New(rand.NewSource(seed)),
	}
}

// Network returns the actor's policy network.
func (g *Gaussian) Network() network.NeuralNet { return g.policy }

// SetWeights copies the weights of source into the actor's policy.
func (g *Gaussian) SetWeights(source network.NeuralNet) error {
	return g.policy.Set(source)
}

// WrittenChannels lists every channel the actor may write.
func (g *Gaussian) WrittenChannels() []string {
	return []string{
		workspace.ActionChannel,
		workspace.ActionLogProbsChannel,
		workspace.EntropyChannel,
		workspace.LogProbPredictChannel,
	}
}

// Forward runs the policy on the observation at time step t. Unless
// re-scoring was requested, it writes an action and the action's
// log-density; sampled when opts.Stochastic, the mean otherwise. With
// opts.PredictProba it instead re-scores the action already stored at
// t. With opts.ComputeEntropy it also writes the policy entropy.
func (g *Gaussian) Forward(ws *workspace.Workspace, t int,
	opts agent.Options) error {
	means, stds, err := g.distribution(ws, t)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	if opts.ComputeEntropy {
		// Entropy of a diagonal Gaussian: sum over dimensions of
		// (1/2) log(2πe σ²)
		entropy := make([]float64, g.batch)
		for i := 0; i < g.batch; i++ {
			for j := 0; j < g.actionDims; j++ {
				entropy[i] += 0.5 * math.Log(2*math.Pi*math.E*
					stds[i][j]*stds[i][j])
			}
		}
		err := ws.Set(workspace.EntropyChannel, t,
			tensor.New(tensor.WithShape(g.batch),
				tensor.WithBacking(entropy)))
		if err != nil {
			return fmt.Errorf("forward: %v", err)
		}
	}

	if opts.PredictProba {
		return g.rescore(ws, t, means, stds)
	}
	return g.act(ws, t, means, stds, opts.Stochastic)
}

// distribution runs the policy network and returns the mean and
// standard deviation rows of the batch.
func (g *Gaussian) distribution(ws *workspace.Workspace,
	t int) ([][]float64, [][]float64, error) {
	obs, err := ws.Get(workspace.ObsChannel, t)
	if err != nil {
		return nil, nil, err
	}
	if err := g.policy.SetInput(workspace.Float64s(obs)); err != nil {
		return nil, nil, err
	}

	g.vm.Reset()
	if err := g.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("could not run policy network: %v", err)
	}

	out := workspace.Float64s(g.policy.Output().(*tensor.Dense))
	width := 2 * g.actionDims
	means := make([][]float64, g.batch)
	stds := make([][]float64, g.batch)
	for i := 0; i < g.batch; i++ {
		row := out[i*width : (i+1)*width]
		for _, v := range row {
			if math.IsNaN(v) {
				return nil, nil, fmt.Errorf("policy network produced NaN "+
					"outputs for batch slot %d", i)
			}
		}

		means[i] = row[:g.actionDims]
		stds[i] = make([]float64, g.actionDims)
		for j, logStd := range row[g.actionDims:] {
			if logStd < minLogStd {
				logStd = minLogStd
			} else if logStd > maxLogStd {
				logStd = maxLogStd
			}
			stds[i][j] = math.Exp(logStd)
		}
	}
	return means, stds, nil
}

// act samples an action per slot and records it with its log-density.
func (g *Gaussian) act(ws *workspace.Workspace, t int, means,
	stds [][]float64, stochastic bool) error {
	actions := make([]float64, g.batch*g.actionDims)
	logProbs := make([]float64, g.batch)

	for i := 0; i < g.batch; i++ {
		for j := 0; j < g.actionDims; j++ {
			a := means[i][j]
			if stochastic {
				a += stds[i][j] * g.normal.Rand()
			}
			actions[i*g.actionDims+j] = a
			logProbs[i] += logPdf(a, means[i][j], stds[i][j])
		}
	}

	err := ws.Set(workspace.ActionChannel, t,
		tensor.New(tensor.WithShape(g.batch, g.actionDims),
			tensor.WithBacking(actions)))
	if err != nil {
		return fmt.Errorf("act: %v", err)
	}
	err = ws.Set(workspace.ActionLogProbsChannel, t,
		tensor.New(tensor.WithShape(g.batch),
			tensor.WithBacking(logProbs)))
	if err != nil {
		return fmt.Errorf("act: %v", err)
	}
	return nil
}

// rescore writes the log-density of the action already stored at time
// step t under the actor's current weights.
func (g *Gaussian) rescore(ws *workspace.Workspace, t int, means,
	stds [][]float64) error {
	stored, err := ws.Get(workspace.ActionChannel, t)
	if err != nil {
		return fmt.Errorf("rescore: %v", err)
	}

	actions := workspace.Float64s(stored)
	if len(actions) != g.batch*g.actionDims {
		return fmt.Errorf("rescore: stored actions have %d elements, "+
			"expected %d", len(actions), g.batch*g.actionDims)
	}

	scored := make([]float64, g.batch)
	for i := 0; i < g.batch; i++ {
		for j := 0; j < g.actionDims; j++ {
			scored[i] += logPdf(actions[i*g.actionDims+j], means[i][j],
				stds[i][j])
		}
	}

	err = ws.Set(workspace.LogProbPredictChannel, t,
		tensor.New(tensor.WithShape(g.batch),
			tensor.WithBacking(scored)))
	if err != nil {
		return fmt.Errorf("rescore: %v", err)
	}
	return nil
}

// logPdf is the log-density of a scalar Gaussian.
func logPdf(x, mean, std float64) float64 {
	z := (x - mean) / std
	return -0.5*z*z - math.Log(std) - 0.5*math.Log(2*math.Pi)
}
