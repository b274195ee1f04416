// Package ppo implements proximal policy optimization with a clipped
// surrogate objective. Each training step consumes one completed
// rollout segment and replays it for several optimization epochs: the
// probability ratio between the current policy and the policy that
// collected the segment is clipped so that no single segment drags the
// policy far from the one that produced it.
package ppo

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gorollout/agent/actors"
	"github.com/samuelfneumann/gorollout/agent/critics"
	"github.com/samuelfneumann/gorollout/algo"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/solver"
	"github.com/samuelfneumann/gorollout/utils/op"
	"github.com/samuelfneumann/gorollout/workspace"
)

// Config holds the hyperparameters of a PPO update.
type Config struct {
	Gamma              float64       `yaml:"gamma"`
	Lambda             float64       `yaml:"lambda"`
	ClipRange          float64       `yaml:"clip_range"`
	Epochs             int           `yaml:"epochs"`
	EntropyWeight      float64       `yaml:"entropy_weight"`
	NormalizeAdvantage bool          `yaml:"normalize_advantage"`
	ActorSolver        solver.Config `yaml:"actor_solver"`
	CriticSolver       solver.Config `yaml:"critic_solver"`
}

// Losses reports the loss values of the final optimization epoch of
// one training step.
type Losses struct {
	Actor  float64
	Critic float64
}

// PPO updates a discrete softmax actor and a state-value critic from
// rollout segments of fixed size.
type PPO struct {
	config Config
	actor  *actors.Discrete
	critic *critics.V

	actions     int
	transitions int

	trainPolicy network.NeuralNet
	selected    *G.Node
	advantages  *G.Node
	oldLogProbs *G.Node
	actorLoss   G.Value
	actorVM     G.VM
	actorSolver G.Solver

	trainCritic  network.NeuralNet
	targets      *G.Node
	criticLoss   G.Value
	criticVM     G.VM
	criticSolver G.Solver
}

// New returns a PPO updater for rollout segments of nSteps time steps
// over nEnvs environment slots.
func New(config Config, actor *actors.Discrete, critic *critics.V,
	nSteps, nEnvs int) (*PPO, error) {
	if nSteps < 2 || nEnvs < 1 {
		return nil, fmt.Errorf("new: rollout segments must hold at "+
			"least 2 time steps of at least 1 slot, got %d x %d",
			nSteps, nEnvs)
	}
	if config.ClipRange <= 0 || config.ClipRange >= 1 {
		return nil, fmt.Errorf("new: clip range must be in (0, 1), "+
			"got %v", config.ClipRange)
	}
	if config.Epochs < 1 {
		return nil, fmt.Errorf("new: need at least 1 optimization "+
			"epoch, got %d", config.Epochs)
	}

	p := &PPO{
		config:      config,
		actor:       actor,
		critic:      critic,
		actions:     actor.Network().Outputs(),
		transitions: (nSteps - 1) * nEnvs,
	}
	if err := p.buildActorGraph(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := p.buildCriticGraph(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return p, nil
}

// buildActorGraph clones the actor network for training and builds the
// clipped surrogate loss on its graph.
func (p *PPO) buildActorGraph() error {
	trainPolicy, err := p.actor.Network().CloneWithBatch(p.transitions)
	if err != nil {
		return fmt.Errorf("could not clone policy network: %v", err)
	}
	graph := trainPolicy.Graph()

	p.selected = G.NewMatrix(graph, tensor.Float64,
		G.WithShape(p.transitions, p.actions),
		G.WithName("selectedActions"))
	p.advantages = G.NewVector(graph, tensor.Float64,
		G.WithShape(p.transitions), G.WithName("advantages"))
	p.oldLogProbs = G.NewVector(graph, tensor.Float64,
		G.WithShape(p.transitions), G.WithName("oldLogProbs"))

	// Log-probability of the taken actions under the current weights
	logits := trainPolicy.Prediction()
	logSumExp := op.LogSumExp(logits, 1)
	logPi := G.Must(G.BroadcastSub(logits, logSumExp, nil, []byte{1}))
	logProb := G.Must(G.Sum(G.Must(G.HadamardProd(logPi, p.selected)), 1))

	// Clipped surrogate objective
	ratio := G.Must(G.Exp(G.Must(G.Sub(logProb, p.oldLogProbs))))
	clipped, err := op.Clip(ratio, 1-p.config.ClipRange,
		1+p.config.ClipRange)
	if err != nil {
		return fmt.Errorf("could not clip probability ratio: %v", err)
	}
	surrogate, err := op.Min(
		G.Must(G.HadamardProd(ratio, p.advantages)),
		G.Must(G.HadamardProd(clipped, p.advantages)),
	)
	if err != nil {
		return fmt.Errorf("could not build surrogate objective: %v", err)
	}
	loss := G.Must(G.Neg(G.Must(G.Mean(surrogate))))

	if p.config.EntropyWeight != 0 {
		pi := G.Must(G.Exp(logPi))
		entropy := G.Must(G.Neg(G.Must(G.Sum(G.Must(G.HadamardProd(pi,
			logPi)), 1))))
		bonus := G.Must(G.Mul(G.NewConstant(p.config.EntropyWeight),
			G.Must(G.Mean(entropy))))
		loss = G.Must(G.Sub(loss, bonus))
	}
	G.Read(loss, &p.actorLoss)

	if _, err := G.Grad(loss, trainPolicy.Learnables()...); err != nil {
		return fmt.Errorf("could not differentiate actor loss: %v", err)
	}

	p.trainPolicy = trainPolicy
	p.actorVM = G.NewTapeMachine(graph,
		G.BindDualValues(trainPolicy.Learnables()...))
	p.actorSolver, err = p.config.ActorSolver.Create(p.transitions)
	if err != nil {
		return fmt.Errorf("could not create actor solver: %v", err)
	}
	return nil
}

// buildCriticGraph clones the critic network for training and builds
// the value regression loss on its graph.
func (p *PPO) buildCriticGraph() error {
	trainCritic, err := p.critic.Network().CloneWithBatch(p.transitions)
	if err != nil {
		return fmt.Errorf("could not clone critic network: %v", err)
	}
	graph := trainCritic.Graph()

	p.targets = G.NewMatrix(graph, tensor.Float64,
		G.WithShape(p.transitions, 1), G.WithName("valueTargets"))

	loss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(
		trainCritic.Prediction(), p.targets))))))
	G.Read(loss, &p.criticLoss)

	if _, err := G.Grad(loss, trainCritic.Learnables()...); err != nil {
		return fmt.Errorf("could not differentiate critic loss: %v", err)
	}

	p.trainCritic = trainCritic
	p.criticVM = G.NewTapeMachine(graph,
		G.BindDualValues(trainCritic.Learnables()...))
	p.criticSolver, err = p.config.CriticSolver.Create(p.transitions)
	if err != nil {
		return fmt.Errorf("could not create critic solver: %v", err)
	}
	return nil
}

// Step performs one PPO update from the completed rollout segment in
// ws: Epochs optimization epochs over the segment, then pushes the
// updated weights into the rollout actor and critic.
func (p *PPO) Step(ws *workspace.Workspace) (Losses, error) {
	rollout, err := algo.Extract(ws, p.config.Gamma, p.config.Lambda,
		p.config.NormalizeAdvantage)
	if err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}
	if rollout.Transitions() != p.transitions {
		return Losses{}, fmt.Errorf("step: rollout holds %d transitions, "+
			"update graphs were built for %d", rollout.Transitions(),
			p.transitions)
	}

	oneHot, err := rollout.OneHotActions(p.actions)
	if err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}

	for epoch := 0; epoch < p.config.Epochs; epoch++ {
		if err := p.actorEpoch(rollout, oneHot); err != nil {
			return Losses{}, fmt.Errorf("step: epoch %d: %v", epoch, err)
		}
		if err := p.criticEpoch(rollout); err != nil {
			return Losses{}, fmt.Errorf("step: epoch %d: %v", epoch, err)
		}
	}

	if err := p.actor.SetWeights(p.trainPolicy); err != nil {
		return Losses{}, fmt.Errorf("step: could not push actor "+
			"weights: %v", err)
	}
	if err := p.critic.SetWeights(p.trainCritic); err != nil {
		return Losses{}, fmt.Errorf("step: could not push critic "+
			"weights: %v", err)
	}

	return Losses{
		Actor:  p.actorLoss.Data().(float64),
		Critic: p.criticLoss.Data().(float64),
	}, nil
}

// actorEpoch runs one optimization epoch of the clipped surrogate
// objective.
func (p *PPO) actorEpoch(rollout *algo.Rollout, oneHot []float64) error {
	if err := p.trainPolicy.SetInput(rollout.TransitionObs()); err != nil {
		return err
	}
	err := G.Let(p.selected, tensor.New(
		tensor.WithShape(p.transitions, p.actions),
		tensor.WithBacking(append([]float64{}, oneHot...))))
	if err != nil {
		return fmt.Errorf("could not set actions: %v", err)
	}
	err = G.Let(p.advantages, tensor.New(tensor.WithShape(p.transitions),
		tensor.WithBacking(append([]float64{}, rollout.Advantages...))))
	if err != nil {
		return fmt.Errorf("could not set advantages: %v", err)
	}
	err = G.Let(p.oldLogProbs, tensor.New(
		tensor.WithShape(p.transitions),
		tensor.WithBacking(append([]float64{},
			rollout.LogProbs[:p.transitions]...))))
	if err != nil {
		return fmt.Errorf("could not set collection log-probabilities: %v",
			err)
	}

	p.actorVM.Reset()
	if err := p.actorVM.RunAll(); err != nil {
		return fmt.Errorf("could not run actor update: %v", err)
	}
	if err := p.actorSolver.Step(p.trainPolicy.Model()); err != nil {
		return fmt.Errorf("could not step actor solver: %v", err)
	}
	return nil
}

// criticEpoch runs one optimization epoch of the value regression.
func (p *PPO) criticEpoch(rollout *algo.Rollout) error {
	if err := p.trainCritic.SetInput(rollout.TransitionObs()); err != nil {
		return err
	}
	err := G.Let(p.targets, tensor.New(
		tensor.WithShape(p.transitions, 1),
		tensor.WithBacking(append([]float64{}, rollout.Targets...))))
	if err != nil {
		return fmt.Errorf("could not set value targets: %v", err)
	}

	p.criticVM.Reset()
	if err := p.criticVM.RunAll(); err != nil {
		return fmt.Errorf("could not run critic update: %v", err)
	}
	if err := p.criticSolver.Step(p.trainCritic.Model()); err != nil {
		return fmt.Errorf("could not step critic solver: %v", err)
	}
	return nil
}
