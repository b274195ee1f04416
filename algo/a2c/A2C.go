// Package a2c implements advantage actor-critic. Each training step
// consumes one completed rollout segment: the actor descends the
// policy gradient weighted by GAE(λ) advantages with an entropy bonus,
// and the critic regresses its value estimates onto the advantage
// targets.
package a2c

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

// Config holds the hyperparameters of an A2C update.
type Config struct {
	Gamma              float64       `yaml:"gamma"`
	Lambda             float64       `yaml:"lambda"`
	EntropyWeight      float64       `yaml:"entropy_weight"`
	NormalizeAdvantage bool          `yaml:"normalize_advantage"`
	ActorSolver        solver.Config `yaml:"actor_solver"`
	CriticSolver       solver.Config `yaml:"critic_solver"`
}

// Losses reports the loss values of one training step.
type Losses struct {
	Actor  float64
	Critic float64
}

// A2C updates a discrete softmax actor and a state-value critic from
// rollout segments of fixed size. The update runs on training clones
// of the actor and critic networks and pushes the stepped weights back
// into the rollout agents afterwards.
type A2C struct {
	config Config
	actor  *actors.Discrete
	critic *critics.V

	actions     int
	transitions int

	trainPolicy network.NeuralNet
	selected    *G.Node
	advantages  *G.Node
	actorLoss   G.Value
	actorVM     G.VM
	actorSolver G.Solver

	trainCritic  network.NeuralNet
	targets      *G.Node
	criticLoss   G.Value
	criticVM     G.VM
	criticSolver G.Solver
}

// New returns an A2C updater for rollout segments of nSteps time steps
// over nEnvs environment slots.
func New(config Config, actor *actors.Discrete, critic *critics.V,
	nSteps, nEnvs int) (*A2C, error) {
	if nSteps < 2 || nEnvs < 1 {
		return nil, fmt.Errorf("new: rollout segments must hold at "+
			"least 2 time steps of at least 1 slot, got %d x %d",
			nSteps, nEnvs)
	}
	transitions := (nSteps - 1) * nEnvs

	a := &A2C{
		config:      config,
		actor:       actor,
		critic:      critic,
		actions:     actor.Network().Outputs(),
		transitions: transitions,
	}
	if err := a.buildActorGraph(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := a.buildCriticGraph(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return a, nil
}

// buildActorGraph clones the actor network for training and builds the
// policy-gradient loss on its graph.
func (a *A2C) buildActorGraph() error {
	trainPolicy, err := a.actor.Network().CloneWithBatch(a.transitions)
	if err != nil {
		return fmt.Errorf("could not clone policy network: %v", err)
	}
	graph := trainPolicy.Graph()

	a.selected = G.NewMatrix(graph, tensor.Float64,
		G.WithShape(a.transitions, a.actions),
		G.WithName("selectedActions"))
	a.advantages = G.NewVector(graph, tensor.Float64,
		G.WithShape(a.transitions), G.WithName("advantages"))

	// Log-softmax of the policy logits
	logits := trainPolicy.Prediction()
	logSumExp := op.LogSumExp(logits, 1)
	logPi := G.Must(G.BroadcastSub(logits, logSumExp, nil, []byte{1}))

	// Log-probability of the taken actions
	logProb := G.Must(G.Sum(G.Must(G.HadamardProd(logPi, a.selected)), 1))

	loss := G.Must(G.Neg(G.Must(G.Mean(G.Must(G.HadamardProd(logProb,
		a.advantages))))))

	if a.config.EntropyWeight != 0 {
		pi := G.Must(G.Exp(logPi))
		entropy := G.Must(G.Neg(G.Must(G.Sum(G.Must(G.HadamardProd(pi,
			logPi)), 1))))
		bonus := G.Must(G.Mul(G.NewConstant(a.config.EntropyWeight),
			G.Must(G.Mean(entropy))))
		loss = G.Must(G.Sub(loss, bonus))
	}
	G.Read(loss, &a.actorLoss)

	if _, err := G.Grad(loss, trainPolicy.Learnables()...); err != nil {
		return fmt.Errorf("could not differentiate actor loss: %v", err)
	}

	a.trainPolicy = trainPolicy
	a.actorVM = G.NewTapeMachine(graph,
		G.BindDualValues(trainPolicy.Learnables()...))
	a.actorSolver, err = a.config.ActorSolver.Create(a.transitions)
	if err != nil {
		return fmt.Errorf("could not create actor solver: %v", err)
	}
	return nil
}

// buildCriticGraph clones the critic network for training and builds
// the value regression loss on its graph.
func (a *A2C) buildCriticGraph() error {
	trainCritic, err := a.critic.Network().CloneWithBatch(a.transitions)
	if err != nil {
		return fmt.Errorf("could not clone critic network: %v", err)
	}
	graph := trainCritic.Graph()

	a.targets = G.NewMatrix(graph, tensor.Float64,
		G.WithShape(a.transitions, 1), G.WithName("valueTargets"))

	loss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(
		trainCritic.Prediction(), a.targets))))))
	G.Read(loss, &a.criticLoss)

	if _, err := G.Grad(loss, trainCritic.Learnables()...); err != nil {
		return fmt.Errorf("could not differentiate critic loss: %v", err)
	}

	a.trainCritic = trainCritic
	a.criticVM = G.NewTapeMachine(graph,
		G.BindDualValues(trainCritic.Learnables()...))
	a.criticSolver, err = a.config.CriticSolver.Create(a.transitions)
	if err != nil {
		return fmt.Errorf("could not create critic solver: %v", err)
	}
	return nil
}

// Step performs one A2C update from the completed rollout segment in
// ws and pushes the updated weights into the rollout actor and critic.
func (a *A2C) Step(ws *workspace.Workspace) (Losses, error) {
	rollout, err := algo.Extract(ws, a.config.Gamma, a.config.Lambda,
		a.config.NormalizeAdvantage)
	if err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}
	if rollout.Transitions() != a.transitions {
		return Losses{}, fmt.Errorf("step: rollout holds %d transitions, "+
			"update graphs were built for %d", rollout.Transitions(),
			a.transitions)
	}

	oneHot, err := rollout.OneHotActions(a.actions)
	if err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}

	// Actor update
	if err := a.trainPolicy.SetInput(rollout.TransitionObs()); err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}
	err = G.Let(a.selected, tensor.New(
		tensor.WithShape(a.transitions, a.actions),
		tensor.WithBacking(oneHot)))
	if err != nil {
		return Losses{}, fmt.Errorf("step: could not set actions: %v", err)
	}
	err = G.Let(a.advantages, tensor.New(tensor.WithShape(a.transitions),
		tensor.WithBacking(append([]float64{}, rollout.Advantages...))))
	if err != nil {
		return Losses{}, fmt.Errorf("step: could not set advantages: %v",
			err)
	}

	a.actorVM.Reset()
	if err := a.actorVM.RunAll(); err != nil {
		return Losses{}, fmt.Errorf("step: could not run actor update: %v",
			err)
	}
	if err := a.actorSolver.Step(a.trainPolicy.Model()); err != nil {
		return Losses{}, fmt.Errorf("step: could not step actor "+
			"solver: %v", err)
	}
	if err := a.actor.SetWeights(a.trainPolicy); err != nil {
		return Losses{}, fmt.Errorf("step: could not push actor "+
			"weights: %v", err)
	}

	// Critic update
	if err := a.trainCritic.SetInput(rollout.TransitionObs()); err != nil {
		return Losses{}, fmt.Errorf("step: %v", err)
	}
	err = G.Let(a.targets, tensor.New(
		tensor.WithShape(a.transitions, 1),
		tensor.WithBacking(append([]float64{}, rollout.Targets...))))
	if err != nil {
		return Losses{}, fmt.Errorf("step: could not set value "+
			"targets: %v", err)
	}

	a.criticVM.Reset()
	if err := a.criticVM.RunAll(); err != nil {
		return Losses{}, fmt.Errorf("step: could not run critic "+
			"update: %v", err)
	}
	if err := a.criticSolver.Step(a.trainCritic.Model()); err != nil {
		return Losses{}, fmt.Errorf("step: could not step critic "+
			"solver: %v", err)
	}
	if err := a.critic.SetWeights(a.trainCritic); err != nil {
		return Losses{}, fmt.Errorf("step: could not push critic "+
			"weights: %v", err)
	}

	return Losses{
		Actor:  a.actorLoss.Data().(float64),
		Critic: a.criticLoss.Data().(float64),
	}, nil
}
