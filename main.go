package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/gorollout/agent"
	"github.com/samuelfneumann/gorollout/agent/actors"
	"github.com/samuelfneumann/gorollout/agent/critics"
	"github.com/samuelfneumann/gorollout/agent/envagent"
	"github.com/samuelfneumann/gorollout/algo/a2c"
	"github.com/samuelfneumann/gorollout/environment/envconfig"
	"github.com/samuelfneumann/gorollout/experiment"
	"github.com/samuelfneumann/gorollout/experiment/tracker"
	"github.com/samuelfneumann/gorollout/experiment/trackers"
	"github.com/samuelfneumann/gorollout/network"
	"github.com/samuelfneumann/gorollout/solver"
	"github.com/samuelfneumann/gorollout/workspace"
)

// config gathers every knob of an A2C training run. All fields are
// YAML serializable so a run is fully described by one file.
type config struct {
	Seed   uint64            `yaml:"seed"`
	Envs   int               `yaml:"envs"`
	Hidden []int             `yaml:"hidden"`
	Env    envconfig.Config  `yaml:"env"`
	A2C    a2c.Config        `yaml:"a2c"`
	Exp    experiment.Config `yaml:"experiment"`

	// DataFile is where evaluation returns are saved.
	DataFile string `yaml:"data_file"`
}

func defaultConfig() config {
	return config{
		Seed:   192382,
		Envs:   8,
		Hidden: []int{64, 64},
		Env: envconfig.Config{
			Environment:   envconfig.Cartpole,
			EpisodeCutoff: 500,
		},
		A2C: a2c.Config{
			Gamma:              0.99,
			Lambda:             0.95,
			EntropyWeight:      0.01,
			NormalizeAdvantage: true,
			ActorSolver: solver.Config{
				Type:     solver.Adam,
				StepSize: 1e-3,
			},
			CriticSolver: solver.Config{
				Type:     solver.Adam,
				StepSize: 1e-3,
			},
		},
		Exp: experiment.Config{
			Iterations:   2000,
			SegmentSteps: 16,
			EvalEvery:    50,
			EvalMaxSteps: 1000,
		},
		DataFile: "./data.bin",
	}
}

func main() {
	configFile := flag.String("config", "",
		"YAML run configuration; defaults describe A2C on cartpole")
	flag.Parse()

	conf := defaultConfig()
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			log.Fatalf("could not read config: %v", err)
		}
		if err := yaml.Unmarshal(data, &conf); err != nil {
			log.Fatalf("could not parse config: %v", err)
		}
	}

	if err := run(conf); err != nil {
		log.Fatal(err)
	}
}

func run(conf config) error {
	probe, err := conf.Env.Create()
	if err != nil {
		return err
	}
	obsDim := probe.ObservationSize()
	actions, err := conf.Env.NumActions()
	if err != nil {
		return err
	}

	biases := make([]bool, len(conf.Hidden))
	activations := make([]*network.Activation, len(conf.Hidden))
	for i := range conf.Hidden {
		biases[i] = true
		activations[i] = network.TanH()
	}

	policy, err := network.NewMLP(obsDim, conf.Envs, actions, G.NewGraph(),
		conf.Hidden, biases, G.GlorotU(1.0), activations)
	if err != nil {
		return err
	}
	actor, err := actors.NewDiscrete(policy, conf.Seed)
	if err != nil {
		return err
	}

	value, err := network.NewMLP(obsDim, conf.Envs, 1, G.NewGraph(),
		conf.Hidden, biases, G.GlorotU(1.0), activations)
	if err != nil {
		return err
	}
	critic, err := critics.NewV(value)
	if err != nil {
		return err
	}

	// Training rollouts auto-reset finished environment copies;
	// evaluation freezes them so episodic returns stay readable. The
	// critic is not part of the collection: it re-scores the whole
	// segment with current weights right before each update.
	trainEnvs, err := envagent.NewAutoReset(conf.Env.Factory(), conf.Envs)
	if err != nil {
		return err
	}
	trainAgents, err := agent.NewAgents(trainEnvs, actor)
	if err != nil {
		return err
	}
	trainAgents.Seed(conf.Seed)

	evalEnvs, err := envagent.NewNoAutoReset(conf.Env.Factory(), conf.Envs)
	if err != nil {
		return err
	}
	evalAgents, err := agent.NewAgents(evalEnvs, actor)
	if err != nil {
		return err
	}
	evalAgents.Seed(conf.Seed + uint64(conf.Envs))

	updater, err := a2c.New(conf.A2C, actor, critic,
		conf.Exp.SegmentSteps, conf.Envs)
	if err != nil {
		return err
	}
	update := func(ws *workspace.Workspace) error {
		_, err := updater.Step(ws)
		return err
	}

	returns := trackers.NewReturn(conf.DataFile)
	exp, err := experiment.New(conf.Exp,
		agent.NewTemporalAgent(trainAgents),
		agent.NewTemporalAgent(evalAgents), update, returns)
	if err != nil {
		return err
	}
	exp.Reassess(agent.NewTemporalAgent(critic))

	if err := exp.Run(); err != nil {
		return err
	}
	if err := exp.Save(); err != nil {
		return err
	}

	data, err := tracker.LoadData(conf.DataFile)
	if err != nil {
		return err
	}
	if len(data) > 10 {
		data = data[len(data)-10:]
	}
	fmt.Println(data)
	return nil
}
