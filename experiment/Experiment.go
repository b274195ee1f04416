// Package experiment implements functionality for running an
// experiment: alternating rollout collection with parameter updates
// and periodically evaluating the greedy policy.
package experiment

import (
	"fmt"

	"github.com/samuelfneumann/gorollout/agent"
	"github.com/samuelfneumann/gorollout/experiment/tracker"
	"github.com/samuelfneumann/gorollout/utils/floatutils"
	"github.com/samuelfneumann/gorollout/utils/progressbar"
	"github.com/samuelfneumann/gorollout/workspace"
)

// Update performs one parameter update from a completed rollout
// segment.
type Update func(ws *workspace.Workspace) error

// Config represents a configuration of an experiment.
type Config struct {
	// Iterations is the number of collect-then-update iterations.
	Iterations int `yaml:"iterations"`

	// SegmentSteps is the number of time steps each rollout segment
	// spans, including the step carried over from the previous
	// iteration.
	SegmentSteps int `yaml:"segment_steps"`

	// EvalEvery measures the greedy policy's return every EvalEvery
	// iterations. A value of 0 disables evaluation.
	EvalEvery int `yaml:"eval_every"`

	// EvalMaxSteps bounds the length of an evaluation rollout. A value
	// of 0 means no bound.
	EvalMaxSteps int `yaml:"eval_max_steps"`
}

// Experiment runs collect-then-update iterations over one continuous
// trajectory. The first iteration seeds the trajectory from time 0;
// every later iteration carries the last time step of the previous
// segment over and continues from time 1, so no environment step is
// ever simulated twice.
//
// Evaluation runs a separate agent composition on a fresh workspace
// until every environment copy reports done, which requires the
// evaluation composition to stop finished copies rather than reset
// them.
type Experiment struct {
	config   Config
	train    *agent.TemporalAgent
	eval     *agent.TemporalAgent
	reassess *agent.TemporalAgent
	update   Update
	trackers []tracker.Tracker

	ws  *workspace.Workspace
	bar *progressbar.ProgressBar
}

// New returns an Experiment. The eval agent may be nil when EvalEvery
// is 0.
func New(config Config, train, eval *agent.TemporalAgent, update Update,
	trackers ...tracker.Tracker) (*Experiment, error) {
	if config.Iterations < 1 {
		return nil, fmt.Errorf("new: iterations must be positive, got %d",
			config.Iterations)
	}
	if config.SegmentSteps < 2 {
		return nil, fmt.Errorf("new: rollout segments need at least 2 "+
			"time steps, got %d", config.SegmentSteps)
	}
	if config.EvalEvery < 0 {
		return nil, fmt.Errorf("new: negative evaluation interval %d",
			config.EvalEvery)
	}
	if config.EvalEvery > 0 && eval == nil {
		return nil, fmt.Errorf("new: evaluation every %d iterations "+
			"requires an evaluation agent", config.EvalEvery)
	}
	if update == nil {
		return nil, fmt.Errorf("new: no update function")
	}

	return &Experiment{
		config:   config,
		train:    train,
		eval:     eval,
		update:   update,
		trackers: trackers,
		ws:       workspace.New(),
	}, nil
}

// Register adds a new tracker.Tracker to the (possibly already
// running) experiment.
func (e *Experiment) Register(t tracker.Tracker) {
	e.trackers = append(e.trackers, t)
}

// Reassess registers a composition re-run over every time step of the
// collected segment before each update. Agents whose outputs depend on
// trainable weights belong here rather than in the collection
// composition: on a continued segment the carried-over step still
// holds what the previous iteration's weights computed, and re-running
// refreshes the whole segment under the current weights.
func (e *Experiment) Reassess(a *agent.TemporalAgent) {
	e.reassess = a
}

// Run runs the experiment to completion, displaying progress on the
// terminal.
func (e *Experiment) Run() error {
	e.bar = progressbar.New(60, e.config.Iterations)
	defer e.bar.Close()

	for i := 0; i < e.config.Iterations; i++ {
		if err := e.iteration(i); err != nil {
			return fmt.Errorf("run: iteration %d: %v", i, err)
		}
		e.bar.Increment()
		e.bar.Display()
	}
	return nil
}

// iteration collects one rollout segment, updates parameters, and
// evaluates when the iteration lands on the evaluation interval.
func (e *Experiment) iteration(i int) error {
	opts := agent.Options{Stochastic: true, ComputeEntropy: true}

	if i == 0 {
		err := e.train.Run(e.ws, 0, e.config.SegmentSteps, opts)
		if err != nil {
			return err
		}
	} else {
		// Continue the trajectory: keep only the final step of the
		// previous segment, detached from any graph state the update
		// may have left behind, and roll forward from time 1.
		e.ws.ZeroGrad()
		if err := e.ws.CopyNLastSteps(1); err != nil {
			return err
		}
		err := e.train.Run(e.ws, 1, e.config.SegmentSteps-1, opts)
		if err != nil {
			return err
		}
	}

	if e.reassess != nil {
		err := e.reassess.Run(e.ws, 0, e.config.SegmentSteps,
			agent.Options{})
		if err != nil {
			return err
		}
	}

	if err := e.update(e.ws); err != nil {
		return err
	}

	if e.config.EvalEvery > 0 && (i+1)%e.config.EvalEvery == 0 {
		mean, err := e.evaluate()
		if err != nil {
			return err
		}
		for _, t := range e.trackers {
			t.Track(i+1, mean)
		}
		e.bar.SetStatus(fmt.Sprintf("eval return: %.2f", mean))
	}
	return nil
}

// evaluate runs the greedy policy on a fresh workspace until every
// environment copy finishes, returning the mean episodic return.
func (e *Experiment) evaluate() (float64, error) {
	ws := workspace.New()
	ran, err := e.eval.RunUntil(ws, 0, workspace.DoneChannel,
		e.config.EvalMaxSteps, agent.Options{Stochastic: false})
	if err != nil {
		return 0, fmt.Errorf("evaluate: %v", err)
	}

	cumulated, err := ws.Get(workspace.CumulatedRewardChannel, ran-1)
	if err != nil {
		return 0, fmt.Errorf("evaluate: %v", err)
	}
	return floatutils.Mean(workspace.Float64s(cumulated)), nil
}

// Save saves all tracked data to disk.
func (e *Experiment) Save() error {
	for _, t := range e.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}
