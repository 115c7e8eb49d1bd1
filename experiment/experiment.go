// Package experiment ties the configuration engine to the training
// orchestration: it parses an experiment configuration file, resolves the
// component graph rooted at the `[main]` section, and drives the training
// loop with logging, periodic validation, best-score checkpointing and
// output writing.
package experiment

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/jrjdr/neuralmonkey/checkpoints"
	"github.com/jrjdr/neuralmonkey/config"
	"github.com/jrjdr/neuralmonkey/dataset"
	"github.com/jrjdr/neuralmonkey/exec"
	"github.com/jrjdr/neuralmonkey/train"
)

// configSnapshotName is the file the effective configuration (after
// overrides) is written to inside the output directory.
const configSnapshotName = "experiment.ini"

// Options control how an experiment is set up.
type Options struct {
	// Overrides are `section.key=value` assignments applied on top of the
	// parsed configuration, in order. A key without a section prefix
	// addresses the `main` section.
	Overrides []string

	// Overwrite allows reusing an output directory that already holds
	// results from a previous run.
	Overwrite bool

	// Registry of component builders. Nil means BuiltinRegistry.
	Registry *config.Registry

	// ConfigureLoop, when set, is called on the training loop before the
	// run starts. Used to attach a progress bar or extra hooks.
	ConfigureLoop func(loop *train.Loop)
}

// RunConfig is the decoded `[main]` section: the experiment-level knobs and
// the references to the constructed components.
type RunConfig struct {
	Name               string
	Output             string
	OverwriteOutputDir bool
	BatchSize          int
	Epochs             int
	TrainDataset       dataset.Provider
	ValDataset         dataset.Provider
	Trainer            train.Trainer
	Runners            []train.Runner
	Postprocess        train.Postprocessor
	Evaluation         []train.Evaluation
	Manager            *exec.Manager
	LoggingPeriod      int
	ValidationPeriod   int
	SaveNBest          int
	RandomSeed         int
}

// Result reports the state an experiment run ended in.
type Result struct {
	// RunID uniquely identifies this run in logs.
	RunID string

	// GlobalStep is the trainer's step count at the end of the run.
	GlobalStep int64

	// Best is the best validation score observed, valid when HasBest.
	Best    train.Score
	HasBest bool

	// Scores are the evaluation results of the final validation pass,
	// keyed by evaluation name.
	Scores map[string]float64
}

// Experiment is one parsed experiment configuration, ready to train.
type Experiment struct {
	graph   *config.Graph
	options Options
}

// New parses the configuration file and applies the overrides. No
// component is constructed yet; that happens in Train.
func New(configPath string, options Options) (*Experiment, error) {
	graph, err := config.ParseFile(configPath)
	if err != nil {
		return nil, err
	}
	for _, override := range options.Overrides {
		if err := graph.ApplyOverride(override); err != nil {
			return nil, err
		}
	}
	if options.Registry == nil {
		options.Registry = BuiltinRegistry()
	}
	return &Experiment{graph: graph, options: options}, nil
}

// FromGraph wraps an already built configuration graph as an experiment.
func FromGraph(graph *config.Graph, options Options) (*Experiment, error) {
	for _, override := range options.Overrides {
		if err := graph.ApplyOverride(override); err != nil {
			return nil, err
		}
	}
	if options.Registry == nil {
		options.Registry = BuiltinRegistry()
	}
	return &Experiment{graph: graph, options: options}, nil
}

// decodeRunConfig turns the resolved `[main]` section into a RunConfig.
// The evaluation list is decoded by hand: it is a list of
// ("name", "series", <evaluator>) tuples, not a homogeneous slice.
func decodeRunConfig(resolved any) (*RunConfig, error) {
	kwargs, ok := resolved.(map[string]any)
	if !ok {
		return nil, errors.Errorf("section [main] must be a plain section, resolved to %T", resolved)
	}
	rest := make(map[string]any, len(kwargs))
	for key, value := range kwargs {
		if key != "evaluation" {
			rest[key] = value
		}
	}
	cfg := &RunConfig{
		LoggingPeriod:    20,
		ValidationPeriod: 500,
		SaveNBest:        1,
	}
	if err := config.Decode(rest, cfg); err != nil {
		return nil, errors.WithMessage(err, "section [main]")
	}
	if raw, found := kwargs["evaluation"]; found {
		entries, ok := raw.([]any)
		if !ok {
			return nil, errors.Errorf("[main] evaluation must be a list of (name, series, evaluator) tuples, got %T", raw)
		}
		for i, entry := range entries {
			triple, ok := entry.([]any)
			if !ok || len(triple) != 3 {
				return nil, errors.Errorf("[main] evaluation entry %d must be a (name, series, evaluator) tuple", i)
			}
			name, okName := triple[0].(string)
			series, okSeries := triple[1].(string)
			evaluator, okEval := triple[2].(train.Evaluator)
			if !okName || !okSeries || !okEval {
				return nil, errors.Errorf("[main] evaluation entry %d must be a (name, series, evaluator) tuple, got (%T, %T, %T)",
					i, triple[0], triple[1], triple[2])
			}
			cfg.Evaluation = append(cfg.Evaluation, train.Evaluation{Name: name, Series: series, Evaluator: evaluator})
		}
	}
	return cfg, nil
}

func (cfg *RunConfig) check() error {
	switch {
	case cfg.Output == "":
		return errors.New("[main] output directory is required")
	case cfg.BatchSize <= 0:
		return errors.Errorf("[main] batch_size must be positive, got %d", cfg.BatchSize)
	case cfg.Epochs <= 0:
		return errors.Errorf("[main] epochs must be positive, got %d", cfg.Epochs)
	case cfg.TrainDataset == nil:
		return errors.New("[main] train_dataset is required")
	case cfg.Trainer == nil:
		return errors.New("[main] trainer is required")
	case cfg.LoggingPeriod <= 0:
		return errors.Errorf("[main] logging_period must be positive, got %d", cfg.LoggingPeriod)
	case cfg.ValidationPeriod <= 0:
		return errors.Errorf("[main] validation_period must be positive, got %d", cfg.ValidationPeriod)
	}
	if len(cfg.Evaluation) > 0 {
		if cfg.ValDataset == nil {
			return errors.New("[main] val_dataset is required when evaluation is set")
		}
		if len(cfg.Runners) == 0 {
			return errors.New("[main] runners are required when evaluation is set")
		}
	}
	return nil
}

// shuffleRNG returns the source of randomness for the training shuffle:
// deterministic when random_seed is set, seeded from the clock for the
// default of 0. Training order is reshuffled every epoch either way.
func shuffleRNG(seed int) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(seed)))
}

// prepareOutputDir creates the output directory and writes the effective
// configuration snapshot. An existing non-empty directory is rejected
// unless overwriting was requested -- before any training has happened.
func (e *Experiment) prepareOutputDir(cfg *RunConfig) error {
	overwrite := e.options.Overwrite || cfg.OverwriteOutputDir
	if !overwrite {
		entries, err := os.ReadDir(cfg.Output)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to read output directory %q", cfg.Output)
		}
		if len(entries) > 0 {
			return &OutputDirectoryConflictError{Dir: cfg.Output}
		}
	}
	snapshot := filepath.Join(cfg.Output, configSnapshotName)
	if err := os.MkdirAll(cfg.Output, 0770); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", cfg.Output)
	}
	if err := os.WriteFile(snapshot, []byte(e.graph.String()), 0660); err != nil {
		return errors.Wrapf(err, "failed to write configuration snapshot %q", snapshot)
	}
	return nil
}

// Train resolves the component graph and runs the full training: epochs of
// optimization steps with periodic logging and validation, checkpointing
// on every strict improvement of the selection metric, a final validation
// pass and the writing of configured output files.
//
// Stopping is cooperative: ctx is checked at batch boundaries. A run
// aborted mid-way returns a *train.ExecutionError preserving the step and
// best score reached.
func (e *Experiment) Train(ctx context.Context) (*Result, error) {
	instances, err := config.Resolve(e.graph, e.options.Registry, "main")
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRunConfig(instances["main"])
	if err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if err := e.prepareOutputDir(cfg); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	klog.Infof("Experiment %q (run %s): output in %q", cfg.Name, runID, cfg.Output)
	if cfg.Manager != nil {
		klog.Infof("Execution manager: %d workers", cfg.Manager.Workers())
	}

	trainDS := cfg.TrainDataset.Iterator(cfg.BatchSize, shuffleRNG(cfg.RandomSeed))
	if _, err := trainDS.Yield(); err != nil {
		if err == io.EOF {
			return nil, errors.Errorf("training dataset %q is empty", cfg.TrainDataset.Name())
		}
		return nil, errors.WithMessagef(err, "failed reading training dataset %q", cfg.TrainDataset.Name())
	}
	trainDS.Reset()

	handler, err := checkpoints.Build().Dir(cfg.Output).Keep(cfg.SaveNBest).Done()
	if err != nil {
		return nil, err
	}

	loop := train.NewLoop(cfg.Trainer)
	train.EveryNSteps(loop, cfg.LoggingPeriod, "logging", 0, func(loop *train.Loop, loss float64) error {
		klog.Infof("Step %d (epoch %d): loss=%.6f", loop.Trainer.GlobalStep(), loop.Epoch, loss)
		return nil
	})

	var validator *train.Validator
	if len(cfg.Evaluation) > 0 {
		validator = &train.Validator{
			Dataset:     cfg.ValDataset.Iterator(cfg.BatchSize, nil),
			Runners:     cfg.Runners,
			Evals:       cfg.Evaluation,
			Tracker:     train.NewBestTracker(cfg.Evaluation[0].Evaluator.LowerIsBetter()),
			Postprocess: cfg.Postprocess,
			OnImprove: func(best train.Score, scores map[string]float64) error {
				return handler.Save(best.Step, best.Value, cfg.Trainer.ParamsSnapshot())
			},
		}
		validator.Attach(loop, cfg.ValidationPeriod)
	}
	if e.options.ConfigureLoop != nil {
		e.options.ConfigureLoop(loop)
	}

	_, err = loop.RunEpochs(ctx, trainDS, cfg.Epochs)
	if err != nil {
		return nil, wrapExecutionError(err, loop, validator)
	}

	result := &Result{RunID: runID, GlobalStep: cfg.Trainer.GlobalStep()}
	if validator != nil {
		scores, err := validator.Run(loop)
		if err != nil {
			return nil, wrapExecutionError(err, loop, validator)
		}
		result.Scores = scores
		result.Best, result.HasBest = validator.Tracker.Best()
		if err := writeOutputs(cfg.ValDataset, validator.LastOutputs); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func wrapExecutionError(err error, loop *train.Loop, validator *train.Validator) error {
	execErr := &train.ExecutionError{Step: int64(loop.LoopStep), Err: err}
	if validator != nil {
		execErr.Best, execErr.HasBest = validator.Tracker.Best()
	}
	return execErr
}

// writeOutputs persists produced output series to the files the dataset
// configuration asks for (`s_<series>_out` parameters), one example per
// line.
func writeOutputs(ds dataset.Provider, outputs map[string][]string) error {
	for series, lines := range outputs {
		path, found := ds.OutputPath(series)
		if !found {
			continue
		}
		data := strings.Join(lines, "\n")
		if len(lines) > 0 {
			data += "\n"
		}
		if err := os.WriteFile(path, []byte(data), 0660); err != nil {
			return errors.Wrapf(err, "failed to write output series %q to %q", series, path)
		}
		klog.Infof("Wrote %d outputs of series %q to %q", len(lines), series, path)
	}
	return nil
}
