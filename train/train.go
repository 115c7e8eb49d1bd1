// Package train implements the training orchestration: the Loop driving
// epoch and batch iteration, hook-based logging and validation cadences,
// best-score tracking, and the contracts of the pluggable roles (Dataset,
// Decoder, Trainer, Runner, Evaluator) the engine instantiates from the
// configuration.
package train

// Batch is one minibatch of examples, keyed by data series name. All series
// of a batch hold the same number of examples, aligned by index.
type Batch map[string][]string

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	for _, series := range b {
		return len(series)
	}
	return 0
}

// Dataset provides data one batch at a time. Yield returns io.EOF at the
// end of an epoch; Reset restarts iteration (reshuffling is up to the
// implementation). Iteration must be finite and restartable.
type Dataset interface {
	// Name identifies the dataset, for logging.
	Name() string

	// Reset restarts the dataset from the beginning. Called after io.EOF,
	// at every epoch boundary.
	Reset()

	// Yield returns the next batch, or io.EOF at the end of the epoch.
	// Any other error interrupts the run.
	Yield() (Batch, error)
}

// Decoder is a model component: it can compute a differentiable loss for a
// batch and produce predictions for a batch. The numerical internals are
// entirely the component's business.
type Decoder interface {
	Name() string

	// Loss computes the training loss on the batch.
	Loss(batch Batch) (float64, error)

	// Predict produces one output string per example in the batch.
	Predict(batch Batch) ([]string, error)
}

// Trainer optimizes model parameters one batch at a time.
type Trainer interface {
	// TrainStep runs one optimization step and returns the batch loss and
	// the trainer's global step after the update.
	TrainStep(batch Batch) (loss float64, step int64, err error)

	// GlobalStep returns the number of optimization steps taken so far.
	GlobalStep() int64

	// ParamsSnapshot returns a copy of the current parameters, keyed by
	// variable name. Read by checkpointing on best-score improvement;
	// written only by TrainStep.
	ParamsSnapshot() map[string][]float64
}

// Runner produces one named output series from a batch, using a decoder's
// predictions. Used during validation and post-training output writing.
type Runner interface {
	Name() string

	// OutputSeries is the name of the series this runner produces.
	OutputSeries() string

	// Run produces one output per example in the batch.
	Run(batch Batch) ([]string, error)
}

// Evaluator scores produced outputs against reference targets.
type Evaluator interface {
	Name() string

	// Score compares hypotheses against references, one scalar per pass.
	// Both slices are aligned by example index and have the same length.
	Score(hypotheses, references []string) float64

	// LowerIsBetter reports the comparison direction of the score.
	LowerIsBetter() bool
}

// Postprocessor transforms a produced output series before it is scored
// or written out.
type Postprocessor interface {
	Postprocess(outputs []string) []string
}

// Evaluation is one (name, target series, evaluator) triple from the
// `[main]` evaluation list: the evaluator reads the runner output series
// and the dataset reference series named by Series.
type Evaluation struct {
	Name      string
	Series    string
	Evaluator Evaluator
}

// Phase of the orchestrated run.
type Phase int

const (
	Initializing Phase = iota
	Running
	Validating
	Finished
	Failed
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Validating:
		return "validating"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	}
	return "unknown"
}
