package train

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Validator runs the validation pass: all runners over the validation
// dataset to produce output series, each evaluation triple scored against
// the dataset's reference series, and the first triple's score compared
// against the best seen so far.
//
// The validation pass is synchronous with the training loop: the loop is
// fully paused while it runs, so the trainer's parameters are never read
// by a runner while an optimization step writes them.
type Validator struct {
	Dataset Dataset
	Runners []Runner
	Evals   []Evaluation
	Tracker *BestTracker

	// Postprocess, when set, is applied to every produced output series
	// before scoring and persistence.
	Postprocess Postprocessor

	// OnImprove is called after a strict improvement of the selection
	// metric (the first evaluation triple), typically to snapshot the
	// current parameters as the new best model.
	OnImprove func(best Score, scores map[string]float64) error

	// LastOutputs holds the output series produced by the most recent
	// pass, keyed by series name. Kept for external persistence.
	LastOutputs map[string][]string

	// LastScores holds the scores of the most recent pass, keyed by
	// evaluation name.
	LastScores map[string]float64
}

// Attach registers the validator on the loop, to run every period steps.
// It runs at a high priority value, after logging hooks.
func (v *Validator) Attach(loop *Loop, period int) {
	EveryNSteps(loop, period, "validation", 100, func(loop *Loop, _ float64) error {
		_, err := v.Run(loop)
		return err
	})
}

// Run executes one validation pass. It returns the scores keyed by
// evaluation name.
func (v *Validator) Run(loop *Loop) (map[string]float64, error) {
	previous := loop.Phase
	loop.Phase = Validating
	defer func() { loop.Phase = previous }()

	outputs := make(map[string][]string)
	references := make(map[string][]string)
	v.Dataset.Reset()
	for {
		batch, err := v.Dataset.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "validation: failed reading from dataset %q", v.Dataset.Name())
		}
		for _, runner := range v.Runners {
			out, err := runner.Run(batch)
			if err != nil {
				return nil, errors.WithMessagef(err, "validation: runner %q", runner.Name())
			}
			if v.Postprocess != nil {
				out = v.Postprocess.Postprocess(out)
			}
			if len(out) != batch.Size() {
				return nil, errors.Errorf("validation: runner %q produced %d outputs for a batch of %d examples",
					runner.Name(), len(out), batch.Size())
			}
			outputs[runner.OutputSeries()] = append(outputs[runner.OutputSeries()], out...)
		}
		for _, eval := range v.Evals {
			refs, found := batch[eval.Series]
			if !found {
				return nil, errors.Errorf("validation: dataset %q has no reference series %q",
					v.Dataset.Name(), eval.Series)
			}
			references[eval.Series] = append(references[eval.Series], refs...)
		}
	}
	v.Dataset.Reset()

	step := loop.Trainer.GlobalStep()
	scores := make(map[string]float64, len(v.Evals))
	var parts []string
	for _, eval := range v.Evals {
		hyps, found := outputs[eval.Series]
		if !found {
			return nil, errors.Errorf("validation: no runner produces output series %q for evaluation %q",
				eval.Series, eval.Name)
		}
		score := eval.Evaluator.Score(hyps, references[eval.Series])
		scores[eval.Name] = score
		parts = append(parts, fmt.Sprintf("%s=%.4f", eval.Name, score))
	}
	v.LastOutputs = outputs
	v.LastScores = scores

	improved := false
	if len(v.Evals) > 0 {
		improved = v.Tracker.Observe(scores[v.Evals[0].Name], step)
	}
	suffix := ""
	if improved {
		suffix = " (new best)"
	}
	klog.Infof("Validation at step %d: %s%s", step, strings.Join(parts, ", "), suffix)

	if improved && v.OnImprove != nil {
		best, _ := v.Tracker.Best()
		if err := v.OnImprove(best, scores); err != nil {
			return nil, errors.WithMessagef(err, "validation: saving best model")
		}
	}
	return scores, nil
}
