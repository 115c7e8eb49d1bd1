package train

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRunner outputs a fixed prediction per example.
type echoRunner struct {
	name   string
	series string
	output string
}

func (r *echoRunner) Name() string         { return r.name }
func (r *echoRunner) OutputSeries() string { return r.series }

func (r *echoRunner) Run(batch Batch) ([]string, error) {
	out := make([]string, batch.Size())
	for i := range out {
		out[i] = r.output
	}
	return out, nil
}

// exactMatch scores the fraction of exact matches. Higher is better.
type exactMatch struct{}

func (exactMatch) Name() string        { return "exact" }
func (exactMatch) LowerIsBetter() bool { return false }

func (exactMatch) Score(hypotheses, references []string) float64 {
	matched := 0
	for i, hyp := range hypotheses {
		if hyp == references[i] {
			matched++
		}
	}
	return float64(matched) / float64(len(hypotheses))
}

type upperCase struct{}

func (upperCase) Postprocess(outputs []string) []string {
	result := make([]string, len(outputs))
	for i, line := range outputs {
		result[i] = strings.ToUpper(line)
	}
	return result
}

func valDataset() *sliceDataset {
	return &sliceDataset{name: "val", batches: []Batch{
		{"target": []string{"YES", "YES"}},
		{"target": []string{"YES", "NO"}},
	}}
}

func TestValidatorRun(t *testing.T) {
	runner := &echoRunner{name: "greedy", series: "target", output: "yes"}
	var improvements []Score
	v := &Validator{
		Dataset:     valDataset(),
		Runners:     []Runner{runner},
		Evals:       []Evaluation{{Name: "accuracy", Series: "target", Evaluator: exactMatch{}}},
		Tracker:     NewBestTracker(false),
		Postprocess: upperCase{},
		OnImprove: func(best Score, scores map[string]float64) error {
			improvements = append(improvements, best)
			return nil
		},
	}
	loop := NewLoop(&fakeTrainer{step: 40})
	loop.Phase = Running

	scores, err := v.Run(loop)
	require.NoError(t, err)
	// Postprocessing uppercases "yes", matching 3 of 4 references.
	assert.Equal(t, map[string]float64{"accuracy": 0.75}, scores)
	assert.Equal(t, []string{"YES", "YES", "YES", "YES"}, v.LastOutputs["target"])
	require.Len(t, improvements, 1)
	assert.Equal(t, Score{Value: 0.75, Step: 40}, improvements[0])
	assert.Equal(t, Running, loop.Phase, "phase restored after the pass")

	// Same score again: no strict improvement, OnImprove not called.
	_, err = v.Run(loop)
	require.NoError(t, err)
	assert.Len(t, improvements, 1)
}

func TestValidatorFirstEvalSelects(t *testing.T) {
	// The first triple drives best tracking; later triples are only
	// reported.
	runner := &echoRunner{name: "greedy", series: "target", output: "YES"}
	v := &Validator{
		Dataset: valDataset(),
		Runners: []Runner{runner},
		Evals: []Evaluation{
			{Name: "first", Series: "target", Evaluator: exactMatch{}},
			{Name: "second", Series: "target", Evaluator: exactMatch{}},
		},
		Tracker: NewBestTracker(false),
	}
	loop := NewLoop(&fakeTrainer{})
	scores, err := v.Run(loop)
	require.NoError(t, err)
	assert.Len(t, scores, 2)
	best, has := v.Tracker.Best()
	require.True(t, has)
	assert.Equal(t, scores["first"], best.Value)
}

func TestValidatorMissingSeries(t *testing.T) {
	runner := &echoRunner{name: "greedy", series: "target", output: "YES"}
	v := &Validator{
		Dataset: valDataset(),
		Runners: []Runner{runner},
		Evals:   []Evaluation{{Name: "accuracy", Series: "nosuch", Evaluator: exactMatch{}}},
		Tracker: NewBestTracker(false),
	}
	loop := NewLoop(&fakeTrainer{})
	_, err := v.Run(loop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nosuch")
}

func TestValidatorAttachCadence(t *testing.T) {
	// Validation runs at multiples of the period, counted in global
	// steps across epochs.
	runner := &echoRunner{name: "greedy", series: "target", output: "YES"}
	v := &Validator{
		Dataset: valDataset(),
		Runners: []Runner{runner},
		Evals:   []Evaluation{{Name: "accuracy", Series: "target", Evaluator: exactMatch{}}},
		Tracker: NewBestTracker(false),
	}
	trainDS := &sliceDataset{name: "train", batches: batchesOf(5)}
	loop := NewLoop(&fakeTrainer{})
	v.Attach(loop, 4)
	_, err := loop.RunEpochs(context.Background(), trainDS, 2)
	require.NoError(t, err)
	// 10 steps, period 4: two validation passes ran.
	best, has := v.Tracker.Best()
	require.True(t, has)
	assert.Equal(t, 0.75, best.Value)
	assert.Equal(t, int64(4), best.Step, "first pass after the 4th step")
}

// risingEvaluator scores higher on every call, so every pass improves.
type risingEvaluator struct{ calls int }

func (*risingEvaluator) Name() string        { return "rising" }
func (*risingEvaluator) LowerIsBetter() bool { return false }

func (e *risingEvaluator) Score(hypotheses, references []string) float64 {
	e.calls++
	return float64(e.calls)
}

func TestValidatorRecordsGlobalStep(t *testing.T) {
	// The step recorded with a score counts completed optimization
	// steps, matching the trainer's global step at validation time.
	runner := &echoRunner{name: "greedy", series: "target", output: "YES"}
	var steps []int64
	trainer := &fakeTrainer{}
	v := &Validator{
		Dataset: valDataset(),
		Runners: []Runner{runner},
		Evals:   []Evaluation{{Name: "rising", Series: "target", Evaluator: &risingEvaluator{}}},
		Tracker: NewBestTracker(false),
		OnImprove: func(best Score, scores map[string]float64) error {
			steps = append(steps, best.Step)
			assert.Equal(t, trainer.GlobalStep(), best.Step)
			return nil
		},
	}
	trainDS := &sliceDataset{name: "train", batches: batchesOf(6)}
	loop := NewLoop(trainer)
	v.Attach(loop, 3)
	_, err := loop.RunEpochs(context.Background(), trainDS, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 6}, steps)
}
