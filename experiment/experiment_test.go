package experiment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrjdr/neuralmonkey/config"
	"github.com/jrjdr/neuralmonkey/train"
)

// writeToyExperiment writes a complete toy experiment to dir: data files
// and a configuration that trains a unigram decoder to predict the most
// frequent target token.
func writeToyExperiment(t *testing.T, dir string) (configPath, outputDir, predictionsPath string) {
	t.Helper()
	trainPath := filepath.Join(dir, "train.txt")
	valPath := filepath.Join(dir, "val.txt")
	require.NoError(t, os.WriteFile(trainPath,
		[]byte("yes yes\nyes no\nno yes\nyes yes\n"), 0660))
	require.NoError(t, os.WriteFile(valPath, []byte("yes\nyes\n"), 0660))

	outputDir = filepath.Join(dir, "output")
	predictionsPath = filepath.Join(dir, "predictions.txt")
	configPath = filepath.Join(dir, "experiment.ini")
	configText := fmt.Sprintf(`
; toy experiment: learn to predict the dominant token.
[main]
name="toy"
output=%q
batch_size=2
epochs=2
train_dataset=<train_data>
val_dataset=<val_data>
trainer=<trainer>
runners=[<runner>]
evaluation=[("accuracy", "target", <accuracy>)]
logging_period=1
validation_period=2
random_seed=7

[train_data]
class=dataset
s_target=%q

[val_data]
class=dataset
s_target=%q
s_target_out=%q

[vocab]
class=vocabulary
datasets=[<train_data>]
series="target"

[decoder]
class=decoders.unigram
vocabulary=<vocab>
data_series="target"

[trainer]
class=trainers.sgd
decoders=[<decoder>]
learning_rate=0.5

[runner]
class=runners.greedy
decoder=<decoder>
output_series="target"

[accuracy]
class=evaluators.accuracy
`, outputDir, trainPath, valPath, predictionsPath)
	require.NoError(t, os.WriteFile(configPath, []byte(configText), 0660))
	return configPath, outputDir, predictionsPath
}

func TestTrainEndToEnd(t *testing.T) {
	configPath, outputDir, predictionsPath := writeToyExperiment(t, t.TempDir())
	exp, err := New(configPath, Options{})
	require.NoError(t, err)

	result, err := exp.Train(context.Background())
	require.NoError(t, err)

	// 4 examples, batch 2, 2 epochs: 4 optimization steps.
	assert.Equal(t, int64(4), result.GlobalStep)
	// "yes" dominates the training data: accuracy on the all-"yes"
	// validation set reaches 1.
	assert.Equal(t, 1.0, result.Scores["accuracy"])
	require.True(t, result.HasBest)
	assert.Equal(t, 1.0, result.Best.Value)

	// The effective configuration snapshot is next to the results.
	_, err = os.Stat(filepath.Join(outputDir, "experiment.ini"))
	require.NoError(t, err)

	// The improvement checkpointed the parameters.
	entries, err := filepath.Glob(filepath.Join(outputDir, "checkpoint-*.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	// The produced output series was written to the configured file.
	data, err := os.ReadFile(predictionsPath)
	require.NoError(t, err)
	assert.Equal(t, "yes\nyes\n", string(data))
}

func TestTrainOutputDirectoryConflict(t *testing.T) {
	configPath, _, _ := writeToyExperiment(t, t.TempDir())
	exp, err := New(configPath, Options{})
	require.NoError(t, err)
	_, err = exp.Train(context.Background())
	require.NoError(t, err)

	// A second run into the same directory is rejected before any
	// training happens.
	again, err := New(configPath, Options{})
	require.NoError(t, err)
	_, err = again.Train(context.Background())
	var conflictErr *OutputDirectoryConflictError
	require.ErrorAs(t, err, &conflictErr)

	// Unless overwriting is requested.
	forced, err := New(configPath, Options{Overwrite: true})
	require.NoError(t, err)
	_, err = forced.Train(context.Background())
	require.NoError(t, err)
}

func TestTrainOutputDirectoryNotEmpty(t *testing.T) {
	// Any non-empty output directory is rejected without overwrite, even
	// one holding no snapshot from a previous run.
	configPath, outputDir, _ := writeToyExperiment(t, t.TempDir())
	require.NoError(t, os.MkdirAll(outputDir, 0770))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "notes.txt"), []byte("keep\n"), 0660))

	exp, err := New(configPath, Options{})
	require.NoError(t, err)
	_, err = exp.Train(context.Background())
	var conflictErr *OutputDirectoryConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, outputDir, conflictErr.Dir)

	// Overwriting reuses the directory.
	forced, err := New(configPath, Options{Overwrite: true})
	require.NoError(t, err)
	_, err = forced.Train(context.Background())
	require.NoError(t, err)
}

func TestShuffleRNG(t *testing.T) {
	// The default seed of 0 still shuffles, just nondeterministically.
	require.NotNil(t, shuffleRNG(0))

	// A set seed is reproducible.
	a, b := shuffleRNG(7), shuffleRNG(7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestTrainWithOverrides(t *testing.T) {
	configPath, _, _ := writeToyExperiment(t, t.TempDir())
	exp, err := New(configPath, Options{
		Overrides: []string{"main.epochs=1", "trainer.learning_rate=0.25"},
	})
	require.NoError(t, err)
	result, err := exp.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.GlobalStep, "one epoch is two steps")
}

func TestTrainUnknownComponent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "experiment.ini")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[main]
output="`+filepath.Join(dir, "output")+`"
batch_size=2
epochs=1
train_dataset=<data>
trainer=<data>

[data]
class=no.such.component
`), 0660))
	exp, err := New(configPath, Options{})
	require.NoError(t, err)
	_, err = exp.Train(context.Background())
	var unknownErr *config.UnknownComponentError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "no.such.component", unknownErr.TypeTag)
}

func TestTrainCancellation(t *testing.T) {
	configPath, _, _ := writeToyExperiment(t, t.TempDir())
	exp, err := New(configPath, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	exp.options.ConfigureLoop = func(loop *train.Loop) {
		loop.OnStep("cancel", 0, func(loop *train.Loop, loss float64) error {
			cancel()
			return nil
		})
	}
	_, err = exp.Train(ctx)
	require.ErrorIs(t, err, context.Canceled)
	var execErr *train.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestDecodeRunConfigEvaluationShape(t *testing.T) {
	_, err := decodeRunConfig(map[string]any{
		"evaluation": []any{[]any{"just-a-name"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluation")

	_, err = decodeRunConfig(map[string]any{"evaluation": "not a list"})
	require.Error(t, err)

	_, err = decodeRunConfig(42)
	require.Error(t, err)
}

func TestMainSectionUnknownParameter(t *testing.T) {
	g, err := config.ParseString(`
[main]
output="/tmp/nowhere"
eppochs=3
`)
	require.NoError(t, err)
	exp, err := FromGraph(g, Options{})
	require.NoError(t, err)
	_, err = exp.Train(context.Background())
	require.Error(t, err)
	// The typo is reported with the known parameter names.
	assert.Contains(t, err.Error(), "eppochs")
}

func TestBuiltinRegistryTags(t *testing.T) {
	r := BuiltinRegistry()
	for _, tag := range []string{
		"dataset", "vocabulary", "embeddings.word2vec", "decoders.unigram",
		"trainers.sgd", "runners.greedy", "evaluators.accuracy",
		"evaluators.wer", "evaluators.bleu", "postprocess.lowercase",
		"postprocess.detokenize", "exec.manager",
	} {
		assert.True(t, r.Has(tag), "missing builtin %q", tag)
	}
}
