package evaluators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccuracy(t *testing.T) {
	acc := Accuracy{}
	assert.False(t, acc.LowerIsBetter())
	assert.Equal(t, 0.0, acc.Score(nil, nil))
	assert.Equal(t, 1.0, acc.Score([]string{"a", "b"}, []string{"a", "b"}))
	assert.Equal(t, 0.5, acc.Score([]string{"a", "x"}, []string{"a", "b"}))
}

func TestWER(t *testing.T) {
	wer := WER{}
	assert.True(t, wer.LowerIsBetter())

	// A perfect hypothesis has zero errors.
	assert.Equal(t, 0.0, wer.Score([]string{"the cat sat"}, []string{"the cat sat"}))

	// One substitution out of three reference tokens.
	assert.InDelta(t, 1.0/3.0, wer.Score([]string{"the dog sat"}, []string{"the cat sat"}), 1e-9)

	// Insertions can push the rate above 1.
	assert.InDelta(t, 3.0, wer.Score([]string{"a b c"}, []string{"x"}), 1e-9)

	// Corpus-level: edits and lengths are pooled over all pairs.
	score := wer.Score(
		[]string{"the cat sat", "on mat"},
		[]string{"the cat sat", "on the mat"},
	)
	assert.InDelta(t, 1.0/6.0, score, 1e-9)

	assert.Equal(t, 0.0, wer.Score(nil, nil))
}

func TestBLEU(t *testing.T) {
	bleu := BLEU{}
	assert.False(t, bleu.LowerIsBetter())

	// Identical corpus scores 1.
	refs := []string{"the cat sat on the mat", "a stitch in time saves nine"}
	assert.InDelta(t, 1.0, bleu.Score(refs, refs), 1e-9)

	// No overlapping unigrams scores 0.
	assert.Equal(t, 0.0, bleu.Score([]string{"x y z w"}, []string{"a b c d"}))

	// Partial overlap lands strictly between.
	partial := bleu.Score([]string{"the cat sat on a rug"}, refs[:1])
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)

	// Short hypotheses pay a brevity penalty.
	short := bleu.Score([]string{"the cat"}, refs[:1])
	long := bleu.Score([]string{"the cat sat on the mat"}, refs[:1])
	assert.Less(t, short, long)

	assert.Equal(t, 0.0, bleu.Score([]string{""}, []string{"a"}))
}

func TestBLEUMaxOrder(t *testing.T) {
	// With MaxOrder 1 only unigram precision counts: a permuted sentence
	// still scores 1.
	bleu := BLEU{MaxOrder: 1}
	assert.InDelta(t, 1.0, bleu.Score([]string{"mat the on sat cat the"}, []string{"the cat sat on the mat"}), 1e-9)
}
