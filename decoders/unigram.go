package decoders

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrjdr/neuralmonkey/train"
)

// Unigram is a minimal trainable decoder: a learned logit per vocabulary
// entry, trained with the cross-entropy of the target series tokens and
// predicting the highest-scoring token. It exists to exercise the full
// Decoder/Trainer/Runner contract end to end without a tensor runtime.
type Unigram struct {
	name       string
	vocab      *Vocabulary
	dataSeries string
	weights    []float64
}

// NewUnigram creates the decoder with zero-initialized weights. dataSeries
// names the target series the loss reads from batches.
func NewUnigram(name string, vocab *Vocabulary, dataSeries string) *Unigram {
	return &Unigram{
		name:       name,
		vocab:      vocab,
		dataSeries: dataSeries,
		weights:    make([]float64, vocab.Len()),
	}
}

// Name implements train.Decoder.
func (u *Unigram) Name() string { return u.name }

// Vocab returns the decoder's vocabulary.
func (u *Unigram) Vocab() *Vocabulary { return u.vocab }

// Loss implements train.Decoder: the mean negative log-likelihood of the
// target series tokens under the softmax of the weights.
func (u *Unigram) Loss(batch train.Batch) (float64, error) {
	loss, _, err := u.LossAndGradient(batch)
	return loss, err
}

// LossAndGradient computes the loss and its gradient with respect to the
// weights.
func (u *Unigram) LossAndGradient(batch train.Batch) (float64, []float64, error) {
	targets, found := batch[u.dataSeries]
	if !found {
		return 0, nil, errors.Errorf("decoder %q: batch has no series %q", u.name, u.dataSeries)
	}
	counts := make([]float64, len(u.weights))
	total := 0.0
	for _, line := range targets {
		for _, token := range strings.Fields(line) {
			counts[u.vocab.Index(token)]++
			total++
		}
	}
	if total == 0 {
		return 0, nil, errors.Errorf("decoder %q: batch series %q holds no tokens", u.name, u.dataSeries)
	}

	logZ := logSumExp(u.weights)
	loss := 0.0
	gradient := make([]float64, len(u.weights))
	for idx, weight := range u.weights {
		probability := math.Exp(weight - logZ)
		loss += counts[idx] * (logZ - weight)
		gradient[idx] = probability - counts[idx]/total
	}
	return loss / total, gradient, nil
}

// ApplyDelta adds delta to the weights. Called only by the trainer's
// optimize step.
func (u *Unigram) ApplyDelta(delta []float64) {
	for i, d := range delta {
		u.weights[i] += d
	}
}

// Predict implements train.Decoder: the highest-scoring vocabulary token,
// once per example.
func (u *Unigram) Predict(batch train.Batch) ([]string, error) {
	best := 0
	for idx, weight := range u.weights {
		if weight > u.weights[best] {
			best = idx
		}
	}
	token := u.vocab.Token(best)
	out := make([]string, batch.Size())
	for i := range out {
		out[i] = token
	}
	return out, nil
}

// ParamsSnapshot returns a copy of the weights keyed by variable name.
func (u *Unigram) ParamsSnapshot() map[string][]float64 {
	weights := make([]float64, len(u.weights))
	copy(weights, u.weights)
	return map[string][]float64{u.name + "/weights": weights}
}

// RestoreParams loads a snapshot previously returned by ParamsSnapshot.
func (u *Unigram) RestoreParams(params map[string][]float64) error {
	weights, found := params[u.name+"/weights"]
	if !found {
		return errors.Errorf("decoder %q: snapshot has no weights", u.name)
	}
	if len(weights) != len(u.weights) {
		return errors.Errorf("decoder %q: snapshot has %d weights, expected %d",
			u.name, len(weights), len(u.weights))
	}
	copy(u.weights, weights)
	return nil
}

func logSumExp(values []float64) float64 {
	maxValue := math.Inf(-1)
	for _, v := range values {
		if v > maxValue {
			maxValue = v
		}
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Exp(v - maxValue)
	}
	return maxValue + math.Log(sum)
}
