package runners

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrjdr/neuralmonkey/train"
)

type fixedDecoder struct {
	output string
	err    error
}

func (d *fixedDecoder) Name() string { return "fixed" }

func (d *fixedDecoder) Loss(train.Batch) (float64, error) { return 0, nil }

func (d *fixedDecoder) Predict(batch train.Batch) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]string, batch.Size())
	for i := range out {
		out[i] = d.output
	}
	return out, nil
}

func TestNewGreedyValidation(t *testing.T) {
	_, err := NewGreedy("r", nil, "target", nil)
	require.Error(t, err)
	_, err = NewGreedy("r", &fixedDecoder{}, "", nil)
	require.Error(t, err)
}

func TestGreedyRun(t *testing.T) {
	r, err := NewGreedy("r", &fixedDecoder{output: "yes"}, "target", nil)
	require.NoError(t, err)
	assert.Equal(t, "r", r.Name())
	assert.Equal(t, "target", r.OutputSeries())

	out, err := r.Run(train.Batch{"source": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"yes", "yes"}, out)
}

func TestGreedyRunPropagatesDecoderError(t *testing.T) {
	r, err := NewGreedy("r", &fixedDecoder{err: errors.New("cannot predict")}, "target", nil)
	require.NoError(t, err)
	_, err = r.Run(train.Batch{"source": []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot predict")
}
