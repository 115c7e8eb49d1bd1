// Package runners implements the inference role: producing one named
// output series per batch from a decoder's predictions.
package runners

import (
	"github.com/pkg/errors"

	"github.com/jrjdr/neuralmonkey/exec"
	"github.com/jrjdr/neuralmonkey/train"
)

// Greedy runs a decoder's own (greedy) prediction over each batch and
// publishes it under a configured output series name.
type Greedy struct {
	name         string
	decoder      train.Decoder
	outputSeries string
	manager      *exec.Manager
}

// NewGreedy creates the runner. A nil manager gets a default one.
func NewGreedy(name string, decoder train.Decoder, outputSeries string, manager *exec.Manager) (*Greedy, error) {
	if decoder == nil {
		return nil, errors.Errorf("runner %q needs a decoder", name)
	}
	if outputSeries == "" {
		return nil, errors.Errorf("runner %q needs an output series name", name)
	}
	if manager == nil {
		manager = exec.NewManager(0)
	}
	return &Greedy{name: name, decoder: decoder, outputSeries: outputSeries, manager: manager}, nil
}

// Name implements train.Runner.
func (r *Greedy) Name() string { return r.name }

// OutputSeries implements train.Runner.
func (r *Greedy) OutputSeries() string { return r.outputSeries }

// Run implements train.Runner. The decoder call executes on the manager's
// worker pool and blocks until done.
func (r *Greedy) Run(batch train.Batch) ([]string, error) {
	var out []string
	err := r.manager.Run(func() error {
		predictions, err := r.decoder.Predict(batch)
		if err != nil {
			return err
		}
		out = predictions
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "runner %q on decoder %q", r.name, r.decoder.Name())
	}
	return out, nil
}
