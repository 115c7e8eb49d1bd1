// Package trainers implements the optimize-one-batch role: gradient
// descent over the trainable decoders, with the numeric work executed on
// the execution manager's worker pool.
package trainers

import (
	"github.com/pkg/errors"

	"github.com/jrjdr/neuralmonkey/exec"
	"github.com/jrjdr/neuralmonkey/train"
)

// Trainable is a decoder the trainer can optimize.
type Trainable interface {
	train.Decoder

	// LossAndGradient computes the batch loss and its gradient with
	// respect to the decoder's parameters.
	LossAndGradient(batch train.Batch) (float64, []float64, error)

	// ApplyDelta adds the update to the parameters.
	ApplyDelta(delta []float64)

	// ParamsSnapshot copies the current parameters, keyed by variable
	// name.
	ParamsSnapshot() map[string][]float64
}

// SGD optimizes one or more decoders with plain stochastic gradient
// descent. It is the single writer of the decoders' parameters: the
// orchestrator never runs it concurrently with a runner.
type SGD struct {
	decoders     []Trainable
	learningRate float64
	manager      *exec.Manager
	step         int64
}

// NewSGD creates the trainer. A nil manager gets a default one.
func NewSGD(decoders []Trainable, learningRate float64, manager *exec.Manager) (*SGD, error) {
	if len(decoders) == 0 {
		return nil, errors.New("trainer needs at least one decoder")
	}
	if learningRate <= 0 {
		return nil, errors.Errorf("learning rate must be positive, got %g", learningRate)
	}
	if manager == nil {
		manager = exec.NewManager(0)
	}
	return &SGD{decoders: decoders, learningRate: learningRate, manager: manager}, nil
}

// TrainStep implements train.Trainer: one gradient step over all decoders,
// returning the summed batch loss.
func (t *SGD) TrainStep(batch train.Batch) (float64, int64, error) {
	totalLoss := 0.0
	for _, decoder := range t.decoders {
		err := t.manager.Run(func() error {
			loss, gradient, err := decoder.LossAndGradient(batch)
			if err != nil {
				return err
			}
			for i := range gradient {
				gradient[i] *= -t.learningRate
			}
			decoder.ApplyDelta(gradient)
			totalLoss += loss
			return nil
		})
		if err != nil {
			return 0, t.step, errors.WithMessagef(err, "optimizing decoder %q", decoder.Name())
		}
	}
	t.step++
	return totalLoss, t.step, nil
}

// GlobalStep implements train.Trainer.
func (t *SGD) GlobalStep() int64 { return t.step }

// ParamsSnapshot implements train.Trainer: the union of all decoders'
// parameter snapshots.
func (t *SGD) ParamsSnapshot() map[string][]float64 {
	params := make(map[string][]float64)
	for _, decoder := range t.decoders {
		for name, values := range decoder.ParamsSnapshot() {
			params[name] = values
		}
	}
	return params
}
