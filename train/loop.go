package train

import (
	"context"
	"io"
	"iter"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but
// negative values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop, ds Dataset) error

// OnStepFn is the type of OnStep hooks, called after each TrainStep with
// the batch loss.
type OnStepFn func(loop *Loop, loss float64) error

// OnEndFn is the type of OnEnd hooks.
type OnEndFn func(loop *Loop, loss float64) error

// Loop runs the training loop, invoking Trainer.TrainStep for every batch
// and calling the registered hooks. By itself it does little; logging,
// validation, checkpointing and progress display attach to it as hooks at
// fixed cadences (see EveryNSteps).
//
// The public attributes are meant for reading only.
type Loop struct {
	// Trainer associated with this loop.
	Trainer Trainer

	// Phase of the run. Transitions: Initializing -> Running
	// (-> Validating -> Running)* -> Finished, with Failed reachable from
	// anywhere.
	Phase Phase

	// LoopStep is the global step currently being executed. Initialized
	// from the trainer's GlobalStep, 0 for a fresh trainer. Monotonically
	// non-decreasing across the whole run, never reset per epoch.
	LoopStep int

	// StartStep is the value of LoopStep at the start of a run. Set by
	// RunSteps and RunEpochs.
	StartStep int

	// EndStep is one-past the last step to be executed, or -1 when not yet
	// known (RunEpochs learns it after the first epoch).
	EndStep int

	// Epoch is the current epoch while RunEpochs runs, starting from 0.
	Epoch int

	// TrainStepDurations collected during training.
	TrainStepDurations []time.Duration

	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onStep  *priorityHooks[*hookWithName[OnStepFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// NewLoop creates a training loop around the trainer.
func NewLoop(trainer Trainer) *Loop {
	return &Loop{
		Trainer:  trainer,
		Phase:    Initializing,
		LoopStep: int(trainer.GlobalStep()),
		onStart:  newPriorityHooks[*hookWithName[OnStartFn]](),
		onStep:   newPriorityHooks[*hookWithName[OnStepFn]](),
		onEnd:    newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// start of loop, called by all looping methods. It calls the OnStart hooks.
func (loop *Loop) start(ds Dataset) error {
	loop.Phase = Running
	for hook := range loop.onStart.All() {
		if err := hook.fn(loop, ds); err != nil {
			return errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	}
	return nil
}

// step runs one TrainStep and the OnStep hooks.
func (loop *Loop) step(batch Batch) (loss float64, err error) {
	startTime := time.Now()
	defer func() {
		loop.TrainStepDurations = append(loop.TrainStepDurations, time.Since(startTime))
	}()

	loss, _, err = loop.Trainer.TrainStep(batch)
	if err != nil {
		return 0, err
	}
	for hook := range loop.onStep.All() {
		if err := hook.fn(loop, loss); err != nil {
			return 0, errors.WithMessagef(err, "OnStep(hook %q)", hook.name)
		}
	}
	if math.IsNaN(loss) {
		return 0, errors.Errorf("batch loss is NaN, training interrupted")
	}
	if math.IsInf(loss, 0) {
		return 0, errors.Errorf("batch loss is infinity (%f), training interrupted", loss)
	}
	return loss, nil
}

// end of loop, called by all looping methods. It calls the OnEnd hooks.
func (loop *Loop) end(loss float64) error {
	for hook := range loop.onEnd.All() {
		if err := hook.fn(loop, loss); err != nil {
			return errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	}
	loop.Phase = Finished
	return nil
}

// fail marks the loop failed and wraps the error with the state reached.
func (loop *Loop) fail(err error) error {
	loop.Phase = Failed
	return err
}

// RunSteps runs that many steps. StartStep and EndStep are adjusted to the
// current LoopStep, so it can be called multiple times and it picks up
// where it left off.
//
// Stopping is cooperative: ctx is checked between batches, never
// mid-batch. A stop surfaces as the context's error.
func (loop *Loop) RunSteps(ctx context.Context, ds Dataset, steps int) (loss float64, err error) {
	if steps <= 0 {
		return 0, nil
	}
	loop.StartStep = loop.LoopStep
	loop.EndStep = loop.LoopStep + steps
	if err = loop.start(ds); err != nil {
		return 0, loop.fail(err)
	}
	loop.TrainStepDurations = make([]time.Duration, 0, steps)
	for loop.LoopStep = loop.StartStep; loop.LoopStep < loop.EndStep; loop.LoopStep++ {
		if err = ctx.Err(); err != nil {
			return loss, err
		}
		batch, err := ds.Yield()
		if err != nil {
			if err == io.EOF {
				return 0, loop.fail(errors.Errorf(
					"reached dataset end after %d steps (requested %d steps) -- did you mean to use "+
						"Loop.RunEpochs instead of Loop.RunSteps?", loop.LoopStep-loop.StartStep, steps))
			}
			return 0, loop.fail(errors.WithMessagef(err, "Loop.RunSteps(%d): failed reading from dataset", steps))
		}
		loss, err = loop.step(batch)
		if err != nil {
			return 0, loop.fail(errors.WithMessagef(err, "Loop.RunSteps(%d): failed TrainStep(LoopStep=%d)",
				steps, loop.LoopStep))
		}
	}
	if err = loop.end(loss); err != nil {
		return 0, loop.fail(errors.WithMessagef(err, "Loop.RunSteps(%d): failed end (LoopStep=%d)", steps, loop.LoopStep))
	}
	return loss, nil
}

// RunEpochs runs that many full passes over the dataset. Loop.Epoch is set
// to the current epoch. EndStep starts as -1 and is estimated after the
// first epoch, once the number of batches per epoch is known.
// Dataset.Reset is called after each epoch (including the last).
//
// The global step counter is never reset at epoch boundaries, so cadence
// hooks (logging, validation) straddle epochs.
func (loop *Loop) RunEpochs(ctx context.Context, ds Dataset, epochs int) (loss float64, err error) {
	loop.StartStep = loop.LoopStep
	loop.EndStep = -1
	loop.Epoch = 0
	if err = loop.start(ds); err != nil {
		return 0, loop.fail(err)
	}
	loop.TrainStepDurations = nil
	for loop.Epoch = 0; loop.Epoch < epochs; loop.Epoch++ {
		yieldsPerEpoch := 0
		for {
			if err = ctx.Err(); err != nil {
				return loss, err
			}
			batch, err := ds.Yield()
			if err != nil {
				if err == io.EOF {
					// End of epoch: estimate the final step and move on.
					loop.EndStep = loop.LoopStep + yieldsPerEpoch*(epochs-loop.Epoch-1)
					break
				}
				return 0, loop.fail(errors.WithMessagef(err,
					"Loop.RunEpochs(epoch %d of %d): failed reading from dataset", loop.Epoch, epochs))
			}
			yieldsPerEpoch++
			loss, err = loop.step(batch)
			if err != nil {
				return 0, loop.fail(errors.WithMessagef(err,
					"Loop.RunEpochs(%d): failed TrainStep(LoopStep=%d)", epochs, loop.LoopStep))
			}
			loop.LoopStep++
		}
		ds.Reset()
	}
	if err = loop.end(loss); err != nil {
		return 0, loop.fail(errors.WithMessagef(err, "Loop.RunEpochs(%d): failed end (LoopStep=%d)", epochs, loop.LoopStep))
	}
	return loss, nil
}

// MedianTrainStepDuration returns the median duration of a training step.
// It returns 1 millisecond if no step was recorded, to avoid divisions by
// zero downstream.
//
// It sorts and mutates loop.TrainStepDurations.
func (loop *Loop) MedianTrainStepDuration() time.Duration {
	if len(loop.TrainStepDurations) == 0 {
		return time.Millisecond
	}
	times := slices.Clone(loop.TrainStepDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting)
// to the start of a loop.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnStep adds a hook with given priority and name (for error reporting) to
// each step of a loop. The function fn is called after each TrainStep.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.Add(priority, &hookWithName[OnStepFn]{name: name, fn: fn})
}

// OnEnd adds a hook with given priority and name (for error reporting) to
// the end of a loop, after the last TrainStep.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order.
func (h *priorityHooks[H]) All() iter.Seq[H] {
	return func(yield func(H) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}
