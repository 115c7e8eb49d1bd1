package train

import "fmt"

// ExecutionError wraps a Trainer, Runner or Evaluator failure during the
// run. The run is aborted, but the state reached so far -- global step and
// best validation score, if any -- is preserved for reporting.
type ExecutionError struct {
	Step    int64
	Best    Score
	HasBest bool
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.HasBest {
		return fmt.Sprintf("training failed at step %d (best score %.4f at step %d): %v",
			e.Step, e.Best.Value, e.Best.Step, e.Err)
	}
	return fmt.Sprintf("training failed at step %d: %v", e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
