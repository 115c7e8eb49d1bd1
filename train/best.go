package train

// Score is a validation score together with the global step it was
// measured at.
type Score struct {
	Value float64
	Step  int64
}

// BestTracker keeps the best validation score seen so far for a fixed
// comparison direction. Only strict improvements replace the recorded
// best: ties keep the earlier score, so the best-model snapshot is not
// rewritten for equal results.
type BestTracker struct {
	lowerIsBetter bool
	best          Score
	has           bool
}

// NewBestTracker returns a tracker for the given direction.
func NewBestTracker(lowerIsBetter bool) *BestTracker {
	return &BestTracker{lowerIsBetter: lowerIsBetter}
}

// Observe records a completed validation score and reports whether it
// strictly improves on the best so far.
func (t *BestTracker) Observe(value float64, step int64) bool {
	if t.has {
		improved := value > t.best.Value
		if t.lowerIsBetter {
			improved = value < t.best.Value
		}
		if !improved {
			return false
		}
	}
	t.best = Score{Value: value, Step: step}
	t.has = true
	return true
}

// Best returns the best score observed, if any.
func (t *BestTracker) Best() (Score, bool) {
	return t.best, t.has
}

// LowerIsBetter reports the tracker's comparison direction.
func (t *BestTracker) LowerIsBetter() bool {
	return t.lowerIsBetter
}
