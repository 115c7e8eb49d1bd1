// Package exec provides the execution manager: a bounded pool of workers
// that the numeric computation of trainer and runner calls executes on.
// Calls block the orchestrating goroutine until their result is available,
// so consecutive batches never overlap and global-step ordering stays
// exact.
package exec

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Manager owns a bounded worker pool. The zero worker count means one
// worker per CPU.
type Manager struct {
	workers int
	sem     chan struct{}
}

// NewManager creates a manager with the given number of workers
// (0 defaults to runtime.NumCPU()).
func NewManager(workers int) *Manager {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Manager{
		workers: workers,
		sem:     make(chan struct{}, workers),
	}
}

// Workers returns the configured worker count.
func (m *Manager) Workers() int {
	return m.workers
}

// Run executes fn on one worker slot and blocks until it finishes.
// A panic in fn is recovered and returned as an error.
func (m *Manager) Run(fn func() error) (err error) {
	m.sem <- struct{}{}
	defer func() {
		<-m.sem
		if r := recover(); r != nil {
			err = errors.Errorf("computation panicked: %v", r)
		}
	}()
	return fn()
}

// ForEach executes body for every i in [0, n), fanning out over the worker
// pool, and blocks until all iterations finish. Used to parallelize
// per-example work inside one batch.
func (m *Manager) ForEach(n int, body func(i int)) {
	if n <= 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		m.sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-m.sem }()
			body(i)
		}(i)
	}
	wg.Wait()
}
