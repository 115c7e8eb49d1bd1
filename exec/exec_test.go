package exec

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	m := NewManager(2)
	assert.Equal(t, 2, m.Workers())

	ran := false
	require.NoError(t, m.Run(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	wantErr := errors.New("computation failed")
	assert.ErrorIs(t, m.Run(func() error { return wantErr }), wantErr)
}

func TestRunRecoversPanic(t *testing.T) {
	m := NewManager(1)
	err := m.Run(func() error { panic("numerical meltdown") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "numerical meltdown")

	// The worker slot is released after the panic.
	require.NoError(t, m.Run(func() error { return nil }))
}

func TestForEach(t *testing.T) {
	m := NewManager(4)
	const n = 100
	var touched [n]int32
	m.ForEach(n, func(i int) {
		atomic.AddInt32(&touched[i], 1)
	})
	for i, count := range touched {
		assert.Equal(t, int32(1), count, "index %d", i)
	}

	m.ForEach(0, func(int) { t.Fatal("must not be called") })
}

func TestForEachBoundsConcurrency(t *testing.T) {
	const workers = 3
	m := NewManager(workers)
	var current, peak int32
	var mu sync.Mutex
	m.ForEach(50, func(int) {
		now := atomic.AddInt32(&current, 1)
		mu.Lock()
		if now > peak {
			peak = now
		}
		mu.Unlock()
		atomic.AddInt32(&current, -1)
	})
	assert.LessOrEqual(t, peak, int32(workers))
}

func TestDefaultWorkerCount(t *testing.T) {
	m := NewManager(0)
	assert.Greater(t, m.Workers(), 0)
}
