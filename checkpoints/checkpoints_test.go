package checkpoints

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildValidation(t *testing.T) {
	_, err := Build().Done()
	require.Error(t, err, "directory is required")

	_, err = Build().Dir("").Done()
	require.Error(t, err)

	_, err = Build().Dir(t.TempDir()).Keep(0).Done()
	require.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	handler, err := Build().Dir(dir).Done()
	require.NoError(t, err)
	assert.Equal(t, dir, handler.Dir())

	latest, err := handler.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest, "no checkpoint saved yet")

	params := map[string][]float64{
		"decoder/weights": {0.5, -1.25, 3e-9},
		"decoder/bias":    {42},
	}
	require.NoError(t, handler.Save(120, 0.75, params))

	latest, err = handler.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(120), latest.Step)
	assert.Equal(t, 0.75, latest.Score)
	assert.Equal(t, params, latest.Params)
	assert.False(t, latest.Saved.IsZero())
}

func TestRotation(t *testing.T) {
	handler, err := Build().Dir(t.TempDir()).Keep(2).Done()
	require.NoError(t, err)

	params := map[string][]float64{"w": {1}}
	for step := int64(1); step <= 4; step++ {
		require.NoError(t, handler.Save(step, float64(step)/10, params))
	}

	// Only the newest two survive.
	bases, err := handler.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, bases, 2)

	latest, err := handler.Latest()
	require.NoError(t, err)
	assert.Equal(t, int64(4), latest.Step)
}

func TestSaveOverwritesSameStep(t *testing.T) {
	handler, err := Build().Dir(t.TempDir()).Done()
	require.NoError(t, err)
	require.NoError(t, handler.Save(7, 0.1, map[string][]float64{"w": {1}}))
	require.NoError(t, handler.Save(7, 0.2, map[string][]float64{"w": {2}}))

	latest, err := handler.Latest()
	require.NoError(t, err)
	assert.Equal(t, 0.2, latest.Score)
	assert.Equal(t, []float64{2}, latest.Params["w"])
}
