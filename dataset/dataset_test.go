package dataset

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrjdr/neuralmonkey/train"
)

func numberedSeries(prefix string, n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = prefix + string(rune('0'+i%10))
	}
	return lines
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	data := ""
	for _, line := range lines {
		data += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0660))
}

func TestNewChecksSeriesLengths(t *testing.T) {
	_, err := New("bad", map[string][]string{
		"source": {"a", "b", "c"},
		"target": {"x", "y"},
	}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lengths")

	_, err = New("empty", map[string][]string{}, nil, 0)
	require.Error(t, err)
}

func TestIteratorBatches(t *testing.T) {
	d, err := New("toy", map[string][]string{
		"source": numberedSeries("s", 10),
		"target": numberedSeries("t", 10),
	}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, d.Len())

	it := d.Iterator(4, nil)
	assert.Equal(t, "toy", it.Name())

	var sizes []int
	for {
		batch, err := it.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, batch.Size())
		require.Len(t, batch["source"], batch.Size())
		require.Len(t, batch["target"], batch.Size())
	}
	// The last batch of the epoch is allowed to be short.
	assert.Equal(t, []int{4, 4, 2}, sizes)

	// Another Yield keeps returning io.EOF until Reset.
	_, err = it.Yield()
	assert.Equal(t, io.EOF, err)
	it.Reset()
	batch, err := it.Yield()
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Size())
}

func collectExamples(t *testing.T, it train.Dataset) (sources, targets []string) {
	t.Helper()
	for {
		batch, err := it.Yield()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		sources = append(sources, batch["source"]...)
		targets = append(targets, batch["target"]...)
	}
}

func TestIteratorShuffleKeepsAlignment(t *testing.T) {
	n := 50
	sources := make([]string, n)
	targets := make([]string, n)
	for i := range sources {
		sources[i] = "s" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		targets[i] = "t" + sources[i][1:]
	}
	d, err := New("toy", map[string][]string{"source": sources, "target": targets}, nil, 16)
	require.NoError(t, err)

	it := d.Iterator(7, rand.New(rand.NewSource(1)))
	gotSources, gotTargets := collectExamples(t, it)
	require.Len(t, gotSources, n)

	// Examples stay aligned across series even when shuffled.
	for i, src := range gotSources {
		assert.Equal(t, "t"+src[1:], gotTargets[i])
	}
	// Same multiset of examples, different order.
	sortedGot := append([]string(nil), gotSources...)
	sort.Strings(sortedGot)
	sortedWant := append([]string(nil), sources...)
	sort.Strings(sortedWant)
	assert.Equal(t, sortedWant, sortedGot)
	assert.NotEqual(t, sources, gotSources, "buffered shuffle must change the order")
}

func TestIteratorWithoutRNGKeepsOrder(t *testing.T) {
	sources := numberedSeries("s", 10)
	d, err := New("toy", map[string][]string{"source": sources}, nil, 16)
	require.NoError(t, err)
	it := d.Iterator(3, nil)
	got, _ := collectExamples(t, it)
	assert.Equal(t, sources, got)
}

func TestFromFiles(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "train.src")
	tgtPath := filepath.Join(dir, "train.tgt")
	writeLines(t, srcPath, []string{"a b", "c d", "e f"})
	writeLines(t, tgtPath, []string{"x", "y", "z"})

	d, err := FromFiles("files", map[string]string{"source": srcPath, "target": tgtPath},
		map[string]string{"target": filepath.Join(dir, "out.txt")}, 0)
	require.NoError(t, err)
	assert.True(t, d.HasSeries("source"))
	assert.False(t, d.HasSeries("nosuch"))

	target, err := d.Series("target")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, target)
	_, err = d.Series("nosuch")
	require.Error(t, err)

	out, found := d.OutputPath("target")
	assert.True(t, found)
	assert.Equal(t, filepath.Join(dir, "out.txt"), out)
	_, found = d.OutputPath("source")
	assert.False(t, found)
}

func TestFromFilesMissingFile(t *testing.T) {
	_, err := FromFiles("files", map[string]string{"source": "/nosuch/path.txt"}, nil, 0)
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "train.src")
	tgtPath := filepath.Join(dir, "train.tgt")
	writeLines(t, srcPath, []string{"a", "b"})
	writeLines(t, tgtPath, []string{"x", "y"})

	d, err := Build("train_data", map[string]any{
		"s_source":     srcPath,
		"s_target":     tgtPath,
		"s_target_out": filepath.Join(dir, "out.txt"),
		"buffer_size":  100,
	})
	require.NoError(t, err)
	assert.Equal(t, "train_data", d.Name())
	assert.True(t, d.HasSeries("source"))
	out, found := d.OutputPath("target")
	assert.True(t, found)
	assert.NotEmpty(t, out)

	_, err = Build("bad", map[string]any{"unknown_param": 1})
	require.Error(t, err)
	_, err = Build("empty", map[string]any{"name": "no files"})
	require.Error(t, err)
}

func TestLazyDataset(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "train.src")
	tgtPath := filepath.Join(dir, "train.tgt")
	writeLines(t, srcPath, []string{"a", "b", "c"})
	writeLines(t, tgtPath, []string{"x", "y", "z"})

	d, err := Build("lazy_data", map[string]any{
		"lazy":     true,
		"s_source": srcPath,
		"s_target": tgtPath,
	})
	require.NoError(t, err)

	it := d.Iterator(2, nil)
	sources, targets := collectExamples(t, it)
	assert.Equal(t, []string{"a", "b", "c"}, sources)
	assert.Equal(t, []string{"x", "y", "z"}, targets)

	// Restartable: a second epoch yields the same examples.
	it.Reset()
	sources, _ = collectExamples(t, it)
	assert.Equal(t, []string{"a", "b", "c"}, sources)
}

func TestLazyDatasetLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "train.src")
	tgtPath := filepath.Join(dir, "train.tgt")
	writeLines(t, srcPath, []string{"a", "b", "c"})
	writeLines(t, tgtPath, []string{"x"})

	d, err := Build("lazy_data", map[string]any{
		"lazy":     true,
		"s_source": srcPath,
		"s_target": tgtPath,
	})
	require.NoError(t, err)

	it := d.Iterator(2, nil)
	_, err = collectAll(it)
	require.Error(t, err)
}

func collectAll(it train.Dataset) ([]train.Batch, error) {
	var batches []train.Batch
	for {
		batch, err := it.Yield()
		if err == io.EOF {
			return batches, nil
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
}
