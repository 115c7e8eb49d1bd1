// Package dataset implements series-keyed datasets: named parallel series
// of examples loaded in memory or streamed lazily from files, iterated in
// minibatches with buffered approximate shuffling.
package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/jrjdr/neuralmonkey/train"
)

// Provider is a dataset as the experiment sees it: named series of
// aligned examples, optional output paths for series produced by runners,
// and a restartable batched iteration view.
type Provider interface {
	// Name identifies the dataset.
	Name() string

	// HasSeries reports whether the dataset holds the series.
	HasSeries(name string) bool

	// Series returns the full data series with the given name.
	Series(name string) ([]string, error)

	// OutputPath returns the configured output file for a produced series
	// (the `s_<series>_out` parameter), if any.
	OutputPath(series string) (string, bool)

	// Iterator returns a fresh iteration view yielding batches of
	// batchSize examples. The iteration order is approximately shuffled
	// through a buffer of the dataset's configured buffer size, using rng;
	// a nil rng keeps the original order.
	Iterator(batchSize int, rng *rand.Rand) train.Dataset
}

// Dataset is an in-memory dataset: all series fully loaded, aligned by
// example index.
type Dataset struct {
	name       string
	series     map[string][]string
	seriesKeys []string
	outputs    map[string]string
	bufferSize int
	length     int
}

// New creates an in-memory dataset from already loaded series. All series
// must have the same length.
func New(name string, series map[string][]string, outputs map[string]string, bufferSize int) (*Dataset, error) {
	if len(series) == 0 {
		return nil, errors.Errorf("dataset %q: no data series provided", name)
	}
	d := &Dataset{
		name:       name,
		series:     series,
		outputs:    outputs,
		bufferSize: bufferSize,
		length:     -1,
	}
	for key, data := range series {
		d.seriesKeys = append(d.seriesKeys, key)
		if d.length >= 0 && len(data) != d.length {
			return nil, errors.Errorf("dataset %q: lengths of data series must be equal, series %q has %d examples, expected %d",
				name, key, len(data), d.length)
		}
		d.length = len(data)
	}
	klog.V(1).Infof("Dataset %q: %d examples, series %v", name, d.length, d.seriesKeys)
	return d, nil
}

// FromFiles loads every series file fully into memory. sources maps series
// name to its input file path.
func FromFiles(name string, sources map[string]string, outputs map[string]string, bufferSize int) (*Dataset, error) {
	series := make(map[string][]string, len(sources))
	for key, path := range sources {
		klog.V(1).Infof("Loading series %q from %q", key, path)
		lines, err := readLines(path)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q, series %q", name, key)
		}
		series[key] = lines
	}
	return New(name, series, outputs, bufferSize)
}

// Name implements Provider.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of examples.
func (d *Dataset) Len() int { return d.length }

// HasSeries implements Provider.
func (d *Dataset) HasSeries(name string) bool {
	_, found := d.series[name]
	return found
}

// Series implements Provider.
func (d *Dataset) Series(name string) ([]string, error) {
	data, found := d.series[name]
	if !found {
		return nil, errors.Errorf("dataset %q has no series %q", d.name, name)
	}
	return data, nil
}

// OutputPath implements Provider.
func (d *Dataset) OutputPath(series string) (string, bool) {
	path, found := d.outputs[series]
	return path, found
}

// Iterator implements Provider.
func (d *Dataset) Iterator(batchSize int, rng *rand.Rand) train.Dataset {
	return newIterator(d.name, func() exampleStream {
		return &memoryStream{d: d}
	}, batchSize, d.bufferSize, rng)
}

// memoryStream walks the in-memory examples in storage order.
type memoryStream struct {
	d   *Dataset
	pos int
}

func (s *memoryStream) next() (map[string]string, error) {
	if s.pos >= s.d.length {
		return nil, errEndOfStream
	}
	example := make(map[string]string, len(s.d.seriesKeys))
	for _, key := range s.d.seriesKeys {
		example[key] = s.d.series[key][s.pos]
	}
	s.pos++
	return example, nil
}

func (s *memoryStream) close() error { return nil }
