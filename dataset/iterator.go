package dataset

import (
	"io"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/jrjdr/neuralmonkey/train"
)

// errEndOfStream signals the end of an example stream.
var errEndOfStream = errors.New("end of stream")

// exampleStream produces examples (one value per series) in storage order.
type exampleStream interface {
	next() (map[string]string, error)
	close() error
}

// iterator batches an example stream into train.Batch values, shuffling
// approximately through a bounded buffer: each yielded example is drawn at
// random from a buffer of up to bufferSize pending examples, which is
// refilled from the stream. A buffer of size <= 1 (or a nil rng)
// preserves the storage order. The full dataset is never shuffled at once,
// so the memory bound holds for lazy datasets too.
type iterator struct {
	name       string
	open       func() exampleStream
	stream     exampleStream
	batchSize  int
	bufferSize int
	rng        *rand.Rand

	buffer    []map[string]string
	exhausted bool
}

func newIterator(name string, open func() exampleStream, batchSize, bufferSize int, rng *rand.Rand) train.Dataset {
	it := &iterator{
		name:       name,
		open:       open,
		batchSize:  batchSize,
		bufferSize: bufferSize,
		rng:        rng,
	}
	it.stream = open()
	return it
}

// Name implements train.Dataset.
func (it *iterator) Name() string { return it.name }

// Reset implements train.Dataset: restarts the stream for a new epoch.
func (it *iterator) Reset() {
	_ = it.stream.close()
	it.stream = it.open()
	it.buffer = it.buffer[:0]
	it.exhausted = false
}

// Yield implements train.Dataset. The final batch of an epoch may hold
// fewer than batchSize examples.
func (it *iterator) Yield() (train.Batch, error) {
	batch := make(train.Batch)
	count := 0
	for count < it.batchSize {
		example, err := it.nextExample()
		if err == errEndOfStream {
			break
		}
		if err != nil {
			return nil, err
		}
		for key, value := range example {
			batch[key] = append(batch[key], value)
		}
		count++
	}
	if count == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (it *iterator) nextExample() (map[string]string, error) {
	if err := it.fillBuffer(); err != nil {
		return nil, err
	}
	if len(it.buffer) == 0 {
		return nil, errEndOfStream
	}
	idx := 0
	if it.rng != nil && len(it.buffer) > 1 {
		idx = it.rng.Intn(len(it.buffer))
	}
	example := it.buffer[idx]
	last := len(it.buffer) - 1
	it.buffer[idx] = it.buffer[last]
	it.buffer = it.buffer[:last]
	return example, nil
}

func (it *iterator) fillBuffer() error {
	target := it.bufferSize
	if target < 1 {
		target = 1
	}
	for !it.exhausted && len(it.buffer) < target {
		example, err := it.stream.next()
		if err == errEndOfStream {
			it.exhausted = true
			return nil
		}
		if err != nil {
			return err
		}
		it.buffer = append(it.buffer, example)
	}
	return nil
}
