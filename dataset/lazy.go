package dataset

import (
	"bufio"
	"math/rand"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/jrjdr/neuralmonkey/train"
)

// Lazy is a file-backed dataset whose series are never fully loaded:
// iteration streams lines from all series files in parallel. Shuffling is
// therefore only approximate, bounded by the iterator's buffer.
type Lazy struct {
	name       string
	sources    map[string]string
	keys       []string
	outputs    map[string]string
	bufferSize int
}

// NewLazy creates a lazy dataset over the given series files.
func NewLazy(name string, sources map[string]string, outputs map[string]string, bufferSize int) (*Lazy, error) {
	if len(sources) == 0 {
		return nil, errors.Errorf("dataset %q: no data series provided", name)
	}
	l := &Lazy{
		name:       name,
		sources:    sources,
		outputs:    outputs,
		bufferSize: bufferSize,
	}
	for key := range sources {
		l.keys = append(l.keys, key)
	}
	sort.Strings(l.keys)
	return l, nil
}

// Name implements Provider.
func (l *Lazy) Name() string { return l.name }

// HasSeries implements Provider.
func (l *Lazy) HasSeries(name string) bool {
	_, found := l.sources[name]
	return found
}

// Series implements Provider. Each call re-reads the series file.
func (l *Lazy) Series(name string) ([]string, error) {
	path, found := l.sources[name]
	if !found {
		return nil, errors.Errorf("dataset %q has no series %q", l.name, name)
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q, series %q", l.name, name)
	}
	return lines, nil
}

// OutputPath implements Provider.
func (l *Lazy) OutputPath(series string) (string, bool) {
	path, found := l.outputs[series]
	return path, found
}

// Iterator implements Provider.
func (l *Lazy) Iterator(batchSize int, rng *rand.Rand) train.Dataset {
	return newIterator(l.name, func() exampleStream {
		return &fileStream{lazy: l}
	}, batchSize, l.bufferSize, rng)
}

// fileStream reads one line per series file at a time.
type fileStream struct {
	lazy     *Lazy
	files    []*os.File
	scanners []*bufio.Scanner
	failed   error
}

func (s *fileStream) openAll() error {
	s.files = make([]*os.File, 0, len(s.lazy.keys))
	s.scanners = make([]*bufio.Scanner, 0, len(s.lazy.keys))
	for _, key := range s.lazy.keys {
		f, err := os.Open(s.lazy.sources[key])
		if err != nil {
			_ = s.close()
			return errors.Wrapf(err, "dataset %q, series %q", s.lazy.name, key)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		s.files = append(s.files, f)
		s.scanners = append(s.scanners, scanner)
	}
	return nil
}

func (s *fileStream) next() (map[string]string, error) {
	if s.failed != nil {
		return nil, s.failed
	}
	if s.scanners == nil {
		if err := s.openAll(); err != nil {
			s.failed = err
			return nil, err
		}
	}
	example := make(map[string]string, len(s.lazy.keys))
	var gotLines, eofSeries int
	for i, scanner := range s.scanners {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				s.failed = errors.Wrapf(err, "dataset %q, series %q", s.lazy.name, s.lazy.keys[i])
				return nil, s.failed
			}
			eofSeries++
			continue
		}
		example[s.lazy.keys[i]] = scanner.Text()
		gotLines++
	}
	if eofSeries == len(s.scanners) {
		return nil, errEndOfStream
	}
	if eofSeries > 0 {
		s.failed = errors.Errorf("dataset %q: lengths of data series must be equal, %d of %d series ended early",
			s.lazy.name, eofSeries, len(s.scanners))
		return nil, s.failed
	}
	return example, nil
}

func (s *fileStream) close() error {
	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.files = nil
	s.scanners = nil
	return firstErr
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading %q", path)
	}
	return lines, nil
}
