// Package checkpoints implements saving and loading of parameter
// snapshots. The orchestrator saves a snapshot whenever the validation
// score strictly improves, so the newest checkpoint on disk is the best
// model seen so far.
//
// A Handler is created with Build, followed by option setting and a final
// Done:
//
//	handler, err := checkpoints.Build().Dir(outputDir).Keep(3).Done()
//
// Each checkpoint is a pair of files: `<base>.json` with the metadata
// (step, score, parameter layout) and `<base>.bin.gz` with the raw
// parameter values.
package checkpoints

import (
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DirPermMode is the directory creation permission (before umask) used.
var DirPermMode = os.FileMode(0770)

const (
	baseNamePrefix = "checkpoint-"
	jsonSuffix     = ".json"
	binSuffix      = ".bin.gz"
)

// Config for the Handler to be created. Create it with Build, configure,
// and call Done.
type Config struct {
	dir  string
	keep int
	err  error
}

// Build starts the configuration of a checkpoints Handler.
func Build() *Config {
	return &Config{keep: 1}
}

func (c *Config) setError(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Dir sets the directory checkpoints are saved to. It is created if
// needed.
func (c *Config) Dir(dir string) *Config {
	if dir == "" {
		c.setError(errors.New("checkpoints directory cannot be empty"))
		return c
	}
	c.dir = dir
	return c
}

// Keep sets how many checkpoints to keep on disk; older ones are erased
// when a new one is saved. Defaults to 1.
func (c *Config) Keep(n int) *Config {
	if n < 1 {
		c.setError(errors.Errorf("Keep(%d): must keep at least one checkpoint", n))
		return c
	}
	c.keep = n
	return c
}

// Done finishes the configuration and returns the Handler.
func (c *Config) Done() (*Handler, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.dir == "" {
		return nil, errors.New("checkpoints need a directory, use Config.Dir")
	}
	if err := os.MkdirAll(c.dir, DirPermMode); err != nil {
		return nil, errors.Wrapf(err, "failed to create checkpoints directory %q", c.dir)
	}
	return &Handler{dir: c.dir, keep: c.keep}, nil
}

// Handler saves and loads checkpoints in one directory.
type Handler struct {
	dir  string
	keep int
}

// Checkpoint is one loaded parameter snapshot.
type Checkpoint struct {
	Step   int64
	Score  float64
	Saved  time.Time
	Params map[string][]float64
}

// metadata is the JSON side of a checkpoint pair.
type metadata struct {
	Step   int64       `json:"step"`
	Score  float64     `json:"score"`
	Saved  time.Time   `json:"saved"`
	Params []paramSpec `json:"params"`
}

// paramSpec records one variable's layout inside the binary file.
type paramSpec struct {
	Name string `json:"name"`
	Len  int    `json:"len"`
}

// Dir returns the directory used by the handler.
func (h *Handler) Dir() string { return h.dir }

func baseName(step int64) string {
	return fmt.Sprintf("%s%09d", baseNamePrefix, step)
}

// Save writes a checkpoint for the given step and score and rotates older
// checkpoints past the configured keep count.
func (h *Handler) Save(step int64, score float64, params map[string][]float64) error {
	meta := metadata{Step: step, Score: score, Saved: time.Now()}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	totalValues := 0
	for _, name := range names {
		meta.Params = append(meta.Params, paramSpec{Name: name, Len: len(params[name])})
		totalValues += len(params[name])
	}

	base := filepath.Join(h.dir, baseName(step))
	binFile, err := os.Create(base + binSuffix)
	if err != nil {
		return errors.Wrapf(err, "failed to create checkpoint %q", base+binSuffix)
	}
	zw := gzip.NewWriter(binFile)
	for _, name := range names {
		for _, value := range params[name] {
			if err := binary.Write(zw, binary.LittleEndian, math.Float64bits(value)); err != nil {
				_ = binFile.Close()
				return errors.Wrapf(err, "failed writing checkpoint %q", base+binSuffix)
			}
		}
	}
	if err := zw.Close(); err != nil {
		_ = binFile.Close()
		return errors.Wrapf(err, "failed writing checkpoint %q", base+binSuffix)
	}
	if err := binFile.Close(); err != nil {
		return errors.Wrapf(err, "failed writing checkpoint %q", base+binSuffix)
	}

	jsonBytes, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode checkpoint metadata")
	}
	if err := os.WriteFile(base+jsonSuffix, jsonBytes, 0660); err != nil {
		return errors.Wrapf(err, "failed to write checkpoint %q", base+jsonSuffix)
	}
	klog.V(1).Infof("Saved checkpoint at step %d (%s values, score %.4f)",
		step, humanize.Comma(int64(totalValues)), score)
	return h.keepNCheckpoints()
}

// ListCheckpoints returns the checkpoint base names present in the
// directory, oldest first.
func (h *Handler) ListCheckpoints() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list checkpoints in %q", h.dir)
	}
	var bases []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, baseNamePrefix) && strings.HasSuffix(name, jsonSuffix) {
			bases = append(bases, strings.TrimSuffix(name, jsonSuffix))
		}
	}
	sort.Strings(bases)
	return bases, nil
}

// Latest loads the most recent checkpoint, or nil if there is none.
func (h *Handler) Latest() (*Checkpoint, error) {
	bases, err := h.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	if len(bases) == 0 {
		return nil, nil
	}
	return h.load(bases[len(bases)-1])
}

func (h *Handler) load(base string) (*Checkpoint, error) {
	jsonBytes, err := os.ReadFile(filepath.Join(h.dir, base+jsonSuffix))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %q", base)
	}
	var meta metadata
	if err := json.Unmarshal(jsonBytes, &meta); err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint %q", base)
	}

	binFile, err := os.Open(filepath.Join(h.dir, base+binSuffix))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %q", base)
	}
	defer func() { _ = binFile.Close() }()
	zr, err := gzip.NewReader(binFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decompress checkpoint %q", base)
	}
	defer func() { _ = zr.Close() }()

	checkpoint := &Checkpoint{
		Step:   meta.Step,
		Score:  meta.Score,
		Saved:  meta.Saved,
		Params: make(map[string][]float64, len(meta.Params)),
	}
	for _, spec := range meta.Params {
		values := make([]float64, spec.Len)
		for i := range values {
			var bits uint64
			if err := binary.Read(zr, binary.LittleEndian, &bits); err != nil {
				return nil, errors.Wrapf(err, "checkpoint %q: truncated parameter %q", base, spec.Name)
			}
			values[i] = math.Float64frombits(bits)
		}
		checkpoint.Params[spec.Name] = values
	}
	return checkpoint, nil
}

func (h *Handler) keepNCheckpoints() error {
	bases, err := h.ListCheckpoints()
	if err != nil {
		return err
	}
	for len(bases) > h.keep {
		base := bases[0]
		bases = bases[1:]
		for _, suffix := range []string{jsonSuffix, binSuffix} {
			if err := os.Remove(filepath.Join(h.dir, base+suffix)); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "failed to erase old checkpoint %q", base)
			}
		}
	}
	return nil
}
