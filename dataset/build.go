package dataset

import (
	"regexp"

	"github.com/pkg/errors"
)

// Series file parameters follow the original configuration convention: the
// input file of series "xxx" is given as `s_xxx`, and the output file the
// experiment should write produced "xxx" outputs to as `s_xxx_out`.
var (
	seriesSource = regexp.MustCompile(`^s_([^_]+)$`)
	seriesOutput = regexp.MustCompile(`^s_(.+)_out$`)
)

// Build constructs a dataset from section keyword arguments. Recognized
// parameters: name (defaults to the section name), lazy, buffer_size and
// the `s_<series>` / `s_<series>_out` file specs.
func Build(sectionName string, kwargs map[string]any) (Provider, error) {
	name := sectionName
	lazy := false
	bufferSize := 0
	sources := make(map[string]string)
	outputs := make(map[string]string)

	for key, value := range kwargs {
		switch key {
		case "name":
			s, ok := value.(string)
			if !ok {
				return nil, errors.Errorf("dataset parameter name must be a string, got %T", value)
			}
			name = s
		case "lazy":
			b, ok := value.(bool)
			if !ok {
				return nil, errors.Errorf("dataset parameter lazy must be a bool, got %T", value)
			}
			lazy = b
		case "buffer_size":
			n, ok := value.(int)
			if !ok {
				return nil, errors.Errorf("dataset parameter buffer_size must be an int, got %T", value)
			}
			bufferSize = n
		default:
			if m := seriesOutput.FindStringSubmatch(key); m != nil {
				path, ok := value.(string)
				if !ok {
					return nil, errors.Errorf("dataset parameter %q must be a file path, got %T", key, value)
				}
				outputs[m[1]] = path
				continue
			}
			if m := seriesSource.FindStringSubmatch(key); m != nil {
				path, ok := value.(string)
				if !ok {
					return nil, errors.Errorf("dataset parameter %q must be a file path, got %T", key, value)
				}
				sources[m[1]] = path
				continue
			}
			return nil, errors.Errorf("unexpected dataset parameter %q", key)
		}
	}
	if len(sources) == 0 {
		return nil, errors.Errorf("dataset %q: no input files provided", name)
	}
	if lazy {
		return NewLazy(name, sources, outputs, bufferSize)
	}
	return FromFiles(name, sources, outputs, bufferSize)
}
