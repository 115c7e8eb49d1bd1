package decoders

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WordEmbeddings holds a pretrained embedding table loaded from a
// word2vec-style text file (one `token v1 v2 ...` line per word).
//
// Vocabulary is an exported field so that other sections can pull it out
// with a dotted reference (`<word2vec.vocabulary>`) instead of re-deriving
// it from data.
type WordEmbeddings struct {
	Vocabulary *Vocabulary
	Dim        int

	vectors map[string][]float64
}

// LoadWordEmbeddings reads the embeddings file. All vectors must share the
// same dimension.
func LoadWordEmbeddings(path string) (*WordEmbeddings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open embeddings file %q", path)
	}
	defer func() { _ = f.Close() }()

	e := &WordEmbeddings{vectors: make(map[string][]float64)}
	var tokens []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			return nil, errors.Errorf("embeddings file %q, line %d: expected token and vector", path, lineNo)
		}
		token := fields[0]
		vector := make([]float64, len(fields)-1)
		for i, field := range fields[1:] {
			vector[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "embeddings file %q, line %d", path, lineNo)
			}
		}
		if e.Dim == 0 {
			e.Dim = len(vector)
		} else if len(vector) != e.Dim {
			return nil, errors.Errorf("embeddings file %q, line %d: vector of dimension %d, expected %d",
				path, lineNo, len(vector), e.Dim)
		}
		e.vectors[token] = vector
		tokens = append(tokens, token)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading embeddings file %q", path)
	}
	e.Vocabulary = NewVocabulary(tokens)
	klog.V(1).Infof("Loaded %s embeddings of dimension %d from %q",
		humanize.Comma(int64(len(e.vectors))), e.Dim, path)
	return e, nil
}

// Vector returns the embedding for the token, if present.
func (e *WordEmbeddings) Vector(token string) ([]float64, bool) {
	vector, found := e.vectors[token]
	return vector, found
}
