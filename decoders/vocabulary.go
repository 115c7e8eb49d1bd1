// Package decoders holds the reference model components shipped with the
// engine: a vocabulary, a pretrained word-embeddings loader and a learned
// unigram sequence decoder. They implement the Decoder contract the
// orchestrator drives; real model architectures plug in the same way.
package decoders

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/jrjdr/neuralmonkey/dataset"
)

// UnknownToken is the reserved vocabulary entry unknown words map to.
const UnknownToken = "<unk>"

// Vocabulary maps tokens to dense indices. Index 0 is always the unknown
// token.
type Vocabulary struct {
	Tokens []string
	index  map[string]int
}

// NewVocabulary builds a vocabulary from the given tokens. Duplicates are
// dropped, the unknown token is always present at index 0.
func NewVocabulary(tokens []string) *Vocabulary {
	v := &Vocabulary{index: make(map[string]int)}
	v.add(UnknownToken)
	for _, token := range tokens {
		v.add(token)
	}
	return v
}

// VocabularyFromSeries collects the vocabulary of one data series over the
// given datasets, most frequent tokens first, truncated to maxSize when
// maxSize > 0.
func VocabularyFromSeries(providers []dataset.Provider, series string, maxSize int) (*Vocabulary, error) {
	counts := make(map[string]int)
	var order []string
	for _, provider := range providers {
		data, err := provider.Series(series)
		if err != nil {
			return nil, errors.WithMessagef(err, "building vocabulary over series %q", series)
		}
		for _, line := range data {
			for _, token := range strings.Fields(line) {
				if counts[token] == 0 {
					order = append(order, token)
				}
				counts[token]++
			}
		}
	}
	// Stable order: by frequency, ties by first occurrence.
	occurrence := make(map[string]int, len(order))
	for i, token := range order {
		occurrence[token] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return occurrence[order[i]] < occurrence[order[j]]
	})
	if maxSize > 0 && len(order) > maxSize {
		order = order[:maxSize]
	}
	v := NewVocabulary(order)
	klog.V(1).Infof("Vocabulary over series %q: %d tokens", series, len(v.Tokens))
	return v, nil
}

func (v *Vocabulary) add(token string) {
	if _, found := v.index[token]; found {
		return
	}
	v.index[token] = len(v.Tokens)
	v.Tokens = append(v.Tokens, token)
}

// Len returns the vocabulary size, including the unknown token.
func (v *Vocabulary) Len() int { return len(v.Tokens) }

// Index returns the dense index of the token, 0 (the unknown token) if
// absent.
func (v *Vocabulary) Index(token string) int {
	if idx, found := v.index[token]; found {
		return idx
	}
	return 0
}

// Token returns the token at the given index.
func (v *Vocabulary) Token(idx int) string { return v.Tokens[idx] }
