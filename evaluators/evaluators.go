// Package evaluators implements scoring of produced output series against
// reference series: exact-match accuracy, word error rate and BLEU. Every
// evaluator carries its comparison direction, so best-model selection
// works for both minimized and maximized metrics.
package evaluators

import (
	"math"
	"strings"
)

// Accuracy is the fraction of hypotheses exactly matching their reference.
// Higher is better.
type Accuracy struct{}

// Name implements train.Evaluator.
func (Accuracy) Name() string { return "Accuracy" }

// LowerIsBetter implements train.Evaluator.
func (Accuracy) LowerIsBetter() bool { return false }

// Score implements train.Evaluator.
func (Accuracy) Score(hypotheses, references []string) float64 {
	if len(hypotheses) == 0 {
		return 0
	}
	matched := 0
	for i, hyp := range hypotheses {
		if hyp == references[i] {
			matched++
		}
	}
	return float64(matched) / float64(len(hypotheses))
}

// WER is the corpus-level word error rate: total token edit distance over
// total reference length. Lower is better.
type WER struct{}

// Name implements train.Evaluator.
func (WER) Name() string { return "WER" }

// LowerIsBetter implements train.Evaluator.
func (WER) LowerIsBetter() bool { return true }

// Score implements train.Evaluator.
func (WER) Score(hypotheses, references []string) float64 {
	var edits, length int
	for i, hyp := range hypotheses {
		refTokens := strings.Fields(references[i])
		edits += editDistance(strings.Fields(hyp), refTokens)
		length += len(refTokens)
	}
	if length == 0 {
		return 0
	}
	return float64(edits) / float64(length)
}

// editDistance is the Levenshtein distance between token sequences.
func editDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// BLEU is the corpus-level BLEU score with n-gram orders up to MaxOrder
// (4 when zero), add-one smoothing for higher orders and the usual brevity
// penalty. Scores are in [0, 1]; higher is better.
type BLEU struct {
	MaxOrder int
}

// Name implements train.Evaluator.
func (BLEU) Name() string { return "BLEU" }

// LowerIsBetter implements train.Evaluator.
func (BLEU) LowerIsBetter() bool { return false }

// Score implements train.Evaluator.
func (b BLEU) Score(hypotheses, references []string) float64 {
	maxOrder := b.MaxOrder
	if maxOrder <= 0 {
		maxOrder = 4
	}
	matches := make([]int, maxOrder)
	totals := make([]int, maxOrder)
	var hypLength, refLength int

	for i, hyp := range hypotheses {
		hypTokens := strings.Fields(hyp)
		refTokens := strings.Fields(references[i])
		hypLength += len(hypTokens)
		refLength += len(refTokens)
		for order := 1; order <= maxOrder; order++ {
			refCounts := ngramCounts(refTokens, order)
			for gram, count := range ngramCounts(hypTokens, order) {
				totals[order-1] += count
				if refCount, found := refCounts[gram]; found {
					matches[order-1] += min(count, refCount)
				}
			}
		}
	}
	if hypLength == 0 || totals[0] == 0 {
		return 0
	}

	logPrecision := 0.0
	for order := 1; order <= maxOrder; order++ {
		m, t := matches[order-1], totals[order-1]
		if order > 1 {
			// Add-one smoothing keeps short corpora from zeroing out.
			m, t = m+1, t+1
		}
		if m == 0 {
			return 0
		}
		logPrecision += math.Log(float64(m) / float64(t))
	}
	logPrecision /= float64(maxOrder)

	brevity := 1.0
	if hypLength < refLength {
		brevity = math.Exp(1 - float64(refLength)/float64(hypLength))
	}
	return brevity * math.Exp(logPrecision)
}

func ngramCounts(tokens []string, order int) map[string]int {
	if len(tokens) < order {
		return nil
	}
	counts := make(map[string]int)
	for i := 0; i+order <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+order], " ")]++
	}
	return counts
}
