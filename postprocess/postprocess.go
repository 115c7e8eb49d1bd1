// Package postprocess implements output postprocessors: transformations
// applied to runner output series before evaluation and persistence.
package postprocess

import "strings"

// Lowercase lowercases every output line.
type Lowercase struct{}

// Postprocess implements train.Postprocessor.
func (Lowercase) Postprocess(outputs []string) []string {
	result := make([]string, len(outputs))
	for i, line := range outputs {
		result[i] = strings.ToLower(line)
	}
	return result
}

// Detokenize joins token sequences into plain text: collapses repeated
// spaces and strips the space before closing punctuation.
type Detokenize struct{}

// Postprocess implements train.Postprocessor.
func (Detokenize) Postprocess(outputs []string) []string {
	replacer := strings.NewReplacer(" .", ".", " ,", ",", " ?", "?", " !", "!", " ;", ";", " :", ":")
	result := make([]string, len(outputs))
	for i, line := range outputs {
		result[i] = replacer.Replace(strings.Join(strings.Fields(line), " "))
	}
	return result
}
