// Package consolidation merges many small memory records into fewer,
// denser consolidated records, grouped either by exact tag or by token
// overlap of their content.
package consolidation

import (
	"regexp"
	"strings"
)

// nonWordChars matches every character that is neither a word character
// nor whitespace. Normalization strips these before tokenizing.
var nonWordChars = regexp.MustCompile(`[^a-z0-9_\s]+`)

// Similarity computes a pruned Jaccard similarity between two texts,
// returning a score in [0.0, 1.0]. Empty texts have no similarity, even
// to themselves.
func (e *Engine) Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	setA := e.wordSet(a)
	setB := e.wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	// Cheap rejection: token sets this lopsided cannot clear any useful
	// threshold. Short, dense texts may be falsely rejected; accepted
	// trade-off rather than a bug.
	if len(setA) > 2*len(setB) || len(setB) > 2*len(setA) {
		return 0.0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// wordSet returns the unique-token set for text. Results are memoized
// keyed by the normalized text so repeated inputs skip re-tokenization;
// the cache is unbounded for the lifetime of one Engine.
func (e *Engine) wordSet(text string) map[string]bool {
	normalized := nonWordChars.ReplaceAllString(strings.ToLower(text), "")
	if cached, ok := e.wordSets[normalized]; ok {
		return cached
	}

	set := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		set[tok] = true
	}

	e.wordSets[normalized] = set
	return set
}
