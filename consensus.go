package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// criticOrder is the fixed provider iteration order. Merging sorts critiques
// into this order first, so consensus output is deterministic no matter how
// the concurrent provider calls happened to finish.
var criticOrder = []string{CriticGemini, CriticOpenAI, CriticAnthropic}

// defaultSimilarityThreshold is the Jaccard token-overlap ratio at or above
// which two canonicalized improvements are folded into one. Tunable via
// consensus.similarity_threshold in settings.
const defaultSimilarityThreshold = 0.8

// mergeCritiques reconciles all provider critiques for one photograph into a
// single consensus: the round-half-up mean of valid scores, a deduplicated
// improvement list in first-seen provider order, and provider-attributed
// notes. Fails with ErrNoValidCritiques when nothing valid came back.
func mergeCritiques(critiques []Critique, threshold float64) (*Consensus, error) {
	ordered := orderCritiques(critiques)

	var (
		scores       []float64
		improvements []string
		notes        []string
		critics      []string
	)
	for _, c := range ordered {
		if !c.Valid {
			continue
		}
		scores = append(scores, c.Score)
		improvements = append(improvements, c.Improvements...)
		if c.Notes != "" {
			notes = append(notes, fmt.Sprintf("[%s] %s", strings.ToUpper(c.Provider), c.Notes))
		}
		critics = append(critics, c.Provider)
	}

	if len(scores) == 0 {
		return nil, ErrNoValidCritiques
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}

	return &Consensus{
		Score:        int(math.Round(sum / float64(len(scores)))),
		Improvements: dedupeImprovements(improvements, threshold),
		Notes:        strings.Join(notes, " | "),
		Critics:      critics,
	}, nil
}

// orderCritiques sorts critiques into the fixed criticOrder; providers not
// in the canonical list sort after it, by name.
func orderCritiques(critiques []Critique) []Critique {
	rank := make(map[string]int, len(criticOrder))
	for i, name := range criticOrder {
		rank[name] = i
	}
	pos := func(name string) int {
		if r, ok := rank[name]; ok {
			return r
		}
		return len(criticOrder)
	}

	ordered := make([]Critique, len(critiques))
	copy(ordered, critiques)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := pos(ordered[i].Provider), pos(ordered[j].Provider)
		if pi != pj {
			return pi < pj
		}
		return ordered[i].Provider < ordered[j].Provider
	})
	return ordered
}

// dedupeImprovements collapses duplicate improvement statements. Statements
// whose canonical keys are identical, or whose key tokens overlap at or
// above threshold, are treated as the same instruction; the first-seen
// surface form is kept. Idempotent: running it over its own output changes
// nothing.
func dedupeImprovements(improvements []string, threshold float64) []string {
	seen := make(map[string]bool)
	var keptKeys []string
	var kept []string

next:
	for _, imp := range improvements {
		key := canonicalKey(imp)
		if key == "" || seen[key] {
			continue
		}
		for _, existing := range keptKeys {
			if tokenOverlap(existing, key) >= threshold {
				continue next
			}
		}
		seen[key] = true
		keptKeys = append(keptKeys, key)
		kept = append(kept, imp)
	}
	return kept
}

// canonicalKey normalizes an improvement statement for comparison:
// case-folded, whitespace collapsed, trailing punctuation stripped.
func canonicalKey(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRight(s, ".!?,;:")
}

// tokenOverlap is the Jaccard similarity of the two keys' token sets.
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}

	var intersection int
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
