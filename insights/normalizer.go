/*
normalizer.go - District name normalization

PURPOSE:
  Maps raw, inconsistently spelled district names onto canonical names so
  that "Yadgir", "yadgir " and "Yadgiri" aggregate together.

ALGORITHM:
  1. Non-string or blank input        -> "Unknown"
  2. lower(trim(name)) in overrides   -> override value (no fuzzy step)
  3. best fuzzy match > threshold     -> master entry
  4. otherwise                        -> trimmed input in Title Case

SIMILARITY:
  100 * (1 - levenshtein(a, b) / max(len(a), len(b))), computed on the
  lowercased, trimmed forms and counted in runes. An exact match is 100.

TIES:
  When several master entries share the best score, the earliest one in
  master-list order wins. Nothing guarantees that choice is "right"; matches
  are advisory.
*/
package insights

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// UnknownEntity is returned for values that are not names at all.
	UnknownEntity = "Unknown"

	// DefaultMatchThreshold is the score a fuzzy match must exceed.
	DefaultMatchThreshold = 85.0
)

// ReferenceTables are the constant inputs of the normalizer.
type ReferenceTables struct {
	// MasterEntities is the ordered list of canonical names.
	MasterEntities []string

	// Overrides maps lowercase, trimmed variants to canonical names.
	Overrides map[string]string

	// MatchThreshold overrides DefaultMatchThreshold when > 0.
	MatchThreshold float64
}

// Normalizer resolves raw names against immutable reference tables.
// It is safe for concurrent use.
type Normalizer struct {
	master    []string
	folded    []string
	overrides map[string]string
	threshold float64
}

// NewNormalizer copies the tables; later changes to ref do not leak in.
func NewNormalizer(ref ReferenceTables) *Normalizer {
	n := &Normalizer{
		master:    make([]string, len(ref.MasterEntities)),
		folded:    make([]string, len(ref.MasterEntities)),
		overrides: make(map[string]string, len(ref.Overrides)),
		threshold: ref.MatchThreshold,
	}
	if n.threshold <= 0 {
		n.threshold = DefaultMatchThreshold
	}
	for i, name := range ref.MasterEntities {
		n.master[i] = name
		n.folded[i] = fold(name)
	}
	for k, v := range ref.Overrides {
		n.overrides[fold(k)] = v
	}
	return n
}

// Normalize returns the canonical name for raw. It never fails.
func (n *Normalizer) Normalize(raw any) string {
	name, ok := raw.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return UnknownEntity
	}

	key := fold(name)
	if canonical, ok := n.overrides[key]; ok {
		return canonical
	}

	if match, _, ok := n.Match(name); ok {
		return match
	}
	return titleCase(strings.TrimSpace(name))
}

// Match returns the best master entry for name and its score. ok is true
// only when the score exceeds the threshold.
func (n *Normalizer) Match(name string) (string, float64, bool) {
	key := fold(name)
	best, bestScore := "", -1.0
	for i, candidate := range n.folded {
		score := Similarity(key, candidate)
		if score > bestScore {
			best, bestScore = n.master[i], score
		}
	}
	if bestScore < 0 {
		return "", 0, false
	}
	return best, bestScore, bestScore > n.threshold
}

// Threshold returns the effective match threshold.
func (n *Normalizer) Threshold() float64 {
	return n.threshold
}

// Similarity scores two strings in [0,100] by normalized edit distance.
// Comparison is exact; callers fold case beforehand if they need to.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(d)/float64(longest))
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// titleCase uses a fresh Caser per call: a Caser is stateful and must not be
// shared between goroutines.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
