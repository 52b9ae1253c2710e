package insights_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testReference() insights.ReferenceTables {
	return insights.ReferenceTables{
		MasterEntities: []string{"Vijayapura", "Yadgir", "Bengaluru Urban", "Madhepura", "North Goa", "South Goa", "Surat"},
		Overrides: map[string]string{
			"bijapur": "Vijayapura",
			"hasan":   "Hassan",
		},
	}
}

func newTestNormalizer() *insights.Normalizer {
	return insights.NewNormalizer(testReference())
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestNormalize_Override_IgnoresCaseAndWhitespace(t *testing.T) {
	// GIVEN: "bijapur" is an override for Vijayapura
	// WHEN: Normalizing it with odd casing and padding
	// THEN: The override value is returned

	n := newTestNormalizer()

	for _, raw := range []string{"bijapur", "Bijapur", " BIJAPUR ", "\tbiJaPur\n"} {
		assert.Equal(t, "Vijayapura", n.Normalize(raw), "raw=%q", raw)
	}
}

func TestNormalize_Override_SkipsFuzzyStep(t *testing.T) {
	// GIVEN: "hasan" overrides to "Hassan", which is not in the master list
	// WHEN: Normalizing "Hasan"
	// THEN: The override value is returned as-is

	n := newTestNormalizer()

	assert.Equal(t, "Hassan", n.Normalize("Hasan"))
}

// =============================================================================
// FUZZY MATCHING
// =============================================================================

func TestNormalize_FuzzyMatch_AboveThreshold(t *testing.T) {
	// GIVEN: Misspellings within one edit of a master entry
	// WHEN: Normalizing
	// THEN: The master entry is returned

	n := newTestNormalizer()

	tests := map[string]string{
		"Yadgiri":        "Yadgir",          // 1/7 -> 85.7
		"yadgir":         "Yadgir",          // exact after folding
		"Bengaluru Urbn": "Bengaluru Urban", // 1/15 -> 93.3
		"madhepur":       "Madhepura",       // 1/9 -> 88.9
		"north goa":      "North Goa",
	}
	for raw, want := range tests {
		assert.Equal(t, want, n.Normalize(raw), "raw=%q", raw)
	}
}

func TestNormalize_FuzzyMatch_AtOrBelowThreshold_FallsBack(t *testing.T) {
	// GIVEN: "Surit" scores exactly 80 against "Surat"
	// WHEN: Normalizing it and an unrelated name
	// THEN: The trimmed input is returned in title case

	n := newTestNormalizer()

	assert.Equal(t, "Surit", n.Normalize("surit"))
	assert.Equal(t, "Some New District", n.Normalize("  some new district "))
}

func TestNormalize_ThresholdIsStrict(t *testing.T) {
	// GIVEN: A threshold equal to the best achievable score
	// WHEN: Matching
	// THEN: The candidate is not accepted

	ref := testReference()
	ref.MatchThreshold = 80
	n := insights.NewNormalizer(ref)

	match, score, ok := n.Match("surit")
	assert.Equal(t, "Surat", match)
	assert.InDelta(t, 80.0, score, 1e-9)
	assert.False(t, ok, "score equal to threshold must not match")
}

func TestNormalize_ExactMatchScores100(t *testing.T) {
	n := newTestNormalizer()

	match, score, ok := n.Match(" SURAT ")
	assert.Equal(t, "Surat", match)
	assert.Equal(t, 100.0, score)
	assert.True(t, ok)
}

func TestNormalize_Tie_FirstMasterEntryWins(t *testing.T) {
	// GIVEN: Two master entries at the same distance from the input
	// WHEN: Matching with a low threshold
	// THEN: The earlier entry in master order is returned

	n := insights.NewNormalizer(insights.ReferenceTables{
		MasterEntities: []string{"Abcd", "Abce"},
		MatchThreshold: 70,
	})

	match, score, ok := n.Match("abcf")
	assert.Equal(t, "Abcd", match)
	assert.InDelta(t, 75.0, score, 1e-9)
	assert.True(t, ok)
}

// =============================================================================
// NON-NAMES
// =============================================================================

func TestNormalize_NonStringAndBlank_AreUnknown(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []any{nil, 42, 3.14, true, "", "   "} {
		assert.Equal(t, insights.UnknownEntity, n.Normalize(raw), "raw=%#v", raw)
	}
}

func TestNormalize_EmptyMasterList_FallsBackToTitleCase(t *testing.T) {
	n := insights.NewNormalizer(insights.ReferenceTables{})

	assert.Equal(t, "Yadgir", n.Normalize("yadgir"))
	_, _, ok := n.Match("yadgir")
	assert.False(t, ok)
}

// =============================================================================
// TABLE OWNERSHIP AND CONCURRENCY
// =============================================================================

func TestNewNormalizer_CopiesTables(t *testing.T) {
	// GIVEN: Reference tables used to build a normalizer
	// WHEN: The caller mutates them afterwards
	// THEN: The normalizer is unaffected

	ref := testReference()
	n := insights.NewNormalizer(ref)

	ref.MasterEntities[1] = "Changed"
	ref.Overrides["bijapur"] = "Changed"

	assert.Equal(t, "Yadgir", n.Normalize("yadgir"))
	assert.Equal(t, "Vijayapura", n.Normalize("bijapur"))
	assert.Equal(t, insights.DefaultMatchThreshold, n.Threshold())
}

func TestNormalize_ConcurrentUse(t *testing.T) {
	n := newTestNormalizer()

	var wg sync.WaitGroup
	results := make([]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = n.Normalize("some new district")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(t, "Some New District", r)
	}
}

// =============================================================================
// SIMILARITY
// =============================================================================

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 100},
		{"abc", "abc", 100},
		{"abc", "xyz", 0},
		{"surat", "surit", 80},
		{"abc", "", 0},
		{"bengaluru", "bengaluru urban", 60},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, insights.Similarity(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}
