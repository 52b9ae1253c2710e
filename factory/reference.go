/*
Package factory provides YAML/JSON to Go conversion of the normalizer's
reference tables.

PURPOSE:
  Converts a reference document (master district list, known-bad spelling
  overrides, match threshold) into insights.ReferenceTables. Operators can
  extend the district list without a code change.

WHY A DOCUMENT?
  - District renames happen (Bijapur -> Vijayapura); data teams own them
  - Version control for the reference list
  - Test fixtures swap in a small list

SCHEMA (YAML; JSON is accepted as well):
  entities:
    - Vijayapura
    - Yadgir
  overrides:
    bijapur: Vijayapura
    hasan: Hassan
  match_threshold: 85

VALIDATION:
  - at least one entity, no blank or duplicate (case-insensitive) entities
  - override keys are folded to lowercase/trimmed; duplicates after folding
    are rejected; values must be non-blank
  - match_threshold, when set, must be in (0, 100)

USAGE:
  f := factory.NewReferenceFactory()
  ref, err := f.ParseReference(data)
  ref, err := f.LoadFile("reference.yaml")
  norm := insights.NewNormalizer(ref)

SEE ALSO:
  - insights/normalizer.go: Consumer of the tables
*/
package factory

import (
	"fmt"
	"os"
	"strings"

	"github.com/warp/insights-engine/insights"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// ReferenceJSON is the document representation of the reference tables.
type ReferenceJSON struct {
	Entities       []string          `yaml:"entities" json:"entities"`
	Overrides      map[string]string `yaml:"overrides" json:"overrides"`
	MatchThreshold float64           `yaml:"match_threshold" json:"match_threshold"`
}

// DefaultMasterEntities is the built-in canonical district list.
var DefaultMasterEntities = []string{
	"Vijayapura",
	"Yadgir",
	"Bengaluru Urban",
	"Madhepura",
	"North Goa",
	"South Goa",
	"Alappuzha",
	"Surat",
	"Muzaffarnagar",
	"Pilibhit",
}

// DefaultOverrides are historical names that fuzzy matching cannot resolve.
var DefaultOverrides = map[string]string{
	"bijapur":      "Vijayapura",
	"hasan":        "Hassan",
	"yamuna nagar": "Yamunanagar",
}

// =============================================================================
// FACTORY
// =============================================================================

// ReferenceFactory builds reference tables.
type ReferenceFactory struct{}

// NewReferenceFactory creates a new factory.
func NewReferenceFactory() *ReferenceFactory {
	return &ReferenceFactory{}
}

// Default returns the built-in tables.
func (f *ReferenceFactory) Default() insights.ReferenceTables {
	ref, err := f.Build(ReferenceJSON{
		Entities:       DefaultMasterEntities,
		Overrides:      DefaultOverrides,
		MatchThreshold: insights.DefaultMatchThreshold,
	})
	if err != nil {
		panic(fmt.Sprintf("built-in reference tables are invalid: %v", err))
	}
	return ref
}

// LoadFile reads a reference document from disk. An empty path returns the
// built-in tables.
func (f *ReferenceFactory) LoadFile(path string) (insights.ReferenceTables, error) {
	if path == "" {
		return f.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return insights.ReferenceTables{}, fmt.Errorf("read reference file: %w", err)
	}
	return f.ParseReference(data)
}

// ParseReference parses a YAML or JSON reference document.
func (f *ReferenceFactory) ParseReference(data []byte) (insights.ReferenceTables, error) {
	var doc ReferenceJSON
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return insights.ReferenceTables{}, fmt.Errorf("invalid reference document: %w", err)
	}
	return f.Build(doc)
}

// Build validates a document and converts it.
func (f *ReferenceFactory) Build(doc ReferenceJSON) (insights.ReferenceTables, error) {
	if len(doc.Entities) == 0 {
		return insights.ReferenceTables{}, fmt.Errorf("reference: at least one entity is required")
	}

	seen := make(map[string]bool, len(doc.Entities))
	entities := make([]string, 0, len(doc.Entities))
	for i, e := range doc.Entities {
		name := strings.TrimSpace(e)
		if name == "" {
			return insights.ReferenceTables{}, fmt.Errorf("reference: entity %d is blank", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return insights.ReferenceTables{}, fmt.Errorf("reference: duplicate entity %q", name)
		}
		seen[key] = true
		entities = append(entities, name)
	}

	overrides := make(map[string]string, len(doc.Overrides))
	for k, v := range doc.Overrides {
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			return insights.ReferenceTables{}, fmt.Errorf("reference: override %q -> %q has a blank side", k, v)
		}
		if _, dup := overrides[key]; dup {
			return insights.ReferenceTables{}, fmt.Errorf("reference: override %q defined twice", key)
		}
		overrides[key] = val
	}

	threshold := doc.MatchThreshold
	if threshold == 0 {
		threshold = insights.DefaultMatchThreshold
	}
	if threshold <= 0 || threshold >= 100 {
		return insights.ReferenceTables{}, fmt.Errorf("reference: match_threshold %v out of range (0, 100)", doc.MatchThreshold)
	}

	return insights.ReferenceTables{
		MasterEntities: entities,
		Overrides:      overrides,
		MatchThreshold: threshold,
	}, nil
}
