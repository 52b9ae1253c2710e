package insights

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// CLASSIFIER - Category inference from column presence
// =============================================================================

// Subfield columns per category. Order inside a group is the summation order.
var (
	BiometricFields   = []string{"bio_age_5_17", "bio_age_17_"}
	DemographicFields = []string{"demo_age_5_17", "demo_age_17_"}
	EnrolmentFields   = []string{"age_0_5", "age_5_17", "age_18_greater"}
)

// Base columns every table must carry.
const (
	ColumnDate     = "date"
	ColumnDistrict = "district"
	ColumnState    = "state"
)

type fieldGroup struct {
	category Category
	fields   []string
}

// Priority order: biometric, then demographic, then enrolment.
var fieldGroups = []fieldGroup{
	{CategoryBiometric, BiometricFields},
	{CategoryDemographic, DemographicFields},
	{CategoryEnrolment, EnrolmentFields},
}

// Classification is the tagged result of Classify: a category and the exact
// subfields that make up its total.
type Classification struct {
	Category Category
	Fields   []string
}

// Total sums the classification's subfields from values. Other columns in
// values are ignored, so a total never mixes categories. Values must be
// non-negative; a sum past math.MaxInt64 fails with ErrCountOverflow.
func (c Classification) Total(values map[string]int64) (int64, error) {
	var sum int64
	for _, f := range c.Fields {
		next, ok := addCount(sum, values[f])
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrCountOverflow, strings.Join(c.Fields, " + "))
		}
		sum = next
	}
	return sum, nil
}

// Classify picks the first subfield group whose columns are all present.
// Column names are compared trimmed and case-insensitively. When no group is
// complete it fails with a *SchemaMismatchError.
func Classify(columns []string) (Classification, error) {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[fold(c)] = true
	}

	for _, g := range fieldGroups {
		if hasAll(present, g.fields) {
			fields := make([]string, len(g.fields))
			copy(fields, g.fields)
			return Classification{Category: g.category, Fields: fields}, nil
		}
	}

	seen := make([]string, 0, len(present))
	for c := range present {
		seen = append(seen, c)
	}
	sort.Strings(seen)
	return Classification{}, &SchemaMismatchError{Columns: seen}
}

// FieldsFor returns the subfield columns of a category.
func FieldsFor(c Category) []string {
	for _, g := range fieldGroups {
		if g.category == c {
			out := make([]string, len(g.fields))
			copy(out, g.fields)
			return out
		}
	}
	return nil
}

func hasAll(present map[string]bool, fields []string) bool {
	for _, f := range fields {
		if !present[strings.ToLower(f)] {
			return false
		}
	}
	return true
}
