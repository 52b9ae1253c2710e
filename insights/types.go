/*
Package insights is the data-cleaning and aggregation engine behind the
enrolment insights service.

PURPOSE:
  Turns batches of zipped CSV extracts of enrolment/update transactions into
  a single Snapshot: monthly trends per category, statistical outliers per
  district and a few headline numbers. Everything here is independent of
  HTTP; the api package and the CLI are thin callers.

PIPELINE:
  archives -> Loader (Normalizer, Classifier) -> []CanonicalRecord
           -> AggregateByPeriod / AggregateByEntity
           -> Detect (mean + 2 sigma, top 3)
           -> BuildSnapshot
           -> SnapshotStore + atomic in-memory pointer

KEY CONCEPTS:
  Category:        New Enrolment, Biometric Update or Demographic Update
  CanonicalRecord: one CSV row after name normalization and classification
  Month:           calendar month bucket used for trends
  Snapshot:        complete result of the last successful run

SCALABILITY:
  The loader materializes every record of a run in memory before aggregating.
  That is fine for monthly district extracts; larger inputs would need a
  per-file streaming fold instead.

SEE ALSO:
  - pipeline.go: Trigger/Latest orchestration
  - errors.go: Error taxonomy
  - ../factory: Reference tables (master districts, overrides)
*/
package insights

import "time"

// =============================================================================
// CATEGORY - Mutually exclusive transaction classification
// =============================================================================

// Category classifies a transaction record. Exactly one per record.
type Category string

const (
	CategoryEnrolment   Category = "New Enrolment"
	CategoryBiometric   Category = "Biometric Update"
	CategoryDemographic Category = "Demographic Update"
)

// Categories returns every category in reporting order.
func Categories() []Category {
	return []Category{CategoryEnrolment, CategoryBiometric, CategoryDemographic}
}

// IsUpdate reports whether the category is one of the two update kinds.
func (c Category) IsUpdate() bool {
	return c == CategoryBiometric || c == CategoryDemographic
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryEnrolment, CategoryBiometric, CategoryDemographic:
		return true
	}
	return false
}

func (c Category) order() int {
	switch c {
	case CategoryEnrolment:
		return 0
	case CategoryBiometric:
		return 1
	case CategoryDemographic:
		return 2
	}
	return 3
}

// =============================================================================
// RECORDS
// =============================================================================

// CanonicalRecord is a normalized, classified source row.
//
// Invariants:
//   - Entity is never empty (the normalizer falls back to "Unknown")
//   - Total is the sum of the subfields of Category and nothing else
type CanonicalRecord struct {
	Date     time.Time
	Entity   string
	State    string
	Category Category
	Total    int64
}

// Batch is the unified record set produced by one load.
type Batch struct {
	Records []CanonicalRecord

	// Archives lists the archive file names that were read, in read order.
	Archives []string

	// Files lists "archive/entry" for every CSV that contributed rows.
	Files []string
}

// =============================================================================
// AGGREGATES
// =============================================================================

// EntityTotal is the summed total of one (entity, category) group.
type EntityTotal struct {
	Entity   string
	Category Category
	Total    int64
}

// PeriodTotals holds the per-category totals of one month. Every category is
// present, zero when the month had no such records.
type PeriodTotals struct {
	Period Month
	Totals map[Category]int64
}

// AnomalyFlag marks an (entity, category) aggregate above the threshold.
type AnomalyFlag struct {
	Entity   string
	Category Category
	Total    int64
	Message  string
}

// AdvisoryMessage is attached to every anomaly flag.
const AdvisoryMessage = "Action Required: Deploy audit team to verify localized update spike."
