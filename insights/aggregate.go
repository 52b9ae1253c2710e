package insights

import (
	"math"
	"sort"
)

// =============================================================================
// AGGREGATION - Time-bucketed and per-entity totals
// =============================================================================

// AggregateByPeriod sums totals by (calendar month, category). Months are
// returned in ascending order; every category appears in every month, zero
// when absent. The result does not depend on record order.
func AggregateByPeriod(records []CanonicalRecord) []PeriodTotals {
	buckets := make(map[Month]map[Category]int64)
	for _, r := range records {
		m := MonthOf(r.Date)
		totals, ok := buckets[m]
		if !ok {
			totals = zeroTotals()
			buckets[m] = totals
		}
		totals[r.Category] = saturatingAdd(totals[r.Category], r.Total)
	}

	out := make([]PeriodTotals, 0, len(buckets))
	for m, totals := range buckets {
		out = append(out, PeriodTotals{Period: m, Totals: totals})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Period.Before(out[j].Period)
	})
	return out
}

// AggregateByEntity sums totals by (entity, category). The slice is sorted by
// entity then category so output is reproducible; the anomaly detector
// imposes its own order.
func AggregateByEntity(records []CanonicalRecord) []EntityTotal {
	type key struct {
		entity   string
		category Category
	}
	sums := make(map[key]int64)
	for _, r := range records {
		k := key{r.Entity, r.Category}
		sums[k] = saturatingAdd(sums[k], r.Total)
	}

	out := make([]EntityTotal, 0, len(sums))
	for k, total := range sums {
		out = append(out, EntityTotal{Entity: k.entity, Category: k.category, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Category.order() < out[j].Category.order()
	})
	return out
}

// CategoryTotals sums totals per category over all records.
func CategoryTotals(records []CanonicalRecord) map[Category]int64 {
	totals := zeroTotals()
	for _, r := range records {
		totals[r.Category] = saturatingAdd(totals[r.Category], r.Total)
	}
	return totals
}

// DistinctEntities counts the canonical entity names in records.
func DistinctEntities(records []CanonicalRecord) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.Entity] = struct{}{}
	}
	return len(seen)
}

// addCount adds two non-negative counts. On overflow it returns
// math.MaxInt64 and false.
func addCount(a, b int64) (int64, bool) {
	if b > math.MaxInt64-a {
		return math.MaxInt64, false
	}
	return a + b, true
}

// saturatingAdd clamps at math.MaxInt64. Batches from the Loader never get
// there: it rejects any load whose grand total overflows.
func saturatingAdd(a, b int64) int64 {
	sum, _ := addCount(a, b)
	return sum
}

func zeroTotals() map[Category]int64 {
	totals := make(map[Category]int64, 3)
	for _, c := range Categories() {
		totals[c] = 0
	}
	return totals
}
