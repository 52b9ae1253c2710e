package insights

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// EXPORT - Aggregates to Snapshot
// =============================================================================

// SaturationScore is the fixed saturation metric reported with every
// snapshot.
var SaturationScore = decimal.RequireFromString("94.2")

// BuildSnapshot assembles the exported result. It is a pure function: the
// same inputs always produce an equal snapshot, and slices are copied so the
// snapshot does not alias its inputs.
func BuildSnapshot(periods []PeriodTotals, flags []AnomalyFlag, recordCount int, summary Summary) Snapshot {
	snap := Snapshot{
		Trends:          make([]TrendPoint, 0, len(periods)),
		Anomalies:       make([]AnomalyEntry, 0, len(flags)),
		TotalRecords:    recordCount,
		SaturationScore: SaturationScore,
		Summary:         summary,
	}

	for _, p := range periods {
		totals := zeroTotals()
		for c, v := range p.Totals {
			totals[c] = v
		}
		snap.Trends = append(snap.Trends, TrendPoint{
			Period: p.Period.String(),
			Label:  p.Period.Label(),
			Totals: totals,
		})
	}

	for _, f := range flags {
		snap.Anomalies = append(snap.Anomalies, AnomalyEntry{
			Entity:   f.Entity,
			Category: f.Category,
			Total:    f.Total,
			Message:  f.Message,
		})
	}
	return snap
}

// Summarize computes the summary block from the run's intermediate results.
func Summarize(records []CanonicalRecord, aggs []EntityTotal, det Detection) Summary {
	totals := CategoryTotals(records)
	enrol := totals[CategoryEnrolment]
	updates := totals[CategoryBiometric] + totals[CategoryDemographic]

	ratio := decimal.Zero
	if enrol > 0 {
		ratio = decimal.NewFromInt(updates).DivRound(decimal.NewFromInt(enrol), 2)
	}

	return Summary{
		ActiveEntities:         DistinctEntities(records),
		EntityAggregates:       len(aggs),
		EnrolmentTotal:         enrol,
		UpdateTotal:            updates,
		UpdateToEnrolmentRatio: ratio,
		AnomalyThreshold:       decimal.NewFromFloat(det.Threshold).Round(2),
	}
}
