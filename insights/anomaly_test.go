package insights_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
)

func agg(entity string, c insights.Category, total int64) insights.EntityTotal {
	return insights.EntityTotal{Entity: entity, Category: c, Total: total}
}

// tenQuiet returns ten aggregates of 100 each.
func tenQuiet() []insights.EntityTotal {
	var aggs []insights.EntityTotal
	for i := 0; i < 10; i++ {
		aggs = append(aggs, agg(fmt.Sprintf("D%02d", i), insights.CategoryEnrolment, 100))
	}
	return aggs
}

func TestDetect_FlagsOutlier(t *testing.T) {
	// GIVEN: Ten quiet aggregates and one spike
	// WHEN: Detecting
	// THEN: Only the spike is flagged, with the advisory message

	aggs := append(tenQuiet(), agg("Surat", insights.CategoryBiometric, 5000))

	det := insights.Detect(aggs, insights.DetectOptions{})

	require.Len(t, det.Flags, 1)
	assert.Equal(t, insights.AnomalyFlag{
		Entity:   "Surat",
		Category: insights.CategoryBiometric,
		Total:    5000,
		Message:  insights.AdvisoryMessage,
	}, det.Flags[0])
	assert.InDelta(t, 545.45, det.Mean, 0.01)
	assert.Greater(t, det.Threshold, det.Mean)
	assert.Less(t, det.Threshold, 5000.0)
}

func TestDetect_ZeroVariance_NoFlags(t *testing.T) {
	tests := map[string][]insights.EntityTotal{
		"empty":     nil,
		"single":    {agg("A", insights.CategoryBiometric, 800)},
		"all equal": tenQuiet(),
	}
	for name, aggs := range tests {
		t.Run(name, func(t *testing.T) {
			det := insights.Detect(aggs, insights.DetectOptions{})
			assert.NotNil(t, det.Flags)
			assert.Empty(t, det.Flags)
			assert.Equal(t, 0.0, det.StdDev)
		})
	}
}

func TestDetect_UsesPopulationStdDev(t *testing.T) {
	// GIVEN: Totals 800 and 100 (mean 450, population stddev 350)
	// WHEN: Detecting
	// THEN: Threshold is 450 + 2*350 = 1150 and nothing is flagged

	det := insights.Detect([]insights.EntityTotal{
		agg("Yadgir", insights.CategoryBiometric, 800),
		agg("Vijayapura", insights.CategoryEnrolment, 100),
	}, insights.DetectOptions{})

	assert.Equal(t, 450.0, det.Mean)
	assert.Equal(t, 350.0, det.StdDev)
	assert.Equal(t, 1150.0, det.Threshold)
	assert.Empty(t, det.Flags)
}

func TestDetect_TruncatesToLimitAfterFlagging(t *testing.T) {
	// GIVEN: Many small aggregates and four spikes with a low sigma
	// WHEN: Detecting with the default limit
	// THEN: The three largest spikes are returned in descending order

	var aggs []insights.EntityTotal
	for i := 0; i < 40; i++ {
		aggs = append(aggs, agg(fmt.Sprintf("Q%02d", i), insights.CategoryEnrolment, 10))
	}
	aggs = append(aggs,
		agg("S1", insights.CategoryBiometric, 1000),
		agg("S2", insights.CategoryBiometric, 3000),
		agg("S3", insights.CategoryBiometric, 2000),
		agg("S4", insights.CategoryBiometric, 1500),
	)

	det := insights.Detect(aggs, insights.DetectOptions{Sigma: 1})

	require.Len(t, det.Flags, insights.DefaultFlagLimit)
	assert.Equal(t, "S2", det.Flags[0].Entity)
	assert.Equal(t, "S3", det.Flags[1].Entity)
	assert.Equal(t, "S4", det.Flags[2].Entity)

	det = insights.Detect(aggs, insights.DetectOptions{Sigma: 1, Limit: 10})
	assert.Len(t, det.Flags, 4)
}

func TestDetect_TiesOrderedByEntityThenCategory(t *testing.T) {
	var aggs []insights.EntityTotal
	for i := 0; i < 30; i++ {
		aggs = append(aggs, agg(fmt.Sprintf("Q%02d", i), insights.CategoryEnrolment, 1))
	}
	aggs = append(aggs,
		agg("Beta", insights.CategoryDemographic, 900),
		agg("Beta", insights.CategoryBiometric, 900),
		agg("Alpha", insights.CategoryDemographic, 900),
	)

	det := insights.Detect(aggs, insights.DetectOptions{Sigma: 1, Limit: 5})

	require.Len(t, det.Flags, 3)
	assert.Equal(t, "Alpha", det.Flags[0].Entity)
	assert.Equal(t, insights.CategoryBiometric, det.Flags[1].Category)
	assert.Equal(t, insights.CategoryDemographic, det.Flags[2].Category)
}

func TestDetect_StrictlyAboveThreshold(t *testing.T) {
	// GIVEN: Totals 0 and 2 (mean 1, stddev 1) and sigma 1
	// WHEN: Detecting
	// THEN: 2 equals the threshold and is not flagged

	det := insights.Detect([]insights.EntityTotal{
		agg("A", insights.CategoryBiometric, 0),
		agg("B", insights.CategoryBiometric, 2),
	}, insights.DetectOptions{Sigma: 1})

	assert.Equal(t, 2.0, det.Threshold)
	assert.Empty(t, det.Flags)
}
