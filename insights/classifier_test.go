package insights_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
)

func TestClassify_EachGroup(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    insights.Category
	}{
		{"biometric", []string{"date", "state", "district", "bio_age_5_17", "bio_age_17_"}, insights.CategoryBiometric},
		{"demographic", []string{"date", "state", "district", "demo_age_5_17", "demo_age_17_"}, insights.CategoryDemographic},
		{"enrolment", []string{"date", "state", "district", "age_0_5", "age_5_17", "age_18_greater"}, insights.CategoryEnrolment},
		{"case and padding", []string{"Date", " BIO_AGE_5_17", "Bio_Age_17_ "}, insights.CategoryBiometric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, err := insights.Classify(tt.columns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cls.Category)
			assert.Equal(t, insights.FieldsFor(tt.want), cls.Fields)
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// GIVEN: A table carrying both biometric and enrolment groups
	// WHEN: Classifying
	// THEN: Biometric wins (biometric, demographic, enrolment)

	cls, err := insights.Classify([]string{
		"age_0_5", "age_5_17", "age_18_greater",
		"demo_age_5_17", "demo_age_17_",
		"bio_age_5_17", "bio_age_17_",
	})
	require.NoError(t, err)
	assert.Equal(t, insights.CategoryBiometric, cls.Category)

	cls, err = insights.Classify([]string{"age_0_5", "age_5_17", "age_18_greater", "demo_age_5_17", "demo_age_17_"})
	require.NoError(t, err)
	assert.Equal(t, insights.CategoryDemographic, cls.Category)
}

func TestClassify_PartialGroup_IsSchemaMismatch(t *testing.T) {
	// GIVEN: Only one of the two biometric columns
	// WHEN: Classifying
	// THEN: SchemaMismatchError listing the seen columns

	_, err := insights.Classify([]string{"district", "bio_age_5_17", "date"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, insights.ErrSchemaMismatch))
	var sm *insights.SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, []string{"bio_age_5_17", "date", "district"}, sm.Columns)
	assert.True(t, insights.IsClientError(err))
	assert.False(t, insights.IsRetryable(err))
}

func TestClassification_Total_OnlySumsOwnFields(t *testing.T) {
	// GIVEN: A row with biometric and enrolment values
	// WHEN: Totalling a biometric classification
	// THEN: Only biometric subfields count

	cls, err := insights.Classify([]string{"bio_age_5_17", "bio_age_17_"})
	require.NoError(t, err)

	total, err := cls.Total(map[string]int64{
		"bio_age_5_17":   4,
		"bio_age_17_":    6,
		"age_0_5":        100,
		"age_18_greater": 100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}

func TestClassification_Total_Overflow(t *testing.T) {
	// GIVEN: Two subfields whose sum exceeds int64
	// WHEN: Totalling
	// THEN: ErrCountOverflow, never a negative total

	cls, err := insights.Classify(insights.BiometricFields)
	require.NoError(t, err)

	total, err := cls.Total(map[string]int64{
		"bio_age_5_17": 5_000_000_000_000_000_000,
		"bio_age_17_":  5_000_000_000_000_000_000,
	})
	assert.ErrorIs(t, err, insights.ErrCountOverflow)
	assert.Zero(t, total)

	total, err = cls.Total(map[string]int64{"bio_age_5_17": math.MaxInt64})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), total)
}

func TestClassify_FieldsAreCopies(t *testing.T) {
	cls, err := insights.Classify(insights.EnrolmentFields)
	require.NoError(t, err)

	cls.Fields[0] = "mutated"
	assert.Equal(t, "age_0_5", insights.FieldsFor(insights.CategoryEnrolment)[0])
	assert.Nil(t, insights.FieldsFor(insights.Category("Other")))
}

func TestCategory_Helpers(t *testing.T) {
	assert.Equal(t, []insights.Category{
		insights.CategoryEnrolment, insights.CategoryBiometric, insights.CategoryDemographic,
	}, insights.Categories())
	assert.True(t, insights.CategoryBiometric.IsUpdate())
	assert.True(t, insights.CategoryDemographic.IsUpdate())
	assert.False(t, insights.CategoryEnrolment.IsUpdate())
	assert.False(t, insights.Category("Other").Valid())
}
