package insights_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/scenarios"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLoader() *insights.Loader {
	return insights.NewLoader(newTestNormalizer(), nil)
}

// writeArchives writes archives into a fresh temp dir and returns it.
func writeArchives(t *testing.T, archives ...scenarios.Archive) string {
	t.Helper()
	dir := t.TempDir()
	for _, a := range archives {
		require.NoError(t, scenarios.WriteArchive(filepath.Join(dir, a.Name), a))
	}
	return dir
}

func writeScenario(t *testing.T, id string) string {
	t.Helper()
	s, ok := scenarios.Get(id)
	require.True(t, ok, "scenario %s", id)
	dir := t.TempDir()
	_, err := scenarios.Write(dir, s)
	require.NoError(t, err)
	return dir
}

func bioTable(rows ...[]string) scenarios.Table {
	tbl := scenarios.BiometricTable("bio.csv")
	tbl.Rows = rows
	return tbl
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestLoader_DistrictMerge(t *testing.T) {
	// GIVEN: Two archives, casing variants of Yadgir and the Bijapur override
	// WHEN: Loading the directory
	// THEN: 100 canonical records with merged names

	dir := writeScenario(t, "district-merge")

	batch, err := newTestLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, batch.Records, 100)
	assert.Equal(t, []string{"biometric_2025.zip", "enrolment_2025.zip"}, batch.Archives)
	assert.Equal(t, []string{
		"biometric_2025.zip/biometric_update.csv",
		"enrolment_2025.zip/enrolment.csv",
	}, batch.Files)

	entities := map[string]int{}
	for _, r := range batch.Records {
		entities[r.Entity]++
		assert.Equal(t, "Karnataka", r.State)
		assert.Equal(t, time.UTC, r.Date.Location())
	}
	assert.Equal(t, map[string]int{"Yadgir": 80, "Vijayapura": 20}, entities)

	first := batch.Records[0]
	assert.Equal(t, insights.CategoryBiometric, first.Category)
	assert.Equal(t, int64(10), first.Total)
	assert.Equal(t, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), first.Date)
}

func TestLoader_EmptyArchive_IsEmptyBatch(t *testing.T) {
	// GIVEN: An archive with no CSV entries
	// WHEN: Loading
	// THEN: A successful, empty batch

	dir := writeScenario(t, "empty-archive")

	batch, err := newTestLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.NotNil(t, batch.Records)
	assert.Empty(t, batch.Records)
	assert.Empty(t, batch.Files)
	assert.Equal(t, []string{"empty.zip"}, batch.Archives)
}

func TestLoader_BlankAndFloatCounts(t *testing.T) {
	dir := writeArchives(t, scenarios.Archive{
		Name: "a.zip",
		Tables: []scenarios.Table{bioTable(
			[]string{"01-01-2025", "Goa", "North Goa", "403001", "", "7"},
			[]string{"02-01-2025", "Goa", "North Goa", "403001", "10.0", " 2"},
		)},
	})

	batch, err := newTestLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, int64(7), batch.Records[0].Total)
	assert.Equal(t, int64(12), batch.Records[1].Total)
}

func TestLoader_HeaderWithBOM(t *testing.T) {
	tbl := bioTable([]string{"01-01-2025", "Goa", "north goa", "403001", "1", "1"})
	tbl.Header[0] = "\ufeff" + tbl.Header[0]
	dir := writeArchives(t, scenarios.Archive{Name: "bom.zip", Tables: []scenarios.Table{tbl}})

	batch, err := newTestLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "North Goa", batch.Records[0].Entity)
}

func TestLoader_IgnoresNonZipFilesAndSortsArchives(t *testing.T) {
	dir := writeArchives(t,
		scenarios.Archive{Name: "b.zip", Tables: []scenarios.Table{bioTable([]string{"01-02-2025", "Goa", "Surat", "1", "1", "1"})}},
		scenarios.Archive{Name: "a.ZIP", Tables: []scenarios.Table{bioTable([]string{"01-01-2025", "Goa", "Surat", "1", "1", "1"})}},
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.zip"), 0o755))

	archives, err := insights.DiscoverArchives(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.ZIP"), filepath.Join(dir, "b.zip")}, archives)
}

// =============================================================================
// NO DATA
// =============================================================================

func TestLoader_NoArchives_IsNoDataFound(t *testing.T) {
	tests := map[string]func(t *testing.T) string{
		"missing directory": func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") },
		"empty directory":   func(t *testing.T) string { return t.TempDir() },
		"only other files": func(t *testing.T) string {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("date\n"), 0o644))
			return dir
		},
	}
	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newTestLoader().Load(context.Background(), setup(t))
			assert.ErrorIs(t, err, insights.ErrNoDataFound)
			assert.True(t, insights.IsClientError(err))
		})
	}
}

// =============================================================================
// FAILURES
// =============================================================================

func TestLoader_UnknownSchema_IsSchemaMismatch(t *testing.T) {
	// GIVEN: A table with base columns but no subfield group
	// WHEN: Loading
	// THEN: SchemaMismatchError naming archive and entry

	dir := writeArchives(t, scenarios.Archive{
		Name: "odd.zip",
		Tables: []scenarios.Table{{
			Name:   "odd.csv",
			Header: []string{"date", "state", "district", "total"},
			Rows:   [][]string{{"01-01-2025", "Goa", "Surat", "5"}},
		}},
	})

	_, err := newTestLoader().Load(context.Background(), dir)

	var sm *insights.SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "odd.zip/odd.csv", sm.File)
	assert.Contains(t, sm.Columns, "total")
	assert.False(t, errors.Is(err, insights.ErrIngestion), "schema errors are not ingestion errors")
}

func TestLoader_MissingBaseColumn_IsSchemaMismatch(t *testing.T) {
	dir := writeArchives(t, scenarios.Archive{
		Name: "nostate.zip",
		Tables: []scenarios.Table{{
			Name:   "t.csv",
			Header: []string{"date", "district", "bio_age_5_17", "bio_age_17_"},
			Rows:   [][]string{{"01-01-2025", "Surat", "1", "1"}},
		}},
	})

	_, err := newTestLoader().Load(context.Background(), dir)

	var sm *insights.SchemaMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, []string{"state"}, sm.Missing)
}

func TestLoader_BadCells_AreIngestionErrors(t *testing.T) {
	tests := map[string][]string{
		"bad date":       {"31-31-2025", "Goa", "Surat", "1", "1", "1"},
		"negative count": {"01-01-2025", "Goa", "Surat", "1", "-1", "1"},
		"text count":     {"01-01-2025", "Goa", "Surat", "1", "many", "1"},
		"fraction":       {"01-01-2025", "Goa", "Surat", "1", "1.5", "1"},
		"tiny fraction":  {"01-01-2025", "Goa", "Surat", "1", "1e-400", "1"},
		"negative float": {"01-01-2025", "Goa", "Surat", "1", "-1e30", "1"},
	}
	for name, row := range tests {
		t.Run(name, func(t *testing.T) {
			dir := writeArchives(t, scenarios.Archive{Name: "bad.zip", Tables: []scenarios.Table{bioTable(row)}})

			_, err := newTestLoader().Load(context.Background(), dir)

			var ie *insights.IngestionError
			require.ErrorAs(t, err, &ie)
			assert.ErrorIs(t, err, insights.ErrIngestion)
			assert.Equal(t, "bad.zip", ie.Archive)
			assert.Equal(t, "bio.csv", ie.File)
			assert.Equal(t, 2, ie.Line)
			assert.Contains(t, err.Error(), "bad.zip/bio.csv:2")
		})
	}
}

func TestLoader_CountOverflow_IsIngestionError(t *testing.T) {
	// GIVEN: Counts whose row or batch sum exceeds int64, or a single cell
	// past int64 range
	// WHEN: Loading
	// THEN: An IngestionError wrapping ErrCountOverflow, never a negative total

	const big = "5000000000000000000"
	tests := map[string][][]string{
		"row total":      {{"01-01-2025", "Goa", "Surat", "1", big, big}},
		"float cell":     {{"01-01-2025", "Goa", "Surat", "1", "1e30", "0"}},
		"integer cell":   {{"01-01-2025", "Goa", "Surat", "1", "99999999999999999999", "0"}},
		"infinite float": {{"01-01-2025", "Goa", "Surat", "1", "1e400", "0"}},
		"batch total": {
			{"01-01-2025", "Goa", "Surat", "1", big, "0"},
			{"02-01-2025", "Goa", "Surat", "1", big, "0"},
		},
	}
	for name, rows := range tests {
		t.Run(name, func(t *testing.T) {
			dir := writeArchives(t, scenarios.Archive{Name: "big.zip", Tables: []scenarios.Table{bioTable(rows...)}})

			batch, err := newTestLoader().Load(context.Background(), dir)

			assert.Nil(t, batch)
			var ie *insights.IngestionError
			require.ErrorAs(t, err, &ie)
			assert.ErrorIs(t, err, insights.ErrCountOverflow)
			assert.Equal(t, "bio.csv", ie.File)
			assert.Equal(t, len(rows)+1, ie.Line)
		})
	}
}

func TestLoader_LargestCount_Loads(t *testing.T) {
	dir := writeArchives(t, scenarios.Archive{Name: "a.zip", Tables: []scenarios.Table{bioTable(
		[]string{"01-01-2025", "Goa", "Surat", "1", "9223372036854775806", "1"},
	)}})

	batch, err := newTestLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, int64(math.MaxInt64), batch.Records[0].Total)
}

func TestLoader_EmptyTable_IsIngestionError(t *testing.T) {
	dir := writeArchives(t, scenarios.Archive{
		Name:   "e.zip",
		Extras: map[string]string{"empty.csv": ""},
	})

	_, err := newTestLoader().Load(context.Background(), dir)
	assert.ErrorIs(t, err, insights.ErrIngestion)
}

func TestLoader_CorruptArchive_IsIngestionError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.zip"), []byte("not a zip"), 0o644))

	_, err := newTestLoader().Load(context.Background(), dir)

	var ie *insights.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "broken.zip", ie.Archive)
}

func TestLoader_CanceledContext(t *testing.T) {
	dir := writeScenario(t, "district-merge")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLoader().Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// DATE PARSING
// =============================================================================

func TestParseDate_DayFirst(t *testing.T) {
	april3 := time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"03-04-2025",
		"3/4/2025",
		"03.04.2025",
		"03-04-25",
		"3-Apr-2025",
		"3 Apr 2025",
		"2025-04-03",
		"2025/4/3",
		"03-04-2025 14:30:00",
		"2025-04-03T14:30:00Z",
		" 03/04/2025 ",
	} {
		got, err := insights.ParseDate(s)
		if assert.NoError(t, err, s) {
			assert.Equal(t, april3, got, s)
		}
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, s := range []string{"", "   ", "yesterday", "32-01-2025", "2025-13-01"} {
		_, err := insights.ParseDate(s)
		assert.Error(t, err, s)
	}
}
