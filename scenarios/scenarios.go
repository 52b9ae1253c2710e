/*
Package scenarios writes demo source archives for testing and demonstrations.

PURPOSE:
  Provides pre-built archive sets that exercise specific pipeline behaviour:
  name merging, override resolution, anomaly flagging, empty archives.
  Each scenario is written as real zip files, so the loader reads them
  exactly like production extracts.

AVAILABLE SCENARIOS:
  district-merge:   "Yadgir"/"yadgir" biometric rows + "Bijapur" enrolments
  biometric-spike:  ten quiet districts and one biometric outlier
  empty-archive:    an archive that holds no CSV table

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "district-merge"}

ADDING NEW SCENARIOS:
  1. Add a builder returning Scenario
  2. Register it in the 'catalog' slice

NOTE:
  Loading a scenario removes existing *.zip files from the target directory
  first. Only use in development/demo environments.
*/
package scenarios

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/warp/insights-engine/insights"
)

// =============================================================================
// TYPES
// =============================================================================

// Scenario is a named set of archives.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Archives    []Archive
}

// Archive is one zip file.
type Archive struct {
	Name   string
	Tables []Table
	Extras map[string]string // non-CSV entries, name -> content
}

// Table is one CSV entry.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// archiveTime keeps generated zip headers stable across runs.
var archiveTime = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// CATALOG
// =============================================================================

var catalog = []func() Scenario{
	DistrictMerge,
	BiometricSpike,
	EmptyArchive,
}

// List returns every scenario in catalog order.
func List() []Scenario {
	out := make([]Scenario, 0, len(catalog))
	for _, build := range catalog {
		out = append(out, build())
	}
	return out
}

// Get returns the scenario with the given id.
func Get(id string) (Scenario, bool) {
	for _, build := range catalog {
		if s := build(); s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// DistrictMerge: 50 "Yadgir" and 30 "yadgir" biometric rows of 10 each, and
// 20 "Bijapur" enrolment rows of 5 each, split across two archives.
func DistrictMerge() Scenario {
	bio := BiometricTable("biometric_update.csv")
	bio.Rows = append(bio.Rows, Repeat(50, "05-03-2025", "Karnataka", "Yadgir", 4, 6)...)
	bio.Rows = append(bio.Rows, Repeat(30, "12-04-2025", "Karnataka", "yadgir", 3, 7)...)

	enrol := EnrolmentTable("enrolment.csv")
	enrol.Rows = append(enrol.Rows, Repeat(20, "15-03-2025", "Karnataka", "Bijapur", 1, 2, 2)...)

	return Scenario{
		ID:          "district-merge",
		Name:        "District Merge",
		Description: "Casing variants merge into Yadgir; Bijapur resolves to Vijayapura via override",
		Archives: []Archive{
			{Name: "biometric_2025.zip", Tables: []Table{bio}},
			{Name: "enrolment_2025.zip", Tables: []Table{enrol}},
		},
	}
}

// BiometricSpike: ten districts with 100 enrolments each and one district
// with 5000 biometric updates, plus a small demographic table.
func BiometricSpike() Scenario {
	enrol := EnrolmentTable("enrolment.csv")
	quiet := []string{"Vijayapura", "Yadgir", "Bengaluru Urban", "Madhepura", "North Goa",
		"South Goa", "Alappuzha", "Muzaffarnagar", "Pilibhit", "Hassan"}
	for _, d := range quiet {
		enrol.Rows = append(enrol.Rows, Repeat(10, "03-02-2025", "Various", d, 2, 3, 5)...)
	}

	bio := BiometricTable("biometric_update.csv")
	bio.Rows = append(bio.Rows, Repeat(100, "20-02-2025", "Gujarat", "surat", 20, 30)...)

	demo := DemographicTable("demographic_update.csv")
	demo.Rows = append(demo.Rows, Repeat(5, "21-02-2025", "Goa", "north goa", 1, 1)...)

	return Scenario{
		ID:          "biometric-spike",
		Name:        "Biometric Spike",
		Description: "Surat biometric updates far above every other district",
		Archives: []Archive{
			{Name: "february_2025.zip", Tables: []Table{enrol, bio, demo}},
		},
	}
}

// EmptyArchive: one archive without any CSV table.
func EmptyArchive() Scenario {
	return Scenario{
		ID:          "empty-archive",
		Name:        "Empty Archive",
		Description: "Archive without tables; the run succeeds with zero records",
		Archives: []Archive{
			{Name: "empty.zip", Extras: map[string]string{"README.txt": "no extracts this period\n"}},
		},
	}
}

// =============================================================================
// TABLE BUILDERS
// =============================================================================

var baseHeader = []string{insights.ColumnDate, insights.ColumnState, insights.ColumnDistrict, "pincode"}

func tableWith(name string, fields []string) Table {
	header := append(append([]string{}, baseHeader...), fields...)
	return Table{Name: name, Header: header}
}

// BiometricTable returns an empty biometric update table.
func BiometricTable(name string) Table { return tableWith(name, insights.BiometricFields) }

// DemographicTable returns an empty demographic update table.
func DemographicTable(name string) Table { return tableWith(name, insights.DemographicFields) }

// EnrolmentTable returns an empty new enrolment table.
func EnrolmentTable(name string) Table { return tableWith(name, insights.EnrolmentFields) }

// Repeat builds n identical rows matching the builders' header layout.
func Repeat(n int, date, state, district string, values ...int) [][]string {
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		row := []string{date, state, district, "000000"}
		for _, v := range values {
			row = append(row, strconv.Itoa(v))
		}
		rows = append(rows, row)
	}
	return rows
}

// =============================================================================
// WRITERS
// =============================================================================

// Write replaces the archives in dir with the scenario's and returns the
// written paths. Archives are staged in a temporary directory inside dir and
// renamed into place only once all of them are complete; on a staging
// failure the existing archives are left untouched.
func Write(dir string, s Scenario) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	staging, err := os.MkdirTemp(dir, ".scenario-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, a := range s.Archives {
		if err := WriteArchive(filepath.Join(staging, a.Name), a); err != nil {
			return nil, err
		}
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if err := os.Remove(p); err != nil {
			return nil, fmt.Errorf("remove %s: %w", p, err)
		}
	}

	paths := make([]string, 0, len(s.Archives))
	for _, a := range s.Archives {
		p := filepath.Join(dir, a.Name)
		if err := os.Rename(filepath.Join(staging, a.Name), p); err != nil {
			return nil, fmt.Errorf("place %s: %w", a.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// WriteArchive writes one zip file.
func WriteArchive(path string, a Archive) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	for _, t := range a.Tables {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: t.Name, Method: zip.Deflate, Modified: archiveTime})
		if err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Header); err != nil {
			return err
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return err
		}
	}
	for name, content := range a.Extras {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: archiveTime})
		if err != nil {
			return err
		}
		if _, err := strings.NewReader(content).WriteTo(w); err != nil {
			return err
		}
	}
	return zw.Close()
}
