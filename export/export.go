// Package export renders a snapshot as downloadable CSV or XLSX reports.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/warp/insights-engine/insights"
	"github.com/xuri/excelize/v2"
)

// Sheet names used in the XLSX workbook.
const (
	SheetTrends    = "Trends"
	SheetAnomalies = "Anomalies"
	SheetSummary   = "Summary"
)

// TrendHeader is the header row of the trend table.
func TrendHeader() []string {
	header := []string{"period", "label"}
	for _, c := range insights.Categories() {
		header = append(header, string(c))
	}
	return header
}

// AnomalyHeader is the header row of the anomaly table.
var AnomalyHeader = []string{"entity", "category", "total", "message"}

// WriteCSV writes the trend table, a blank line, then the anomaly table.
func WriteCSV(w io.Writer, snap insights.Snapshot) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(TrendHeader()); err != nil {
		return fmt.Errorf("write trend header: %w", err)
	}
	for _, t := range snap.Trends {
		if err := cw.Write(trendRow(t)); err != nil {
			return fmt.Errorf("write trend %s: %w", t.Period, err)
		}
	}

	if err := cw.Write([]string{}); err != nil {
		return err
	}

	if err := cw.Write(AnomalyHeader); err != nil {
		return fmt.Errorf("write anomaly header: %w", err)
	}
	for _, a := range snap.Anomalies {
		row := []string{a.Entity, string(a.Category), strconv.FormatInt(a.Total, 10), a.Message}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write anomaly %s: %w", a.Entity, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func trendRow(t insights.TrendPoint) []string {
	row := []string{t.Period, t.Label}
	for _, c := range insights.Categories() {
		row = append(row, strconv.FormatInt(t.Totals[c], 10))
	}
	return row
}

// WriteXLSX writes a workbook with Trends, Anomalies and Summary sheets. run
// may be nil.
func WriteXLSX(w io.Writer, snap insights.Snapshot, run *insights.Run) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetTrends); err != nil {
		return err
	}
	for _, name := range []string{SheetAnomalies, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	// Trends
	if err := setRow(f, SheetTrends, 1, toCells(TrendHeader())); err != nil {
		return err
	}
	for i, t := range snap.Trends {
		cells := []interface{}{t.Period, t.Label}
		for _, c := range insights.Categories() {
			cells = append(cells, t.Totals[c])
		}
		if err := setRow(f, SheetTrends, i+2, cells); err != nil {
			return err
		}
	}

	// Anomalies
	if err := setRow(f, SheetAnomalies, 1, toCells(AnomalyHeader)); err != nil {
		return err
	}
	for i, a := range snap.Anomalies {
		if err := setRow(f, SheetAnomalies, i+2, []interface{}{a.Entity, string(a.Category), a.Total, a.Message}); err != nil {
			return err
		}
	}

	// Summary
	rows := [][]interface{}{
		{"metric", "value"},
		{"total_records", snap.TotalRecords},
		{"saturation_score", snap.SaturationScore.String()},
		{"active_entities", snap.Summary.ActiveEntities},
		{"entity_aggregates", snap.Summary.EntityAggregates},
		{"enrolment_total", snap.Summary.EnrolmentTotal},
		{"update_total", snap.Summary.UpdateTotal},
		{"update_to_enrolment_ratio", snap.Summary.UpdateToEnrolmentRatio.String()},
		{"anomaly_threshold", snap.Summary.AnomalyThreshold.String()},
	}
	if run != nil {
		rows = append(rows,
			[]interface{}{"run_id", run.ID.String()},
			[]interface{}{"finished_at", run.FinishedAt.UTC().Format("2006-01-02T15:04:05Z")},
		)
	}
	for i, r := range rows {
		if err := setRow(f, SheetSummary, i+1, r); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
