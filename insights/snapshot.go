package insights

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Complete result of the last successful run
// =============================================================================

// Snapshot is what query callers receive. It only depends on the input
// records, so identical inputs marshal to identical bytes. Run metadata
// (ids, timestamps) lives in Run instead.
type Snapshot struct {
	Trends          []TrendPoint    `json:"trends"`
	Anomalies       []AnomalyEntry  `json:"anomalies"`
	TotalRecords    int             `json:"total_records"`
	SaturationScore decimal.Decimal `json:"saturation_score"`
	Summary         Summary         `json:"summary"`
}

// Clone returns a deep copy sharing no slices or maps with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Trends = slices.Clone(s.Trends)
	for i := range out.Trends {
		out.Trends[i].Totals = maps.Clone(s.Trends[i].Totals)
	}
	out.Anomalies = slices.Clone(s.Anomalies)
	return out
}

// TrendPoint is one month of the trend table.
type TrendPoint struct {
	Period string             `json:"period"`
	Label  string             `json:"label"`
	Totals map[Category]int64 `json:"totals"`
}

// AnomalyEntry is the exported form of an AnomalyFlag.
type AnomalyEntry struct {
	Entity   string   `json:"entity"`
	Category Category `json:"category"`
	Total    int64    `json:"total"`
	Message  string   `json:"message"`
}

// Summary carries headline figures for dashboards.
type Summary struct {
	ActiveEntities         int             `json:"active_entities"`
	EntityAggregates       int             `json:"entity_aggregates"`
	EnrolmentTotal         int64           `json:"enrolment_total"`
	UpdateTotal            int64           `json:"update_total"`
	UpdateToEnrolmentRatio decimal.Decimal `json:"update_to_enrolment_ratio"`
	AnomalyThreshold       decimal.Decimal `json:"anomaly_threshold"`
}

// =============================================================================
// RUN - Metadata about a completed pipeline run
// =============================================================================

// Run describes the pipeline run that produced the current snapshot.
type Run struct {
	ID         uuid.UUID `json:"id"`
	SourceDir  string    `json:"source_dir"`
	Archives   []string  `json:"archives"`
	Files      int       `json:"files"`
	Records    int       `json:"records"`
	Anomalies  int       `json:"anomalies"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Clone returns a copy with its own Archives slice.
func (r Run) Clone() Run {
	out := r
	out.Archives = slices.Clone(r.Archives)
	return out
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// =============================================================================
// SNAPSHOT STORE - Persistence for the single current snapshot
// =============================================================================

// SnapshotStore keeps exactly one snapshot. Save replaces the previous one
// atomically: a concurrent Load sees either the old or the new pair, never a
// mix. Load returns ErrNotTriggered when nothing was ever saved.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot, run Run) error
	Load(ctx context.Context) (*Snapshot, *Run, error)
}
