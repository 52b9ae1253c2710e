/*
errors.go - Centralized error types for the insights pipeline

PURPOSE:
  All pipeline errors in one place. Callers branch with errors.Is on the
  sentinels; structured errors carry the file that caused the failure.

ERROR CATEGORIES:
  1. Schema errors    - a CSV lacks every recognized subfield group
  2. Ingestion errors - archive unreadable, CSV unparsable, bad date/number
  3. Run errors       - no archives found, a run already in flight

PROPAGATION:
  Loader and Classifier errors abort the whole run. The previous snapshot
  stays current; nothing from the failed run is published.

SEE ALSO:
  - loader.go: Produces IngestionError and SchemaMismatchError
  - pipeline.go: Produces ErrBusy, surfaces the rest
  - ../api/errors.go: HTTP status mapping
*/
package insights

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchemaMismatch is returned when a table has none of the recognized
	// category subfield groups, or lacks a required base column.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrIngestion is returned when an archive or table cannot be read.
	ErrIngestion = errors.New("ingestion failed")

	// ErrNoDataFound is returned when the source directory holds no archives.
	// A directory with archives but no rows is a valid, empty run instead.
	ErrNoDataFound = errors.New("no archives found")

	// ErrBusy is returned when a trigger arrives while another run is in flight.
	ErrBusy = errors.New("pipeline run already in progress")

	// ErrNotTriggered is returned by stores that hold no snapshot yet.
	ErrNotTriggered = errors.New("pipeline not yet triggered")

	// ErrCountOverflow is returned when a count cell, a row total or the
	// batch total does not fit in an int64. Loads wrap it in *IngestionError.
	ErrCountOverflow = errors.New("count overflow")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaMismatchError describes a table whose columns match no category.
type SchemaMismatchError struct {
	File    string
	Columns []string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	msg := "schema mismatch"
	if e.File != "" {
		msg += " in " + e.File
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing columns %s", msg, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: no recognized subfield group in columns [%s]", msg, strings.Join(e.Columns, ", "))
}

func (e *SchemaMismatchError) Unwrap() error {
	return ErrSchemaMismatch
}

// IngestionError names the archive (and entry, and line when known) that
// broke a load.
type IngestionError struct {
	Archive string
	File    string
	Line    int
	Err     error
}

func (e *IngestionError) Error() string {
	loc := e.Archive
	if e.File != "" {
		loc += "/" + e.File
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	return fmt.Sprintf("ingestion failed at %s: %v", loc, e.Err)
}

// Unwrap exposes both the sentinel and the cause, so errors.Is works for
// ErrIngestion and for whatever the cause wraps (e.g. ErrSchemaMismatch).
func (e *IngestionError) Unwrap() []error {
	return []error{ErrIngestion, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the same trigger might succeed later unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsClientError returns true if the failure is caused by the input data
// rather than by the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrIngestion) ||
		errors.Is(err, ErrNoDataFound)
}
