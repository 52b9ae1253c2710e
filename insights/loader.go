/*
loader.go - Archive ingestion

PURPOSE:
  Reads every zip archive directly under a source directory, parses each CSV
  table inside, and turns rows into CanonicalRecords using the Normalizer
  and Classifier.

INPUT LAYOUT:
  <dir>/*.zip                 (non-recursive, sorted by name)
    <any path>/*.csv          (header row required)
      date, district, state   (required)
      + one subfield group    (see classifier.go)

FAILURE SEMANTICS:
  All-or-nothing. The first unreadable archive, unparsable table, bad date
  or bad count aborts the load with an error naming the file. No partial
  batch is ever returned alongside an error.

  No archives at all       -> ErrNoDataFound
  Archives without tables  -> empty Batch, nil error

RESOURCES:
  Archive and entry handles are closed on every exit path.

SEE ALSO:
  - classifier.go: Subfield groups
  - normalizer.go: District names
*/
package insights

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Loader ingests archive directories.
type Loader struct {
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewLoader creates a loader. A nil logger discards log output.
func NewLoader(normalizer *Normalizer, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		normalizer: normalizer,
		logger:     logger.With(slog.String("component", "loader")),
	}
}

// Load reads every archive under dir into a single batch.
func (l *Loader) Load(ctx context.Context, dir string) (*Batch, error) {
	archives, err := DiscoverArchives(dir)
	if err != nil {
		return nil, err
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDataFound, dir)
	}

	batch := &Batch{Records: []CanonicalRecord{}}
	state := &loadState{names: make(map[string]string)}

	for _, archivePath := range archives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.loadArchive(ctx, archivePath, batch, state); err != nil {
			return nil, err
		}
		batch.Archives = append(batch.Archives, filepath.Base(archivePath))
	}

	l.logger.InfoContext(ctx, "Loaded source directory",
		slog.String("dir", dir),
		slog.Int("archives", len(batch.Archives)),
		slog.Int("files", len(batch.Files)),
		slog.Int("records", len(batch.Records)))
	return batch, nil
}

// DiscoverArchives lists the zip files directly under dir, sorted by name.
// A missing directory counts as "no data".
func DiscoverArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: directory %s does not exist", ErrNoDataFound, dir)
		}
		return nil, &IngestionError{Archive: dir, Err: err}
	}

	var archives []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			archives = append(archives, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(archives)
	return archives, nil
}

// loadState is shared by every table of one load.
type loadState struct {
	names map[string]string // raw -> canonical district names
	total int64             // sum of every record total so far
}

func (l *Loader) loadArchive(ctx context.Context, archivePath string, batch *Batch, state *loadState) error {
	archiveName := filepath.Base(archivePath)
	ctx, span := tracer.Start(ctx, "insights.load_archive")
	span.SetAttributes(attribute.String("archive", archiveName))
	defer span.End()

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &IngestionError{Archive: archiveName, Err: err}
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".csv") {
			continue
		}

		records, err := l.readTable(f, state)
		if err != nil {
			var sm *SchemaMismatchError
			if errors.As(err, &sm) {
				sm.File = archiveName + "/" + f.Name
				return sm
			}
			var ie *IngestionError
			if errors.As(err, &ie) {
				ie.Archive = archiveName
				ie.File = f.Name
				return ie
			}
			return &IngestionError{Archive: archiveName, File: f.Name, Err: err}
		}

		batch.Records = append(batch.Records, records...)
		batch.Files = append(batch.Files, archiveName+"/"+f.Name)
		l.logger.DebugContext(ctx, "Read table",
			slog.String("archive", archiveName),
			slog.String("file", f.Name),
			slog.Int("rows", len(records)))
	}
	return nil
}

// readTable parses one CSV entry. The grand total across the load must fit
// in an int64, so no aggregate over the batch can overflow.
func (l *Loader) readTable(f *zip.File, state *loadState) ([]CanonicalRecord, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty table: missing header row")
		}
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[fold(col)] = i
	}

	var missing []string
	for _, col := range []string{ColumnDate, ColumnDistrict, ColumnState} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{File: f.Name, Missing: missing}
	}

	cls, err := Classify(header)
	if err != nil {
		return nil, err
	}

	var records []CanonicalRecord
	values := make(map[string]int64, len(cls.Fields))
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)

		date, err := ParseDate(row[index[ColumnDate]])
		if err != nil {
			return nil, &IngestionError{Line: line, Err: err}
		}
		for _, field := range cls.Fields {
			n, err := parseCount(row[index[field]])
			if err != nil {
				return nil, &IngestionError{Line: line, Err: fmt.Errorf("column %s: %w", field, err)}
			}
			values[field] = n
		}

		total, err := cls.Total(values)
		if err != nil {
			return nil, &IngestionError{Line: line, Err: err}
		}
		grand, ok := addCount(state.total, total)
		if !ok {
			return nil, &IngestionError{Line: line, Err: fmt.Errorf("%w: batch total", ErrCountOverflow)}
		}
		state.total = grand

		raw := row[index[ColumnDistrict]]
		entity, ok := state.names[raw]
		if !ok {
			entity = l.normalizer.Normalize(raw)
			state.names[raw] = entity
		}

		records = append(records, CanonicalRecord{
			Date:     date,
			Entity:   entity,
			State:    strings.TrimSpace(row[index[ColumnState]]),
			Category: cls.Category,
			Total:    total,
		})
	}
	return records, nil
}

// dateLayouts are tried in order. Day-first layouts come before the
// year-first ISO forms; a leading four-digit year can only match the latter.
var dateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"2-1-06",
	"2/1/06",
	"2-Jan-2006",
	"2 Jan 2006",
	"2006-1-2",
	"2006/1/2",
}

var timeSuffixes = []string{"", " 15:04:05", " 15:04"}

// ParseDate parses a calendar date with the day-first convention:
// "03/04/2025" is 3 April 2025. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return truncateDay(t), nil
	}
	for _, layout := range dateLayouts {
		for _, suffix := range timeSuffixes {
			if t, err := time.Parse(layout+suffix, s); err == nil {
				return truncateDay(t), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseCount reads a non-negative integer cell. Blank cells count as zero;
// integral floats such as "10.0" are accepted.
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		// On ErrRange ParseFloat returns ±Inf for huge magnitudes and 0 for
		// tiny ones.
		outOfRange := errors.Is(ferr, strconv.ErrRange)
		switch {
		case ferr != nil && !outOfRange,
			outOfRange && f == 0,
			!outOfRange && math.IsInf(f, 0),
			math.IsNaN(f),
			f != math.Trunc(f):
			return 0, fmt.Errorf("invalid count %q", s)
		}
		switch {
		case f < 0:
			return 0, fmt.Errorf("negative count %q", s)
		case f >= math.MaxInt64:
			return 0, fmt.Errorf("%w: %q", ErrCountOverflow, s)
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %q", s)
	}
	return n, nil
}
