/*
Package sqlite provides a SQLite-backed insights.SnapshotStore.

PURPOSE:
  Persists the single current snapshot so queries survive a restart. The
  service never keeps more than one: persistence beyond the latest result
  is out of scope.

KEY TABLES:
  insights_snapshot: one row (slot = 1) holding the snapshot JSON, the run
                     JSON and a version counter bumped on every save

ATOMIC REPLACE:
  Save is a single UPSERT inside a transaction. A reader either sees the
  previous row or the new one; the snapshot and its run are always written
  together.

CONCURRENCY:
  Uses sync.RWMutex plus a single pooled connection. ":memory:" databases
  are per-connection in SQLite, so the pool must not grow.

WAL MODE:
  Opened with WAL for crash safety of file databases.

USAGE:
  store, err := sqlite.New("./data/insights.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - insights/snapshot.go: Interface definition
  - insights/store/memory.go: In-memory implementation for testing
  - store/file: JSON file implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/insights-engine/insights"
)

// Store implements insights.SnapshotStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS insights_snapshot (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		run_id TEXT NOT NULL,
		source_dir TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		run_json TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

// Save replaces the stored snapshot and run.
func (s *Store) Save(ctx context.Context, snap insights.Snapshot, run insights.Run) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO insights_snapshot (slot, run_id, source_dir, finished_at, run_json, snapshot_json, version)
		VALUES (1, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(slot) DO UPDATE SET
			run_id = excluded.run_id,
			source_dir = excluded.source_dir,
			finished_at = excluded.finished_at,
			run_json = excluded.run_json,
			snapshot_json = excluded.snapshot_json,
			version = insights_snapshot.version + 1
	`, run.ID.String(), run.SourceDir, run.FinishedAt.UTC().Format(time.RFC3339Nano), string(runJSON), string(snapJSON))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return tx.Commit()
}

// Load returns the stored snapshot or insights.ErrNotTriggered.
func (s *Store) Load(ctx context.Context) (*insights.Snapshot, *insights.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runJSON, snapJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_json, snapshot_json FROM insights_snapshot WHERE slot = 1`,
	).Scan(&runJSON, &snapJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, insights.ErrNotTriggered
	}
	if err != nil {
		return nil, nil, err
	}

	var snap insights.Snapshot
	if err := json.Unmarshal([]byte(snapJSON), &snap); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	var run insights.Run
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, nil, fmt.Errorf("decode run: %w", err)
	}
	return &snap, &run, nil
}

// Version returns how many times the snapshot has been replaced (0 when
// nothing was saved yet).
func (s *Store) Version(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM insights_snapshot WHERE slot = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

// Reset removes the stored snapshot.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM insights_snapshot`)
	return err
}
