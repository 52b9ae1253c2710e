// Package file stores the current snapshot as a JSON document on disk.
//
// The document is written to a temp file in the same directory, synced, and
// renamed over the previous one, so readers of the path always get a
// complete document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/warp/insights-engine/insights"
)

// document is the on-disk layout. The snapshot is kept under its own key so
// the file stays readable by tools expecting the bare snapshot fields.
type document struct {
	Run      insights.Run      `json:"run"`
	Snapshot insights.Snapshot `json:"snapshot"`
}

// Store implements insights.SnapshotStore on a single JSON file.
type Store struct {
	path string
	mu   sync.RWMutex
}

// New returns a store writing to path. The parent directory is created on
// first save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Save atomically replaces the document.
func (s *Store) Save(_ context.Context, snap insights.Snapshot, run insights.Run) error {
	data, err := json.MarshalIndent(document{Run: run, Snapshot: snap}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// atomically move into place
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the document or returns insights.ErrNotTriggered.
func (s *Store) Load(_ context.Context) (*insights.Snapshot, *insights.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, insights.ErrNotTriggered
	}
	if err != nil {
		return nil, nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot file %s: %w", s.path, err)
	}
	return &doc.Snapshot, &doc.Run, nil
}
