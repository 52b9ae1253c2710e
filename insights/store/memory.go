// Package store provides SnapshotStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/insights-engine/insights"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	snap  *insights.Snapshot
	run   *insights.Run
	saves int
}

func NewMemory() *Memory {
	return &Memory{}
}

// Save stores a deep copy of snap and run under the write lock.
func (m *Memory) Save(_ context.Context, snap insights.Snapshot, run insights.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, run = snap.Clone(), run.Clone()
	m.snap = &snap
	m.run = &run
	m.saves++
	return nil
}

// Load returns a deep copy of the held snapshot, or insights.ErrNotTriggered.
// Callers may modify the result freely.
func (m *Memory) Load(_ context.Context) (*insights.Snapshot, *insights.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil, nil, insights.ErrNotTriggered
	}
	snap, run := m.snap.Clone(), m.run.Clone()
	return &snap, &run, nil
}

// Saves reports how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
