// Package store selects a snapshot store implementation from configuration.
package store

import (
	"fmt"
	"io"

	"github.com/warp/insights-engine/config"
	"github.com/warp/insights-engine/insights"
	memstore "github.com/warp/insights-engine/insights/store"
	"github.com/warp/insights-engine/store/file"
	"github.com/warp/insights-engine/store/sqlite"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Open returns the configured store and a closer for its resources.
func Open(cfg config.StoreConfig) (insights.SnapshotStore, io.Closer, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return memstore.NewMemory(), nopCloser{}, nil
	case DriverSQLite:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case DriverFile:
		return file.New(cfg.Path), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
