package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mobtransit.ai/internal/persistence/indexdb"
	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/sim/catalogs"
	"mobtransit.ai/internal/sim/tuning"
	"mobtransit.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TransitLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecentEvents(ctx context.Context, f indexdb.EventFilter) ([]world.TransitLogEntry, error)
	Stats() indexdb.Stats
}

func indexPath(worldDir string) string {
	return filepath.Join(worldDir, "index", "world.sqlite")
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("MT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(worldDir))
	default:
		return nil, fmt.Errorf("unsupported MT_INDEX_BACKEND: %s", backend)
	}
}
