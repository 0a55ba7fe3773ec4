package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cyberfarm.ai/internal/persistence/indexdb"
	"cyberfarm.ai/internal/session"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	session.RunIndex
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
}

// runQuerier is implemented by backends that can answer /api/runs locally.
type runQuerier interface {
	RecentRuns(ctx context.Context, limit int) ([]session.RunRecord, error)
	BestROI(ctx context.Context) (float64, error)
}

func openRuntimeIndex(dataDir, serverID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CF_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "runs.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("CF_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("CF_INDEX_BACKEND=d1 but CF_INDEX_D1_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("CF_INDEX_D1_TOKEN")),
			ServerID:      serverID,
			BatchSize:     envInt("CF_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("CF_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported CF_INDEX_BACKEND: %s", backend)
	}
}
