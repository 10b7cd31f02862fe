package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "websum/pkg/logx"
)

// Store persists job history.
type Store interface {
	AppendJob(ctx context.Context, r JobRecord) error
	// RecentJobs returns up to limit records of chatID, newest first.
	RecentJobs(ctx context.Context, chatID int64, limit int) ([]JobRecord, error)
	// PruneJobs deletes records finished before the cutoff and reports how many.
	PruneJobs(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
