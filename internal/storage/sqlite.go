package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "websum/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendJob(ctx context.Context, r JobRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, chat_id, kind, status, url, repo, path, commit_url, err, queued_at, finished_at, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, err=excluded.err,
		   commit_url=excluded.commit_url, finished_at=excluded.finished_at, took_ms=excluded.took_ms`,
		r.ID, r.ChatID, r.Kind, r.Status, nullStr(r.URL), nullStr(r.Repo), nullStr(r.Path),
		nullStr(r.CommitURL), nullStr(r.Error), r.QueuedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.TookMS,
	)
	return err
}

func (s *sqliteStore) RecentJobs(ctx context.Context, chatID int64, limit int) ([]JobRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, kind, status, url, repo, path, commit_url, err, queued_at, finished_at, took_ms
		 FROM jobs WHERE chat_id = ? ORDER BY finished_at DESC, rowid DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]JobRecord, 0, limit)
	for rows.Next() {
		var (
			r                                  JobRecord
			url, repo, path, commitURL, errStr sql.NullString
			queuedMS, finishedMS               int64
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Kind, &r.Status, &url, &repo, &path, &commitURL, &errStr,
			&queuedMS, &finishedMS, &r.TookMS); err != nil {
			return nil, err
		}
		r.URL, r.Repo, r.Path = url.String, repo.String, path.String
		r.CommitURL, r.Error = commitURL.String, errStr.String
		r.QueuedAt = time.UnixMilli(queuedMS)
		r.FinishedAt = time.UnixMilli(finishedMS)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneJobs(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE finished_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
