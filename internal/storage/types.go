package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled and Open returns (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Job statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// JobRecord is the outcome of one finished job.
// Keep it compact and schema-stable.
type JobRecord struct {
	ID         string    `json:"id"`
	ChatID     int64     `json:"chat_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	URL        string    `json:"url,omitempty"`
	Repo       string    `json:"repo,omitempty"`
	Path       string    `json:"path,omitempty"`
	CommitURL  string    `json:"commit_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
	FinishedAt time.Time `json:"finished_at"`
	TookMS     int64     `json:"took_ms"`
}
