package queue

import (
	"context"
	"fmt"
	"time"
)

// Config holds the scheduler limits. All values must be > 0.
type Config struct {
	// MaxConcurrentJobs bounds how many jobs execute at once, across all chats.
	// The worker pool is sized to the same value.
	MaxConcurrentJobs int
	// MaxQueueSize bounds the number of pending (not yet running) jobs across all chats.
	MaxQueueSize int
	// MaxQueueSizePerChat bounds the number of pending jobs of a single chat.
	MaxQueueSizePerChat int
}

func (c Config) validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("%w: max_concurrent_jobs must be > 0 (got %d)", ErrInvalidConfig, c.MaxConcurrentJobs)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("%w: max_queue_size must be > 0 (got %d)", ErrInvalidConfig, c.MaxQueueSize)
	}
	if c.MaxQueueSizePerChat <= 0 {
		return fmt.Errorf("%w: max_queue_size_per_chat must be > 0 (got %d)", ErrInvalidConfig, c.MaxQueueSizePerChat)
	}
	return nil
}

// RunFunc is the blocking part of a job. The context carries request-scoped
// values but is never cancelled by the scheduler, not even on Shutdown.
type RunFunc func(ctx context.Context) (any, error)

// Job is one unit of work scoped to a chat.
//
// The callbacks are optional. They run on the chat's dispatch goroutine and
// should only do short notification work (e.g. editing a status message).
// Errors they return are logged and otherwise ignored.
type Job struct {
	ID        string
	ChatID    int64
	CreatedAt time.Time
	Kind      string

	Run RunFunc

	OnStart   func(ctx context.Context) error
	OnSuccess func(ctx context.Context, result any) error
	OnFailure func(ctx context.Context, err error) error
}

// QueueStatus is a point-in-time snapshot of the scheduler limits and counters.
type QueueStatus struct {
	MaxConcurrentJobs   int `json:"max_concurrent_jobs"`
	MaxQueueSize        int `json:"max_queue_size"`
	MaxQueueSizePerChat int `json:"max_queue_size_per_chat"`

	GlobalPending int `json:"global_pending"`
	GlobalRunning int `json:"global_running"`
	ChatPending   int `json:"chat_pending"`
	ChatRunning   int `json:"chat_running"`
}

// JobEvent is published on the event bus for job lifecycle events.
type JobEvent struct {
	ID         string        `json:"id"`
	ChatID     int64         `json:"chat_id"`
	Kind       string        `json:"kind"`
	Pending    int           `json:"pending,omitempty"`
	QueueDelay time.Duration `json:"queue_delay,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Event types published by the scheduler.
const (
	EventQueued    = "job.queued"
	EventRejected  = "job.rejected"
	EventStarted   = "job.started"
	EventSucceeded = "job.succeeded"
	EventFailed    = "job.failed"
)

// chatState is the per-chat bookkeeping. All fields are guarded by Scheduler.mu.
//
// queue has capacity MaxQueueSizePerChat. Its length never exceeds pending,
// and Enqueue refuses once pending reaches the capacity, so sends never block.
type chatState struct {
	queue   chan *Job
	worker  *chatWorker
	pending int
	running int
}

// chatWorker identifies one dispatch goroutine instance.
type chatWorker struct {
	id     uint64
	chatID int64
	cancel context.CancelFunc
	done   chan struct{}
}
