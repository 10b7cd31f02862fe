package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"websum/internal/eventbus"
	logx "websum/pkg/logx"
)

// Scheduler is an in-memory, chat-partitioned job scheduler.
//
// All bookkeeping (chat map, counters, worker handles) is guarded by mu, which
// is never held while waiting for a job, a concurrency slot or a job result.
type Scheduler struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	// gate bounds the number of executing jobs. A slot is held only while a
	// job runs, never while it waits in a chat queue.
	gate *semaphore.Weighted
	pool *workerPool

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	chats         map[int64]*chatState
	globalPending int
	globalRunning int
	closed        bool
	workerSeq     uint64
}

// New validates cfg and starts the worker pool.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		gate:   semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		pool:   newWorkerPool(cfg.MaxConcurrentJobs, log),
		ctx:    ctx,
		cancel: cancel,
		chats:  make(map[int64]*chatState),
	}
	s.log.Info("task scheduler started",
		logx.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		logx.Int("max_queue_size", cfg.MaxQueueSize),
		logx.Int("max_queue_size_per_chat", cfg.MaxQueueSizePerChat),
	)
	return s, nil
}

// Config returns the limits the scheduler was built with.
func (s *Scheduler) Config() Config { return s.cfg }

// Enqueue admits job into its chat's queue and returns the chat's pending
// count including job. It never blocks.
//
// Possible errors: ErrClosed, ErrGlobalQueueFull, ErrChatQueueFull, ErrInvalidJob.
func (s *Scheduler) Enqueue(job Job) (int, error) {
	if job.Run == nil {
		return 0, ErrInvalidJob
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.globalPending >= s.cfg.MaxQueueSize {
		globalPending := s.globalPending
		s.mu.Unlock()
		s.reject(job, ErrGlobalQueueFull, logx.Int("global_pending", globalPending))
		return 0, ErrGlobalQueueFull
	}

	st := s.chats[job.ChatID]
	if st == nil {
		st = &chatState{queue: make(chan *Job, s.cfg.MaxQueueSizePerChat)}
		s.chats[job.ChatID] = st
	}
	if st.pending >= s.cfg.MaxQueueSizePerChat {
		chatPending := st.pending
		s.mu.Unlock()
		s.reject(job, ErrChatQueueFull, logx.Int("chat_pending", chatPending))
		return 0, ErrChatQueueFull
	}

	j := job
	select {
	case st.queue <- &j:
	default:
		// Unreachable while pending bounds the queue length.
		s.mu.Unlock()
		s.reject(job, ErrChatQueueFull, logx.Int("chat_queue_len", len(st.queue)))
		return 0, ErrChatQueueFull
	}
	st.pending++
	s.globalPending++
	if st.worker == nil {
		s.startWorkerLocked(job.ChatID, st)
	}
	pending := st.pending
	s.mu.Unlock()

	s.log.Debug("job.queued",
		logx.String("job", job.ID),
		logx.Int64("chat", job.ChatID),
		logx.String("kind", job.Kind),
		logx.Int("chat_pending", pending),
	)
	s.publish(EventQueued, JobEvent{ID: job.ID, ChatID: job.ChatID, Kind: job.Kind, Pending: pending})
	return pending, nil
}

// Status returns a snapshot of the limits plus global and per-chat counters.
// Chat counters are zero when the chat has no queued or running work.
func (s *Scheduler) Status(chatID int64) QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := QueueStatus{
		MaxConcurrentJobs:   s.cfg.MaxConcurrentJobs,
		MaxQueueSize:        s.cfg.MaxQueueSize,
		MaxQueueSizePerChat: s.cfg.MaxQueueSizePerChat,
		GlobalPending:       s.globalPending,
		GlobalRunning:       s.globalRunning,
	}
	if st := s.chats[chatID]; st != nil {
		qs.ChatPending = st.pending
		qs.ChatRunning = st.running
	}
	return qs
}

// Chats returns the number of chats that currently hold scheduler state.
func (s *Scheduler) Chats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

// Shutdown stops all dispatch goroutines and the worker pool.
//
// Jobs still waiting in a chat queue are dropped without invoking any of their
// callbacks. Job bodies already running are not interrupted; they finish on
// their own and their outcome is discarded. Shutdown waits for dispatch
// goroutines until ctx is done. Calling it again is a no-op.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	workers := make([]*chatWorker, 0, len(s.chats))
	dropped := 0
	for chatID, st := range s.chats {
		if st.worker != nil {
			workers = append(workers, st.worker)
			st.worker = nil
		}
		dropped += st.pending
		delete(s.chats, chatID)
	}
	s.globalPending = 0
	s.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			select {
			case <-w.done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err := g.Wait()

	s.pool.stop()
	s.cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("task scheduler stop timed out", logx.Err(err), logx.Int("workers", len(workers)))
		return err
	}
	s.log.Info("task scheduler stopped", logx.Int("workers", len(workers)), logx.Int("dropped", dropped))
	return nil
}

// startWorkerLocked registers and starts a dispatch goroutine for chatID.
// Call with s.mu held.
func (s *Scheduler) startWorkerLocked(chatID int64, st *chatState) {
	s.workerSeq++
	ctx, cancel := context.WithCancel(s.ctx)
	w := &chatWorker{
		id:     s.workerSeq,
		chatID: chatID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	st.worker = w
	go s.dispatch(ctx, w)
}

func (s *Scheduler) reject(job Job, reason error, fields ...logx.Field) {
	base := []logx.Field{
		logx.String("job", job.ID),
		logx.Int64("chat", job.ChatID),
		logx.String("kind", job.Kind),
		logx.String("reason", reason.Error()),
	}
	s.log.Debug("job.rejected", append(base, fields...)...)
	s.publish(EventRejected, JobEvent{ID: job.ID, ChatID: job.ChatID, Kind: job.Kind, Error: reason.Error()})
}

func (s *Scheduler) publish(typ string, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
