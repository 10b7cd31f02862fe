package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "websum/pkg/logx"
)

// dispatch is the per-chat loop. It takes jobs off the chat queue one at a
// time, waits for a global slot, runs the job and exits once the chat is idle.
func (s *Scheduler) dispatch(ctx context.Context, w *chatWorker) {
	defer close(w.done)
	defer w.cancel()

	log := s.log.With(logx.Int64("chat", w.chatID), logx.Uint64("worker", w.id))

	for {
		st, ok := s.attached(w)
		if !ok {
			return
		}

		var job *Job
		select {
		case <-ctx.Done():
			s.detach(w)
			return
		case job = <-st.queue:
		}

		if err := s.gate.Acquire(ctx, 1); err != nil {
			s.detach(w)
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.gate.Release(1)
			return
		}
		st.pending = max(st.pending-1, 0)
		s.globalPending = max(s.globalPending-1, 0)
		st.running = 1
		s.globalRunning++
		s.mu.Unlock()

		s.execute(ctx, log, job)

		s.mu.Lock()
		st.running = 0
		s.globalRunning = max(s.globalRunning-1, 0)
		s.mu.Unlock()
		s.gate.Release(1)

		if ctx.Err() != nil {
			s.detach(w)
			return
		}
		if s.cleanup(w) {
			return
		}
	}
}

// attached returns the chat state if w is still its registered worker.
func (s *Scheduler) attached(w *chatWorker) (*chatState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[w.chatID]
	if st == nil || st.worker != w {
		return nil, false
	}
	return st, true
}

// detach unregisters w without touching the chat's counters.
func (s *Scheduler) detach(w *chatWorker) {
	s.mu.Lock()
	if st := s.chats[w.chatID]; st != nil && st.worker == w {
		st.worker = nil
	}
	s.mu.Unlock()
}

// cleanup reports whether the loop should exit. An idle chat is removed from
// the map, but only by its registered worker so a stale loop never tears down
// a successor's state.
func (s *Scheduler) cleanup(w *chatWorker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[w.chatID]
	if st == nil {
		return true
	}
	if len(st.queue) > 0 || st.pending > 0 || st.running > 0 {
		return false
	}
	if st.worker == w {
		delete(s.chats, w.chatID)
	}
	return true
}

func (s *Scheduler) execute(ctx context.Context, log logx.Logger, job *Job) {
	log = log.With(logx.String("job", job.ID), logx.String("kind", job.Kind))

	start := time.Now()
	queueDelay := start.Sub(job.CreatedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}
	log.Debug("job.started", logx.Duration("queue_delay", queueDelay))
	s.publish(EventStarted, JobEvent{ID: job.ID, ChatID: job.ChatID, Kind: job.Kind, QueueDelay: queueDelay})

	if job.OnStart != nil {
		s.callback(ctx, log, "on_start", job.OnStart)
	}

	var res outcome
	done, err := s.pool.submit(ctx, context.WithoutCancel(ctx), job.Run)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		res = outcome{err: err}
	} else {
		select {
		case res = <-done:
		case <-ctx.Done():
			log.Debug("job abandoned: scheduler stopping", logx.Duration("ran", time.Since(start)))
			return
		}
	}

	dur := time.Since(start)
	if res.err != nil {
		log.Warn("job.failed", logx.Err(res.err), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		s.publish(EventFailed, JobEvent{ID: job.ID, ChatID: job.ChatID, Kind: job.Kind, QueueDelay: queueDelay, Duration: dur, Error: res.err.Error()})
		if job.OnFailure != nil {
			jobErr := res.err
			s.callback(ctx, log, "on_failure", func(c context.Context) error { return job.OnFailure(c, jobErr) })
		}
		return
	}

	if dur >= 750*time.Millisecond {
		log.Info("job.completed", logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	} else {
		log.Debug("job.completed", logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	}
	s.publish(EventSucceeded, JobEvent{ID: job.ID, ChatID: job.ChatID, Kind: job.Kind, QueueDelay: queueDelay, Duration: dur})
	if job.OnSuccess != nil {
		result := res.result
		s.callback(ctx, log, "on_success", func(c context.Context) error { return job.OnSuccess(c, result) })
	}
}

// callback runs a lifecycle hook. Errors and panics are logged and swallowed
// so a broken notification path cannot take the dispatch loop down.
func (s *Scheduler) callback(ctx context.Context, log logx.Logger, name string, fn func(context.Context) error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("job callback panicked", logx.String("callback", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				err = fmt.Errorf("panic in %s: %v", name, r)
			}
		}()
		return fn(ctx)
	}()
	if err != nil {
		log.Warn("job callback failed", logx.String("callback", name), logx.Err(err))
	}
}
