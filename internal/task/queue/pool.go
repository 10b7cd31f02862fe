package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	logx "websum/pkg/logx"
)

type outcome struct {
	result any
	err    error
}

type poolTask struct {
	ctx context.Context
	run RunFunc
	out chan outcome
}

// workerPool executes blocking job bodies on a fixed set of goroutines.
//
// stop does not wait for running calls: they finish unsupervised and their
// outcome lands in a buffered channel that nobody reads anymore.
type workerPool struct {
	log   logx.Logger
	tasks chan poolTask

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newWorkerPool(size int, log logx.Logger) *workerPool {
	if size <= 0 {
		size = 1
	}
	p := &workerPool{
		log:    log,
		tasks:  make(chan poolTask),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	for {
		// Fast-exit check so a closed stopCh wins over pending handoffs.
		select {
		case <-p.stopCh:
			return
		default:
		}

		select {
		case <-p.stopCh:
			return
		case t := <-p.tasks:
			t.out <- p.exec(t)
		}
	}
}

func (p *workerPool) exec(t poolTask) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job.panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			res = outcome{err: fmt.Errorf("%w: %v", ErrJobPanicked, r)}
		}
	}()
	v, err := t.run(t.ctx)
	return outcome{result: v, err: err}
}

// submit hands run to a free worker. It blocks until a worker accepts the
// task, ctx is done, or the pool stops. runCtx is what run receives.
func (p *workerPool) submit(ctx, runCtx context.Context, run RunFunc) (<-chan outcome, error) {
	select {
	case <-p.stopCh:
		return nil, errPoolClosed
	default:
	}

	out := make(chan outcome, 1)
	select {
	case p.tasks <- poolTask{ctx: runCtx, run: run, out: out}:
		return out, nil
	case <-p.stopCh:
		return nil, errPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *workerPool) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}
