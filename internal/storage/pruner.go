package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "websum/pkg/logx"
)

// PrunerConfig schedules history retention.
type PrunerConfig struct {
	// Retention is how long finished jobs are kept.
	Retention time.Duration
	// Spec is a cron spec understood by Parser, e.g. "@every 1h" or "0 3 * * *".
	Spec   string
	Parser cron.Parser
	// Timeout bounds one prune run (0: 30s).
	Timeout time.Duration
}

// Pruner deletes old job records on a cron schedule.
type Pruner struct {
	cfg   PrunerConfig
	store Store
	log   logx.Logger
	now   func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func NewPruner(cfg PrunerConfig, store Store, log logx.Logger) (*Pruner, error) {
	if store == nil {
		return nil, ErrDisabled
	}
	if cfg.Retention <= 0 {
		return nil, errors.New("storage: retention must be > 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if _, err := cfg.Parser.Parse(cfg.Spec); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pruner{cfg: cfg, store: store, log: log, now: time.Now}, nil
}

// RunOnce prunes records finished before now-Retention.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	cutoff := p.now().Add(-p.cfg.Retention)
	n, err := p.store.PruneJobs(ctx, cutoff)
	if err != nil {
		p.log.Warn("history prune failed", logx.Err(err))
		return n, err
	}
	if n > 0 {
		p.log.Info("history pruned", logx.Int("deleted", n), logx.Time("cutoff", cutoff))
	} else {
		p.log.Debug("history prune: nothing to delete", logx.Time("cutoff", cutoff))
	}
	return n, nil
}

// Start begins cron triggering. Runs use ctx, so cancelling it aborts a run in flight.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(p.cfg.Parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(p.cfg.Spec, func() { _, _ = p.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	p.c = c
	p.log.Info("history pruner started", logx.String("spec", p.cfg.Spec), logx.Duration("retention", p.cfg.Retention))
	return nil
}

// Stop halts triggering and waits for a running prune, bounded by ctx.
func (p *Pruner) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	p.log.Info("history pruner stopped")
}
