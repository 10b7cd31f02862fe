package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"websum/internal/bot"
	"websum/internal/config"
	"websum/internal/eventbus"
	"websum/internal/observability/debugsrv"
	"websum/internal/runtime/supervisor"
	"websum/internal/storage"
	"websum/internal/task/queue"
	kit "websum/internal/transport"
	telegram "websum/internal/transport/telegram/adapter"
	logx "websum/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	sched   *queue.Scheduler
	pruner  *storage.Pruner
	bot     *bot.Bot
	debug   *debugsrv.Service

	shutdownTimeout time.Duration

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Telegram logging starts disabled so Apply does not warn before the
	// target chat is set.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if chatID, ok := groupLogTarget(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	var pruner *storage.Pruner
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		storeLog := log.With(logx.String("comp", "storage"))
		st, err := storage.Open(sc, storeLog)
		if err != nil {
			return nil, err
		}
		store = st
		pc, err := mapPrunerConfig(cfg)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		pruner, err = storage.NewPruner(pc, st, storeLog)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	qcfg, shutdownTimeout, err := mapQueueConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched, err := queue.New(qcfg, log.With(logx.String("comp", "queue")), bus)
	if err != nil {
		return nil, err
	}

	pipe, err := buildPipeline(cfg, log.With(logx.String("comp", "summarize")))
	if err != nil {
		return nil, err
	}

	b, err := bot.New(bot.Config{
		DefaultRepo:    cfg.GitHub.DefaultRepo,
		DefaultBranch:  cfg.GitHub.DefaultBranch,
		AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
	}, ad, sched, pipe, store, log.With(logx.String("comp", "bot")))
	if err != nil {
		return nil, err
	}

	return &App{
		cfgPath:         cfgPath,
		cfgm:            cfgm,
		log:             log,
		logs:            logSvc,
		bus:             bus,
		store:           store,
		adapter:         ad,
		sched:           sched,
		pruner:          pruner,
		bot:             b,
		debug:           debugsrv.New(mapDebugConfig(cfg), sched, log.With(logx.String("comp", "debug"))),
		shutdownTimeout: shutdownTimeout,
		updates:         make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Reloaded configs are validated before they are committed and published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapQueueConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
		if err := mu.UpdateMenuCommands(mctx, bot.Commands()); err != nil {
			a.log.Warn("menu commands not published", logx.Err(err))
		}
		cancel()
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	a.sup.Go0("eventbus.log", func(c context.Context) {
		logJobEvents(c, a.bus, a.log.With(logx.String("comp", "events")))
	})

	if a.pruner != nil {
		if err := a.pruner.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("start history pruner: %w", err)
		}
	}

	if err := a.debug.Start(a.sup.Context()); err != nil {
		a.log.Warn("debug server disabled", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("max_concurrent_jobs", a.sched.Config().MaxConcurrentJobs),
		logx.Int("max_queue_size", a.sched.Config().MaxQueueSize),
		logx.Int("max_queue_size_per_chat", a.sched.Config().MaxQueueSizePerChat),
		logx.Bool("history", a.store != nil),
	)
	return nil
}

// applyConfig hot-applies the parts of cfg that can change at runtime.
func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	ch := config.SummarizeConfigChange(prev, cfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := strings.Join(ch.Sections, ",")
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", changed)}, ch.Attrs...)...)

	if chatID, ok := groupLogTarget(cfg); ok {
		a.logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogConfig(cfg))

	if ch.Has("telegram") {
		a.bot.SetAllowedChats(cfg.Telegram.AllowedChatIDs)
	}
	if ch.Has("debug") {
		rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.debug.Reconfigure(rctx, mapDebugConfig(cfg))
		cancel()
	}

	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", changed)}, ch.Attrs...)...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// step runs one shutdown step bounded by limit and the caller's deadline.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

		stepCtx := ctx
		if limit > 0 {
			if dl, ok := ctx.Deadline(); ok {
				limit = min(limit, max(time.Until(dl), 0))
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("queue", a.shutdownTimeout, func(c context.Context) error { return a.sched.Shutdown(c) })
	step("pruner", 2*time.Second, func(c context.Context) error {
		if a.pruner != nil {
			a.pruner.Stop(c)
		}
		return nil
	})
	step("debug", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
