package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"websum/internal/runtime/supervisor"
	"websum/internal/storage"
	"websum/internal/summarize"
	"websum/internal/task/queue"
	kit "websum/internal/transport"
	"websum/pkg/logx"
	"websum/pkg/tgui"
)

// JobKind tags summarize jobs in the scheduler, events and history.
const JobKind = "summarize"

const historyLimit = 5

// Scheduler is the part of *queue.Scheduler the bot needs.
type Scheduler interface {
	Enqueue(job queue.Job) (int, error)
	Status(chatID int64) queue.QueueStatus
}

// Processor runs one summarize request to completion.
type Processor interface {
	Process(ctx context.Context, req summarize.Request) (summarize.Result, error)
}

type Config struct {
	DefaultRepo   string
	DefaultBranch string
	// AllowedChatIDs restricts which chats are served. Empty serves everyone.
	AllowedChatIDs []int64
	// EditsPerSecond caps status message edits across all chats (0: 20/s).
	EditsPerSecond float64
	// Workers is the number of goroutines handling incoming messages (0: 4).
	Workers int
	// HandlerTimeout bounds a single message handler (0: 30s). Jobs are not affected.
	HandlerTimeout time.Duration
}

// Bot turns chat messages into summarize jobs and reports their progress.
type Bot struct {
	log    logx.Logger
	sender kit.Sender
	sched  Scheduler
	pipe   Processor
	store  storage.Store // nil: history disabled
	status *statusEditor

	def     defaults
	workers int
	timeout time.Duration

	allowMu sync.RWMutex
	allowed map[int64]struct{}

	jobs chan func(ctx context.Context)
	now  func() time.Time
}

func New(cfg Config, sender kit.Sender, sched Scheduler, pipe Processor, store storage.Store, log logx.Logger) (*Bot, error) {
	if sender == nil || sched == nil || pipe == nil {
		return nil, errors.New("bot: sender, scheduler and pipeline are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.EditsPerSecond <= 0 {
		cfg.EditsPerSecond = 20
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	b := &Bot{
		log:     log,
		sender:  sender,
		sched:   sched,
		pipe:    pipe,
		store:   store,
		status:  newStatusEditor(sender, cfg.EditsPerSecond, 5),
		def:     defaults{Repo: cfg.DefaultRepo, Branch: cfg.DefaultBranch},
		workers: cfg.Workers,
		timeout: cfg.HandlerTimeout,
		jobs:    make(chan func(ctx context.Context), 256),
		now:     time.Now,
	}
	b.SetAllowedChats(cfg.AllowedChatIDs)
	return b, nil
}

// Commands is the menu published to Telegram.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "usage"},
		{Command: "summarize", Description: "summarize a URL and commit it to GitHub"},
		{Command: "status", Description: "queue status of this chat"},
		{Command: "history", Description: "last jobs of this chat"},
	}
}

// SetAllowedChats replaces the allow list. Safe to call during hot-reload.
func (b *Bot) SetAllowedChats(ids []int64) {
	allowed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	b.allowMu.Lock()
	b.allowed = allowed
	b.allowMu.Unlock()
}

func (b *Bot) chatAllowed(chatID int64) bool {
	b.allowMu.RLock()
	defer b.allowMu.RUnlock()
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[chatID]
	return ok
}

// Run consumes updates until ctx is done or updates is closed.
// Handlers run on a small supervised worker set; long work goes to the scheduler.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(b.log.With(logx.String("comp", "bot.dispatch"))),
		supervisor.WithCancelOnError(false),
	)
	for i := 0; i < b.workers; i++ {
		idx := i
		sup.GoRestart0("bot.worker."+strconv.Itoa(idx), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case fn := <-b.jobs:
					fn(c)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	b.log.Info("bot dispatcher started", logx.Int("workers", b.workers), logx.Int("job_queue_cap", cap(b.jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		b.log.Info("bot dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.route(ctx, up)
		}
	}
}

func (b *Bot) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	if !b.chatAllowed(msg.ChatID) {
		b.log.Debug("message from chat outside allow list ignored", logx.Int64("chat_id", msg.ChatID))
		return
	}

	req := &request{
		Msg:   msg,
		Chat:  kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		ReqID: uuid.NewString()[:8],
	}
	h := b.handleText
	if cmd, ok := parseCommand(msg.Text); ok {
		req.Command, req.Args = cmd.Name, cmd.Args
		h = b.handleCommand
	}
	req.Logger = b.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int("thread_id", msg.ThreadID),
		logx.Int64("from_id", msg.FromID),
	)

	final := chain(h, mwPanicRecover(), mwRequestLog(), mwTimeout(b.timeout))
	select {
	case b.jobs <- func(c context.Context) { _ = final(c, req) }:
	default:
		req.Logger.Warn("dispatcher saturated, message dropped")
		_, _ = tgui.New().ReplyTo(msg.ID).Line("Busy, try again.").Build().Send(ctx, b.sender, req.Chat)
	}
}

// HandleMessage processes one message synchronously, bypassing the worker set.
func (b *Bot) HandleMessage(ctx context.Context, msg *kit.Message) error {
	if msg == nil || !b.chatAllowed(msg.ChatID) {
		return nil
	}
	req := &request{Msg: msg, Chat: kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, Logger: b.log}
	if cmd, ok := parseCommand(msg.Text); ok {
		req.Command, req.Args = cmd.Name, cmd.Args
		return b.handleCommand(ctx, req)
	}
	return b.handleText(ctx, req)
}

func (b *Bot) handleCommand(ctx context.Context, req *request) error {
	var m tgui.Message
	switch req.Command {
	case "start", "help":
		m = usageMessage(req.Msg.ID)
	case "summarize":
		sr, err := parseSummarizeArgs(req.Args, b.def)
		if err != nil {
			m = errorMessage(req.Msg.ID, err)
			break
		}
		return b.submit(ctx, req, sr)
	case "status":
		m = statusReport(req.Msg.ID, b.sched.Status(req.Chat.ChatID))
	case "history":
		if b.store == nil {
			m = historyDisabledMessage(req.Msg.ID)
			break
		}
		recs, err := b.store.RecentJobs(ctx, req.Chat.ChatID, historyLimit)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		m = historyReport(req.Msg.ID, recs)
	default:
		m = unknownCommandMessage(req.Msg.ID, req.Command)
	}
	_, err := m.Send(ctx, b.sender, req.Chat)
	return err
}

// handleText treats the first URL of a plain message as /summarize <url>.
// In groups, messages without a URL are ignored.
func (b *Bot) handleText(ctx context.Context, req *request) error {
	u, ok := firstURL(req.Msg.Text)
	if !ok {
		if req.Msg.IsGroup {
			return nil
		}
		_, err := noURLMessage(req.Msg.ID).Send(ctx, b.sender, req.Chat)
		return err
	}
	sr, err := parseSummarizeArgs([]string{u}, b.def)
	if err != nil {
		_, err = errorMessage(req.Msg.ID, err).Send(ctx, b.sender, req.Chat)
		return err
	}
	return b.submit(ctx, req, sr)
}

// submit replies with a status message, then queues the job that keeps it
// up to date. Admission failures are reported on the same message.
func (b *Bot) submit(ctx context.Context, req *request, sr summarize.Request) error {
	first := queuedMessage(sr.URL, 0)
	first.Opt.ReplyTo = req.Msg.ID
	ref, err := first.Send(ctx, b.sender, req.Chat)
	if err != nil {
		return fmt.Errorf("send status: %w", err)
	}
	sm := &statusMessage{ed: b.status, ref: ref}

	jobID := uuid.NewString()
	queuedAt := b.now()
	log := req.Logger.With(logx.String("job", jobID))

	// startedAt is written by OnStart and read by the final callback; both
	// run on the chat's dispatch goroutine.
	var startedAt time.Time
	finish := func(ctx context.Context, rec storage.JobRecord) {
		rec.ID, rec.ChatID, rec.Kind = jobID, req.Chat.ChatID, JobKind
		rec.URL, rec.Repo = sr.URL, sr.Repo
		rec.QueuedAt = queuedAt
		rec.FinishedAt = b.now()
		from := startedAt
		if from.IsZero() {
			from = queuedAt
		}
		rec.TookMS = rec.FinishedAt.Sub(from).Milliseconds()
		b.record(ctx, log, rec)
	}

	job := queue.Job{
		ID:        jobID,
		ChatID:    req.Chat.ChatID,
		CreatedAt: queuedAt,
		Kind:      JobKind,
		Run: func(ctx context.Context) (any, error) {
			return b.pipe.Process(ctx, sr)
		},
		OnStart: func(ctx context.Context) error {
			startedAt = b.now()
			return sm.set(ctx, stageRunning, runningMessage(sr.URL))
		},
		OnSuccess: func(ctx context.Context, result any) error {
			res, _ := result.(summarize.Result)
			finish(ctx, storage.JobRecord{Status: storage.StatusSucceeded, Path: res.Path, CommitURL: res.CommitURL})
			return sm.set(ctx, stageDone, successMessage(res))
		},
		OnFailure: func(ctx context.Context, jobErr error) error {
			finish(ctx, storage.JobRecord{Status: storage.StatusFailed, Error: jobErr.Error()})
			return sm.set(ctx, stageDone, failureMessage(jobErr))
		},
	}

	pos, err := b.sched.Enqueue(job)
	if err != nil {
		log.Warn("job not queued", logx.Err(err), logx.String("url", sr.URL))
		return sm.set(ctx, stageDone, rejectionMessage(err, b.sched.Status(req.Chat.ChatID)))
	}
	log.Info("job queued", logx.String("url", sr.URL), logx.String("repo", sr.Repo), logx.Int("position", pos))
	return sm.set(ctx, stageQueued, queuedMessage(sr.URL, pos))
}

func (b *Bot) record(ctx context.Context, log logx.Logger, rec storage.JobRecord) {
	if b.store == nil {
		return
	}
	if err := b.store.AppendJob(ctx, rec); err != nil {
		log.Warn("job history write failed", logx.Err(err))
	}
}
