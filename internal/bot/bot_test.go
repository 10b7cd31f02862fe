package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websum/internal/storage"
	"websum/internal/summarize"
	"websum/internal/task/queue"
	kit "websum/internal/transport"
	"websum/pkg/logx"
)

const waitFor = 2 * time.Second

// fakeSender keeps the latest text of every message it sent.
type fakeSender struct {
	mu    sync.Mutex
	next  int
	texts map[int]string
	order []int
}

func newFakeSender() *fakeSender { return &fakeSender{texts: map[int]string{}} }

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.texts[f.next] = text
	f.order = append(f.order, f.next)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.next}, nil
}

func (f *fakeSender) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.texts[ref.MessageID]; !ok {
		return errors.New("message not found")
	}
	f.texts[ref.MessageID] = text
	return nil
}

func (f *fakeSender) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *fakeSender) text(id int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[id]
}

// fakePipeline blocks each request until release is closed (if set).
type fakePipeline struct {
	mu      sync.Mutex
	got     []summarize.Request
	release chan struct{}
	err     error
}

func (p *fakePipeline) Process(_ context.Context, req summarize.Request) (summarize.Result, error) {
	p.mu.Lock()
	p.got = append(p.got, req)
	release := p.release
	p.mu.Unlock()
	if release != nil {
		<-release
	}
	if p.err != nil {
		return summarize.Result{}, p.err
	}
	return summarize.Result{
		Title:     "Post",
		Repo:      req.Repo,
		Branch:    req.Branch,
		Path:      "summary-post.md",
		CommitURL: "https://github.com/me/notes/commit/abc",
	}, nil
}

func (p *fakePipeline) requests() []summarize.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]summarize.Request(nil), p.got...)
}

type fixture struct {
	bot    *Bot
	sender *fakeSender
	pipe   *fakePipeline
	sched  *queue.Scheduler
	store  storage.Store
}

func newFixture(t *testing.T, qcfg queue.Config, cfg Config, withStore bool) *fixture {
	t.Helper()
	sched, err := queue.New(qcfg, logx.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	var store storage.Store
	if withStore {
		store, err = storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "websum")}, logx.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}

	if cfg.DefaultRepo == "" {
		cfg.DefaultRepo = "me/notes"
		cfg.DefaultBranch = "main"
	}
	sender := newFakeSender()
	pipe := &fakePipeline{}
	b, err := New(cfg, sender, sched, pipe, store, logx.Nop())
	require.NoError(t, err)
	return &fixture{bot: b, sender: sender, pipe: pipe, sched: sched, store: store}
}

func msg(chatID int64, id int, text string) *kit.Message {
	return &kit.Message{ID: id, ChatID: chatID, FromID: 1, Text: text}
}

var defaultLimits = queue.Config{MaxConcurrentJobs: 2, MaxQueueSize: 8, MaxQueueSizePerChat: 2}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil, nil, nil, logx.Nop())
	require.Error(t, err)
}

func TestSummarizeCommandCommitsAndRecordsHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultLimits, Config{}, true)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 100, "/summarize https://example.com/post tags=go,queue")))

	require.Eventually(t, func() bool {
		return strings.Contains(f.sender.text(1), "Committed")
	}, waitFor, 5*time.Millisecond)
	final := f.sender.text(1)
	assert.Contains(t, final, "me/notes@main")
	assert.Contains(t, final, "summary-post.md")
	assert.Contains(t, final, "https://github.com/me/notes/commit/abc")
	assert.Equal(t, 1, f.sender.sent())

	reqs := f.pipe.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://example.com/post", reqs[0].URL)
	assert.Equal(t, []string{"go", "queue"}, reqs[0].Tags)

	require.Eventually(t, func() bool {
		recs, err := f.store.RecentJobs(ctx, 10, historyLimit)
		return err == nil && len(recs) == 1
	}, waitFor, 5*time.Millisecond)
	recs, err := f.store.RecentJobs(ctx, 10, historyLimit)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSucceeded, recs[0].Status)
	assert.Equal(t, JobKind, recs[0].Kind)
	assert.Equal(t, "summary-post.md", recs[0].Path)
	assert.NotEmpty(t, recs[0].ID)

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 101, "/history")))
	assert.Contains(t, f.sender.text(2), "summary-post.md")
}

func TestPlainTextURLIsSummarized(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultLimits, Config{}, false)

	require.NoError(t, f.bot.HandleMessage(context.Background(), msg(10, 1, "please read https://example.com/a, thanks")))
	require.Eventually(t, func() bool {
		return strings.Contains(f.sender.text(1), "Committed")
	}, waitFor, 5*time.Millisecond)
	require.Len(t, f.pipe.requests(), 1)
	assert.Equal(t, "https://example.com/a", f.pipe.requests()[0].URL)
}

func TestFailedJobIsReported(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultLimits, Config{}, true)
	f.pipe.err = errors.New("github commit failed: http 404: Not Found")
	ctx := context.Background()

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 1, "/summarize https://example.com")))
	require.Eventually(t, func() bool {
		return strings.Contains(f.sender.text(1), "Failed")
	}, waitFor, 5*time.Millisecond)
	assert.Contains(t, f.sender.text(1), "http 404: Not Found")

	require.Eventually(t, func() bool {
		recs, err := f.store.RecentJobs(ctx, 10, 1)
		return err == nil && len(recs) == 1 && recs[0].Status == storage.StatusFailed
	}, waitFor, 5*time.Millisecond)
}

func TestChatQueueFullIsReportedAndQueuePositionShown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, queue.Config{MaxConcurrentJobs: 1, MaxQueueSize: 8, MaxQueueSizePerChat: 1}, Config{}, false)
	release := make(chan struct{})
	f.pipe.release = release
	ctx := context.Background()

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 1, "/summarize https://example.com/1")))
	require.Eventually(t, func() bool { return f.sched.Status(10).ChatRunning == 1 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(f.sender.text(1), "Processing") }, waitFor, time.Millisecond)

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 2, "/summarize https://example.com/2")))
	assert.Contains(t, f.sender.text(2), "#1 in queue for this chat")

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 3, "/summarize https://example.com/3")))
	assert.Contains(t, f.sender.text(3), "Not queued")
	assert.Contains(t, f.sender.text(3), "1 pending jobs (limit 1)")

	close(release)
	require.Eventually(t, func() bool {
		return strings.Contains(f.sender.text(2), "Committed")
	}, waitFor, 5*time.Millisecond)
	assert.Len(t, f.pipe.requests(), 2)
}

func TestClosedSchedulerIsReported(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultLimits, Config{}, false)
	require.NoError(t, f.sched.Shutdown(context.Background()))

	require.NoError(t, f.bot.HandleMessage(context.Background(), msg(10, 1, "/summarize https://example.com")))
	assert.Contains(t, f.sender.text(1), "shutting down")
	assert.Empty(t, f.pipe.requests())
}

func TestAllowedChats(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultLimits, Config{AllowedChatIDs: []int64{10}}, false)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleMessage(ctx, msg(99, 1, "/start")))
	assert.Equal(t, 0, f.sender.sent())

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 1, "/start")))
	assert.Equal(t, 1, f.sender.sent())

	f.bot.SetAllowedChats(nil)
	require.NoError(t, f.bot.HandleMessage(ctx, msg(99, 2, "/start")))
	assert.Equal(t, 2, f.sender.sent())
}

func TestSimpleReplies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultLimits, Config{}, false)
	ctx := context.Background()

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 1, "/status")))
	assert.Contains(t, f.sender.text(1), "0/2 (this chat: 0)")
	assert.Contains(t, f.sender.text(1), "0/8 (this chat: 0/2)")

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 2, "/history")))
	assert.Contains(t, f.sender.text(2), "disabled")

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 3, "/nope")))
	assert.Contains(t, f.sender.text(3), "Unknown command /nope")

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 4, "/summarize")))
	assert.Contains(t, f.sender.text(4), errNoURL.Error())

	require.NoError(t, f.bot.HandleMessage(ctx, msg(10, 5, "hello")))
	assert.Contains(t, f.sender.text(5), "No http/https URL")

	group := msg(-100, 6, "hello everyone")
	group.IsGroup = true
	require.NoError(t, f.bot.HandleMessage(ctx, group))
	assert.Equal(t, 5, f.sender.sent())
}

func TestRunRoutesUpdates(t *testing.T) {
	t.Parallel()
	f := newFixture(t, defaultLimits, Config{Workers: 1}, false)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 4)
	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx, updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: msg(10, 1, "/start")}
	updates <- kit.Update{Kind: kit.UpdateMessage}
	require.Eventually(t, func() bool { return f.sender.sent() == 1 }, waitFor, 5*time.Millisecond)
	assert.Contains(t, f.sender.text(1), "/summarize")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatusMessageNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	s := newFakeSender()
	ref, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "start", nil)
	require.NoError(t, err)

	sm := &statusMessage{ed: newStatusEditor(s, 0, 0), ref: ref}
	ctx := context.Background()
	require.NoError(t, sm.set(ctx, stageRunning, runningMessage("https://e.test")))
	require.NoError(t, sm.set(ctx, stageQueued, queuedMessage("https://e.test", 3)))
	assert.Contains(t, s.text(ref.MessageID), "Processing")

	require.NoError(t, sm.set(ctx, stageDone, failureMessage(errors.New("boom"))))
	assert.Contains(t, s.text(ref.MessageID), "boom")
}
