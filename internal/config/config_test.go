package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", `
telegram:
  token: abc
  allowed_chat_ids: [1, 2]
queue:
  max_concurrent_jobs: 3
github:
  default_repo: me/notes
storage:
  driver: sqlite
  path: ./websum.db
`)
	m := NewConfigManager(p)
	m.SetEnvLookup(noEnv)
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Telegram.Token)
	assert.Equal(t, []int64{1, 2}, cfg.Telegram.AllowedChatIDs)
	assert.Equal(t, 3, cfg.Queue.MaxConcurrentJobs)
	assert.Equal(t, DefaultMaxQueueSize, cfg.Queue.MaxQueueSize)
	assert.Equal(t, DefaultMaxQueueSizePerChat, cfg.Queue.MaxQueueSizePerChat)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "main", cfg.GitHub.DefaultBranch)
	assert.Equal(t, DefaultFetchUserAgent, cfg.Fetch.UserAgent)
	assert.Equal(t, DefaultPruneEvery, cfg.Storage.PruneEvery)
	assert.Same(t, cfg, m.Get())
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	m := NewConfigManager(writeFile(t, dir, "a.json", `{"telegram":{"token":"x"},"plugins":{}}`))
	_, err := m.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugins")

	m = NewConfigManager(writeFile(t, dir, "b.json", `{"telegram":{"token":"x"}}{}`))
	_, err = m.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing")
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.GitHub.DefaultRepo = "file/repo"
	env := map[string]string{
		"TELEGRAM_BOT_TOKEN":  "tg",
		"OPENAI_API_KEY":      "sk",
		"DEFAULT_GITHUB_REPO": "env/repo",
		"DEFAULT_BRANCH":      "  ",
	}
	ApplyEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	ApplyDefaults(cfg)

	assert.Equal(t, "tg", cfg.Telegram.Token)
	assert.Equal(t, "sk", cfg.LLM.APIKey)
	assert.Equal(t, "env/repo", cfg.GitHub.DefaultRepo)
	assert.Equal(t, "main", cfg.GitHub.DefaultBranch, "blank env values are ignored")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := &Config{Storage: &StorageConfig{Driver: "file"}}
		ApplyDefaults(c)
		return c
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"negative concurrency", func(c *Config) { c.Queue.MaxConcurrentJobs = -1 }, "queue.max_concurrent_jobs"},
		{"negative per chat", func(c *Config) { c.Queue.MaxQueueSizePerChat = -3 }, "queue.max_queue_size_per_chat"},
		{"bad duration", func(c *Config) { c.Fetch.Timeout = "soon" }, "fetch.timeout"},
		{"bad repo", func(c *Config) { c.GitHub.DefaultRepo = "justname" }, "github.default_repo"},
		{"bad cron", func(c *Config) { c.Storage.PruneEvery = "every hour" }, "storage.prune_every"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"bad group log", func(c *Config) { c.Telegram.GroupLog = "@ops" }, "telegram.group_log"},
		{"bad temperature", func(c *Config) { v := 3.0; c.LLM.Temperature = &v }, "llm.temperature"},
		{"bad debug addr", func(c *Config) { c.Debug = &DebugConfig{Enabled: true, Addr: "6060"} }, "debug.addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tc.mutate(c)
			err := Validate(c)
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSplitRepo(t *testing.T) {
	t.Parallel()
	owner, repo, err := SplitRepo(" me/notes ")
	require.NoError(t, err)
	assert.Equal(t, "me", owner)
	assert.Equal(t, "notes", repo)

	for _, bad := range []string{"", "me", "/notes", "me/", "a/b/c"} {
		_, _, err := SplitRepo(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = ParseDurationOrDefault("x", " 0s ", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	_, err = ParseDurationField("queue.shutdown_timeout", "-1s")
	require.ErrorContains(t, err, "queue.shutdown_timeout")
	_, err = ParseDurationOrDefault("fetch.timeout", "soon", time.Second)
	require.ErrorContains(t, err, "fetch.timeout")
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	ApplyDefaults(oldCfg)
	newCfg := *oldCfg
	newCfg.Logging.Level = "debug"
	newCfg.Telegram.AllowedChatIDs = []int64{5}
	newCfg.Queue.MaxQueueSize = 64
	newCfg.GitHub.Token = "secret"

	ch := SummarizeConfigChange(oldCfg, &newCfg)
	assert.Equal(t, []string{"github", "logging", "queue", "telegram"}, ch.Sections)
	assert.Equal(t, []string{"github", "queue"}, ch.RestartRequired)
	assert.True(t, ch.Has("logging"))
	assert.False(t, ch.Has("storage"))

	assert.Empty(t, SummarizeConfigChange(oldCfg, oldCfg).Sections)

	dbgCfg := *oldCfg
	dbgCfg.Debug = &DebugConfig{Enabled: true}
	ch = SummarizeConfigChange(oldCfg, &dbgCfg)
	assert.Equal(t, []string{"debug"}, ch.Sections)
	assert.Empty(t, ch.RestartRequired)
}

func TestWatchPublishesReloadedConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"logging":{"level":"info"}}`)

	m := NewConfigManager(p)
	m.SetEnvLookup(noEnv)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Rewrite periodically until the watcher is up; each write restarts the debounce.
	deadline := time.After(8 * time.Second)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			assert.Equal(t, "debug", cfg.Logging.Level)
			assert.Equal(t, "debug", m.Get().Logging.Level)
			cancel()
			<-done
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(p, []byte(`{"logging":{"level":"debug"}}`), 0o600))
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}
