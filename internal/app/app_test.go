package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websum/internal/config"
	"websum/internal/eventbus"
	"websum/internal/observability/debugsrv"
	"websum/internal/storage"
	"websum/internal/task/queue"
	logx "websum/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      *config.StorageConfig
		want    storage.Config
		enabled bool
		wantErr bool
	}{
		{name: "absent", in: nil},
		{name: "none", in: &config.StorageConfig{Driver: " None "}},
		{name: "file", in: &config.StorageConfig{Driver: "file", Path: " ./data/jobs "}, want: storage.Config{Driver: "file", Path: "./data/jobs"}, enabled: true},
		{name: "sqlite default busy", in: &config.StorageConfig{Driver: "SQLite", Path: "x.db"}, want: storage.Config{Driver: "sqlite", Path: "x.db", BusyTimeout: time.Second}, enabled: true},
		{name: "sqlite busy", in: &config.StorageConfig{Driver: "sqlite3", Path: "x.db", BusyTimeout: "250ms"}, want: storage.Config{Driver: "sqlite3", Path: "x.db", BusyTimeout: 250 * time.Millisecond}, enabled: true},
		{name: "sqlite without path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "sqlite bad busy", in: &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "soon"}, wantErr: true},
		{name: "unknown", in: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enabled, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, enabled)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapPrunerConfig(t *testing.T) {
	t.Parallel()

	_, err := mapPrunerConfig(&config.Config{})
	require.ErrorIs(t, err, storage.ErrDisabled)

	pc, err := mapPrunerConfig(&config.Config{Storage: &config.StorageConfig{Driver: "file"}})
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, pc.Retention)
	assert.Equal(t, config.DefaultPruneEvery, pc.Spec)
	_, err = pc.Parser.Parse(pc.Spec)
	require.NoError(t, err)

	pc, err = mapPrunerConfig(&config.Config{Storage: &config.StorageConfig{Driver: "file", Retention: "24h", PruneEvery: "0 3 * * *"}})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, pc.Retention)
	assert.Equal(t, "0 3 * * *", pc.Spec)

	_, err = mapPrunerConfig(&config.Config{Storage: &config.StorageConfig{Driver: "file", Retention: "a while"}})
	require.Error(t, err)
}

func TestMapQueueConfig(t *testing.T) {
	t.Parallel()

	qc, shutdown, err := mapQueueConfig(&config.Config{Queue: config.QueueConfig{
		MaxConcurrentJobs:   3,
		MaxQueueSize:        10,
		MaxQueueSizePerChat: 2,
		ShutdownTimeout:     "5s",
	}})
	require.NoError(t, err)
	assert.Equal(t, queue.Config{MaxConcurrentJobs: 3, MaxQueueSize: 10, MaxQueueSizePerChat: 2}, qc)
	assert.Equal(t, 5*time.Second, shutdown)

	_, shutdown, err = mapQueueConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, shutdown)

	_, _, err = mapQueueConfig(&config.Config{Queue: config.QueueConfig{ShutdownTimeout: "later"}})
	require.Error(t, err)
}

func TestMapLogConfigAndGroupTarget(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Telegram: config.TelegramConfig{GroupLog: " -100123 "},
		Logging: config.LoggingConfig{
			Level:    "debug",
			Console:  true,
			File:     config.LoggingFile{Enabled: true, Path: "bot.log"},
			Telegram: config.LoggingTelegram{Enabled: true, ThreadID: 7, MinLevel: "warn", RatePerSec: 2},
		},
	}
	assert.Equal(t, logx.Config{
		Level:    "debug",
		Console:  true,
		File:     logx.FileConfig{Enabled: true, Path: "bot.log"},
		Telegram: logx.TelegramConfig{Enabled: true, ThreadID: 7, MinLevel: "warn", RatePerSec: 2},
	}, mapLogConfig(cfg))

	id, ok := groupLogTarget(cfg)
	assert.True(t, ok)
	assert.Equal(t, int64(-100123), id)

	_, ok = groupLogTarget(&config.Config{})
	assert.False(t, ok)
	_, ok = groupLogTarget(&config.Config{Telegram: config.TelegramConfig{GroupLog: "ops"}})
	assert.False(t, ok)
}

func TestMapDebugConfig(t *testing.T) {
	t.Parallel()

	assert.Equal(t, debugsrv.Config{}, mapDebugConfig(&config.Config{}))
	assert.Equal(t, debugsrv.Config{Enabled: true, Addr: "127.0.0.1:7070", Token: "t", AllowInsecure: true},
		mapDebugConfig(&config.Config{Debug: &config.DebugConfig{Enabled: true, Addr: " 127.0.0.1:7070 ", Token: " t ", AllowInsecure: true}}))
}

func TestBuildPipeline(t *testing.T) {
	t.Parallel()

	temp := 0.7
	cfg := &config.Config{LLM: config.LLMConfig{Temperature: &temp}}
	p, err := buildPipeline(cfg, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, p)

	_, err = buildPipeline(&config.Config{Fetch: config.FetchConfig{Timeout: "quick"}}, logx.Nop())
	require.Error(t, err)
	_, err = buildPipeline(&config.Config{GitHub: config.GitHubConfig{Timeout: "-"}}, logx.Nop())
	require.Error(t, err)
}

func TestLogJobEventLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "debug")

	logJobEvent(log, eventbus.Event{Type: queue.EventFailed, Data: queue.JobEvent{
		ID: "j1", ChatID: 42, Kind: "summarize", Duration: time.Second, Error: "boom",
	}})
	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"job":"j1"`)
	assert.Contains(t, out, `"chat_id":42`)
	assert.Contains(t, out, `"err":"boom"`)

	buf.Reset()
	logJobEvent(log, eventbus.Event{Type: queue.EventSucceeded, Data: queue.JobEvent{ID: "j2", ChatID: 1}})
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.NotContains(t, buf.String(), `"err"`)

	buf.Reset()
	logJobEvent(log, eventbus.Event{Type: queue.EventQueued, Data: queue.JobEvent{ID: "j3", Pending: 2}})
	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), `"pending":2`)

	buf.Reset()
	logJobEvent(log, eventbus.Event{Type: "job.other", Data: "not a job event"})
	assert.Contains(t, buf.String(), `"type":"job.other"`)
}
