package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"websum/internal/config"
	"websum/internal/observability/debugsrv"
	"websum/internal/storage"
	"websum/internal/summarize"
	"websum/internal/task/queue"
	logx "websum/pkg/logx"
)

func mapQueueConfig(cfg *config.Config) (queue.Config, time.Duration, error) {
	q := cfg.Queue
	shutdown, err := config.ParseDurationOrDefault("queue.shutdown_timeout", q.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return queue.Config{}, 0, err
	}
	return queue.Config{
		MaxConcurrentJobs:   q.MaxConcurrentJobs,
		MaxQueueSize:        q.MaxQueueSize,
		MaxQueueSizePerChat: q.MaxQueueSizePerChat,
	}, shutdown, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapPrunerConfig(cfg *config.Config) (storage.PrunerConfig, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.PrunerConfig{}, storage.ErrDisabled
	}
	retention, err := config.ParseDurationOrDefault("storage.retention", sc.Retention, 720*time.Hour)
	if err != nil {
		return storage.PrunerConfig{}, err
	}
	spec := strings.TrimSpace(sc.PruneEvery)
	if spec == "" {
		spec = config.DefaultPruneEvery
	}
	return storage.PrunerConfig{Retention: retention, Spec: spec, Parser: config.CronParser}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	if cfg == nil || cfg.Debug == nil {
		return debugsrv.Config{}
	}
	d := cfg.Debug
	return debugsrv.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
}

// groupLogTarget parses telegram.group_log. ok is false when it is unset.
func groupLogTarget(cfg *config.Config) (chatID int64, ok bool) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// buildPipeline wires the fetch, LLM and GitHub clients from cfg.
func buildPipeline(cfg *config.Config, log logx.Logger) (*summarize.Pipeline, error) {
	fetchTimeout, err := config.ParseDurationOrDefault("fetch.timeout", cfg.Fetch.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	llmTimeout, err := config.ParseDurationOrDefault("llm.timeout", cfg.LLM.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	ghTimeout, err := config.ParseDurationOrDefault("github.timeout", cfg.GitHub.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	temperature := config.DefaultLLMTemperature
	if cfg.LLM.Temperature != nil {
		temperature = *cfg.LLM.Temperature
	}

	fetcher := summarize.NewFetcher(summarize.FetchConfig{
		Timeout:   fetchTimeout,
		UserAgent: cfg.Fetch.UserAgent,
		MaxBytes:  cfg.Fetch.MaxBytes,
	}, nil)
	llm := summarize.NewLLMClient(summarize.LLMConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     llmTimeout,
		Temperature: temperature,
	}, nil)
	gh := summarize.NewGitHubClient(summarize.GitHubConfig{
		Token:         cfg.GitHub.Token,
		APIURL:        cfg.GitHub.APIURL,
		DefaultBranch: cfg.GitHub.DefaultBranch,
		AuthorName:    cfg.GitHub.AuthorName,
		AuthorEmail:   cfg.GitHub.AuthorEmail,
		Timeout:       ghTimeout,
		UserAgent:     cfg.Fetch.UserAgent,
	}, nil)
	return summarize.NewPipeline(fetcher, llm, gh, log), nil
}
