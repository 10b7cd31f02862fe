package config

import (
	"os"
	"strings"
)

const (
	DefaultMaxConcurrentJobs   = 2
	DefaultMaxQueueSize        = 32
	DefaultMaxQueueSizePerChat = 4
	DefaultShutdownTimeout     = "10s"

	DefaultLLMBaseURL     = "https://api.openai.com/v1"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMTimeout     = "60s"
	DefaultLLMTemperature = 0.2

	DefaultBranch        = "main"
	DefaultGitHubAPIURL  = "https://api.github.com"
	DefaultGitHubTimeout = "30s"

	DefaultFetchTimeout   = "15s"
	DefaultFetchUserAgent = "WebSumToGitBot/0.1"
	DefaultFetchMaxBytes  = 5 << 20

	DefaultRetention  = "720h"
	DefaultPruneEvery = "@every 1h"
)

// ApplyDefaults fills zero values in place. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	q := &cfg.Queue
	if q.MaxConcurrentJobs == 0 {
		q.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if q.MaxQueueSize == 0 {
		q.MaxQueueSize = DefaultMaxQueueSize
	}
	if q.MaxQueueSizePerChat == 0 {
		q.MaxQueueSizePerChat = DefaultMaxQueueSizePerChat
	}
	if strings.TrimSpace(q.ShutdownTimeout) == "" {
		q.ShutdownTimeout = DefaultShutdownTimeout
	}

	l := &cfg.LLM
	if strings.TrimSpace(l.BaseURL) == "" {
		l.BaseURL = DefaultLLMBaseURL
	}
	if strings.TrimSpace(l.Model) == "" {
		l.Model = DefaultLLMModel
	}
	if strings.TrimSpace(l.Timeout) == "" {
		l.Timeout = DefaultLLMTimeout
	}
	if l.Temperature == nil {
		t := DefaultLLMTemperature
		l.Temperature = &t
	}

	g := &cfg.GitHub
	if strings.TrimSpace(g.DefaultBranch) == "" {
		g.DefaultBranch = DefaultBranch
	}
	if strings.TrimSpace(g.APIURL) == "" {
		g.APIURL = DefaultGitHubAPIURL
	}
	if strings.TrimSpace(g.Timeout) == "" {
		g.Timeout = DefaultGitHubTimeout
	}

	f := &cfg.Fetch
	if strings.TrimSpace(f.Timeout) == "" {
		f.Timeout = DefaultFetchTimeout
	}
	if strings.TrimSpace(f.UserAgent) == "" {
		f.UserAgent = DefaultFetchUserAgent
	}
	if f.MaxBytes == 0 {
		f.MaxBytes = DefaultFetchMaxBytes
	}

	if s := cfg.Storage; s != nil {
		if strings.TrimSpace(s.Retention) == "" {
			s.Retention = DefaultRetention
		}
		if strings.TrimSpace(s.PruneEvery) == "" {
			s.PruneEvery = DefaultPruneEvery
		}
	}
}

// envOverrides maps environment variables onto config fields. A non-empty
// variable wins over the file value so secrets can stay out of the file.
var envOverrides = []struct {
	key string
	set func(*Config, string)
}{
	{"TELEGRAM_BOT_TOKEN", func(c *Config, v string) { c.Telegram.Token = v }},
	{"OPENAI_API_KEY", func(c *Config, v string) { c.LLM.APIKey = v }},
	{"OPENAI_BASE_URL", func(c *Config, v string) { c.LLM.BaseURL = v }},
	{"OPENAI_MODEL", func(c *Config, v string) { c.LLM.Model = v }},
	{"GITHUB_TOKEN", func(c *Config, v string) { c.GitHub.Token = v }},
	{"DEFAULT_GITHUB_REPO", func(c *Config, v string) { c.GitHub.DefaultRepo = v }},
	{"DEFAULT_BRANCH", func(c *Config, v string) { c.GitHub.DefaultBranch = v }},
	{"DEFAULT_AUTHOR_NAME", func(c *Config, v string) { c.GitHub.AuthorName = v }},
	{"DEFAULT_AUTHOR_EMAIL", func(c *Config, v string) { c.GitHub.AuthorEmail = v }},
}

// ApplyEnv overlays environment variables using lookup (os.LookupEnv when nil).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, o := range envOverrides {
		if v, ok := lookup(o.key); ok && strings.TrimSpace(v) != "" {
			o.set(cfg, strings.TrimSpace(v))
		}
	}
}
