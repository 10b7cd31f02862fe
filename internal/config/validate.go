package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

var ErrInvalid = errors.New("invalid config")

// CronParser is the parser used for storage.prune_every. Exported so the
// scheduler that runs the job accepts exactly what Validate accepted.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a config after defaults and env overrides are applied.
// All problems are joined into one error wrapping ErrInvalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	positive := func(path string, v int) {
		if v <= 0 {
			add(fmt.Errorf("%s must be > 0 (got %d)", path, v))
		}
	}

	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		add(err)
	}
	if gl := strings.TrimSpace(cfg.Telegram.GroupLog); gl != "" {
		if _, err := strconv.ParseInt(gl, 10, 64); err != nil {
			add(fmt.Errorf("telegram.group_log: not a chat id: %q", gl))
		}
	}

	positive("queue.max_concurrent_jobs", cfg.Queue.MaxConcurrentJobs)
	positive("queue.max_queue_size", cfg.Queue.MaxQueueSize)
	positive("queue.max_queue_size_per_chat", cfg.Queue.MaxQueueSizePerChat)
	_, err := ParseDurationField("queue.shutdown_timeout", cfg.Queue.ShutdownTimeout)
	add(err)

	_, err = ParseDurationField("llm.timeout", cfg.LLM.Timeout)
	add(err)
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		add(fmt.Errorf("llm.temperature must be within [0,2] (got %g)", *t))
	}

	if repo := strings.TrimSpace(cfg.GitHub.DefaultRepo); repo != "" {
		if _, _, err := SplitRepo(repo); err != nil {
			add(fmt.Errorf("github.default_repo: %w", err))
		}
	}
	_, err = ParseDurationField("github.timeout", cfg.GitHub.Timeout)
	add(err)

	_, err = ParseDurationField("fetch.timeout", cfg.Fetch.Timeout)
	add(err)
	if cfg.Fetch.MaxBytes < 0 {
		add(fmt.Errorf("fetch.max_bytes must be >= 0 (got %d)", cfg.Fetch.MaxBytes))
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
		_, err = ParseDurationField("storage.retention", s.Retention)
		add(err)
		if spec := strings.TrimSpace(s.PruneEvery); spec != "" {
			if _, err := CronParser.Parse(spec); err != nil {
				add(fmt.Errorf("storage.prune_every: %w", err))
			}
		}
	}

	if d := cfg.Debug; d != nil && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(d.Addr)); err != nil {
			add(fmt.Errorf("debug.addr: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// SplitRepo splits "owner/repo" and rejects anything else.
func SplitRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository must look like owner/repo (got %q)", s)
	}
	return owner, repo, nil
}
