package config

import (
	"reflect"
	"sort"
	"strings"

	logx "websum/pkg/logx"
)

// Change describes a config reload.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	// Attrs are safe to log; secrets are reported only as *_set booleans.
	Attrs []logx.Field
	// RestartRequired lists changed sections that are only read at startup.
	RestartRequired []string
}

// Has reports whether section changed.
func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Attrs = append(ch.Attrs, attrs...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := ot.Token != nt.Token
	if tokenChanged ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		!reflect.DeepEqual(ot.AllowedChatIDs, nt.AllowedChatIDs) {
		restart := tokenChanged || strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout)
		mark("telegram", restart,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
			logx.Int("telegram.allowed_chats", len(nt.AllowedChatIDs)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		nl := newCfg.Logging
		mark("logging", false,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.telegram_enabled", nl.Telegram.Enabled),
		)
	}

	if oldCfg.Queue != newCfg.Queue {
		nq := newCfg.Queue
		mark("queue", true,
			logx.Int("queue.max_concurrent_jobs", nq.MaxConcurrentJobs),
			logx.Int("queue.max_queue_size", nq.MaxQueueSize),
			logx.Int("queue.max_queue_size_per_chat", nq.MaxQueueSizePerChat),
			logx.String("queue.shutdown_timeout", nq.ShutdownTimeout),
		)
	}

	ol, nl := oldCfg.LLM, newCfg.LLM
	if ol.APIKey != nl.APIKey || ol.BaseURL != nl.BaseURL || ol.Model != nl.Model ||
		ol.Timeout != nl.Timeout || !reflect.DeepEqual(ol.Temperature, nl.Temperature) {
		mark("llm", true,
			logx.String("llm.base_url", nl.BaseURL),
			logx.String("llm.model", nl.Model),
			logx.Bool("llm.api_key_set", nl.APIKey != ""),
		)
	}

	if oldCfg.GitHub != newCfg.GitHub {
		ng := newCfg.GitHub
		mark("github", true,
			logx.String("github.default_repo", ng.DefaultRepo),
			logx.String("github.default_branch", ng.DefaultBranch),
			logx.Bool("github.token_set", ng.Token != ""),
		)
	}

	if oldCfg.Fetch != newCfg.Fetch {
		nf := newCfg.Fetch
		mark("fetch", true,
			logx.String("fetch.timeout", nf.Timeout),
			logx.Int64("fetch.max_bytes", nf.MaxBytes),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if oldS != newS {
		mark("storage", true,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.String("storage.retention", newS.Retention),
			logx.String("storage.prune_every", newS.PruneEvery),
		)
	}

	var oldD, newD DebugConfig
	if oldCfg.Debug != nil {
		oldD = *oldCfg.Debug
	}
	if newCfg.Debug != nil {
		newD = *newCfg.Debug
	}
	if oldD != newD {
		mark("debug", false,
			logx.Bool("debug.enabled", newD.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newD.Addr)),
			logx.Bool("debug.token_set", newD.Token != ""),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}
