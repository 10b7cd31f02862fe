package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Queue    QueueConfig    `json:"queue"`
	LLM      LLMConfig      `json:"llm"`
	GitHub   GitHubConfig   `json:"github"`
	Fetch    FetchConfig    `json:"fetch"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Debug    *DebugConfig   `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// GroupLog is the chat ID (numeric string) receiving operator log lines.
	GroupLog string `json:"group_log"`
	// AllowedChatIDs restricts who may submit jobs. Empty allows everyone.
	AllowedChatIDs []int64 `json:"allowed_chat_ids,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// QueueConfig controls the per-chat job scheduler.
//
// Defaults (when fields are omitted/zero):
//   - max_concurrent_jobs: 2
//   - max_queue_size: 32
//   - max_queue_size_per_chat: 4
//   - shutdown_timeout: "10s"
//
// Negative values are rejected by Validate.
type QueueConfig struct {
	MaxConcurrentJobs   int    `json:"max_concurrent_jobs,omitempty"`
	MaxQueueSize        int    `json:"max_queue_size,omitempty"`
	MaxQueueSizePerChat int    `json:"max_queue_size_per_chat,omitempty"`
	ShutdownTimeout     string `json:"shutdown_timeout,omitempty"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type GitHubConfig struct {
	Token         string `json:"token"`
	DefaultRepo   string `json:"default_repo"`
	DefaultBranch string `json:"default_branch,omitempty"`
	AuthorName    string `json:"author_name,omitempty"`
	AuthorEmail   string `json:"author_email,omitempty"`
	APIURL        string `json:"api_url,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

type FetchConfig struct {
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	MaxBytes  int64  `json:"max_bytes,omitempty"`
}

// StorageConfig controls the optional job history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./websum.db", "retention": "168h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`
	// PruneEvery is a robfig/cron spec, e.g. "@every 1h" or "0 3 * * *".
	PruneEvery string `json:"prune_every,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (pprof, queue snapshot).
// Non-loopback addresses need a token unless allow_insecure is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
