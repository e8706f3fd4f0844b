package config

// Config is the on-disk configuration (JSON or YAML). Duration fields are Go
// duration strings ("500ms", "15s", "1m").
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Feed       FeedConfig       `json:"feed"`
	Tracker    TrackerConfig    `json:"tracker"`
	Render     RenderConfig     `json:"render"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Storage    StorageConfig    `json:"storage"`
	HTTP       HTTPConfig       `json:"http"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChat is "<chat_id>" or "<chat_id>:<thread_id>".
	LogChat     string `json:"log_chat,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// FeedConfig points at the live match data provider.
//
// Defaults: api_key_header "HockeyData-API-Key", cache_ttl "15s", timeout "10s".
type FeedConfig struct {
	Host         string   `json:"host"`
	APIKey       string   `json:"api_key"`
	APIKeyHeader string   `json:"api_key_header,omitempty"`
	CacheTTL     string   `json:"cache_ttl,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
	TeamNames    []string `json:"team_names"`
	DisplayName  string   `json:"display_name"`
}

// TrackerConfig controls the poll loop.
//
// Schedule accepts anything the task scheduler parses: "5s", "@every 5s",
// a cron expression, or "HH:MM".
type TrackerConfig struct {
	Schedule        string `json:"schedule,omitempty"`
	TickTimeout     string `json:"tick_timeout,omitempty"`
	DefaultLanguage string `json:"default_language,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	Presence        bool   `json:"presence"`
}

type RenderConfig struct {
	// LocalesDir optionally overrides or extends the embedded catalogs with
	// <lang>.yaml files.
	LocalesDir string `json:"locales_dir,omitempty"`
	// Media maps a notification kind (match_started, match_ended, goal_us,
	// goal_them, next_match) to an image URL.
	Media map[string]string `json:"media,omitempty"`
}

// DispatchConfig controls notification fanout.
//
// Defaults: workers 8, rate_per_sec 20, retry_max 2, retry_base "500ms",
// send_timeout "10s".
type DispatchConfig struct {
	Workers     int    `json:"workers,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
	RetryBase   string `json:"retry_base,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./matchbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@db/matchbot?sslmode=disable" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HTTPConfig controls the status API. Prefer a loopback address.
type HTTPConfig struct {
	Enabled        bool     `json:"enabled"`
	Addr           string   `json:"addr,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	// StaleAfter makes /healthz report 503 when the last good tick is
	// older than this. Empty disables the check.
	StaleAfter string `json:"stale_after,omitempty"`
	// Pprof exposes /debug/pprof. Keep it off on public addresses.
	Pprof bool `json:"pprof,omitempty"`
}
