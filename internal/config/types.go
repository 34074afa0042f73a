package config

// Config is the full bot configuration. All durations are Go duration
// strings (e.g. "30s", "1m", "720h").
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Database   DatabaseConfig   `json:"database"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Session    SessionConfig    `json:"session,omitempty"`
	Retention  RetentionConfig  `json:"retention,omitempty"`

	// Timezone is the IANA zone used to interpret user-entered dates and
	// times. Defaults to Asia/Tashkent.
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	// Token may also come from the BOT_TOKEN environment variable, which
	// wins over the file value.
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound sends. 0 keeps the Bot API default of 30.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DatabaseConfig selects the backend. URL (or the DATABASE_URL environment
// variable) switches to PostgreSQL; otherwise SQLite at Path is used.
type DatabaseConfig struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
}

type DispatcherConfig struct {
	// Interval between due scans. Defaults to "1m".
	Interval string `json:"interval,omitempty"`
	// QuarantineOrphans retires due reminders whose owner row is missing
	// instead of retrying them every scan.
	QuarantineOrphans bool `json:"quarantine_orphans,omitempty"`
}

type SessionConfig struct {
	// TTL evicts idle dialogue sessions. "0s" (the default) keeps them
	// until restart.
	TTL string `json:"ttl,omitempty"`
}

type RetentionConfig struct {
	// MaxAge enables a daily purge of delivered one-time reminders older
	// than this. "0s" (the default) keeps history forever.
	MaxAge string `json:"max_age,omitempty"`
}
