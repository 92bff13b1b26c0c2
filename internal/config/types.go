package config

// Config is the on-disk configuration (JSON or YAML). Secrets are not part
// of it; see Secrets.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "24h").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Catalog     CatalogConfig     `json:"catalog"`
	Broadcast   BroadcastConfig   `json:"broadcast"`
	Storage     StorageConfig     `json:"storage"`
	Subscribers SubscribersConfig `json:"subscribers"`
}

type TelegramConfig struct {
	// Token is used only when API_TOKEN is not set.
	Token    string `json:"token,omitempty"`
	GroupLog string `json:"group_log"`
	// PollTimeout defaults to "10s".
	PollTimeout string `json:"poll_timeout"`
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

// LoggingTelegram forwards WARN+ records to telegram.group_log.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// CatalogConfig controls the bestseller API client.
//
// Defaults:
//   - base_url: https://api.nytimes.com/svc/books/v3
//   - timeout: "15s"
//   - rate_per_min: 0 (unlimited)
type CatalogConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// BroadcastConfig controls the quote broadcast.
//
// Defaults:
//   - interval: "24h"
//   - concurrency: 4
//   - rate_per_sec: 10
//   - send_timeout: "30s"
//   - history_size: 50
//   - parse_mode: "Markdown" ("none" for plain text)
type BroadcastConfig struct {
	Interval    string `json:"interval"`
	Concurrency int    `json:"concurrency,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	RunOnStart  bool   `json:"run_on_start"`
	HistorySize int    `json:"history_size,omitempty"`
	ParseMode   string `json:"parse_mode,omitempty"`
}

// StorageConfig selects the subscription store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/sage.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`                 // file | sqlite | postgres
	Path        string `json:"path,omitempty"`         // file, sqlite
	DSN         string `json:"dsn,omitempty"`          // postgres; DB_DSN overrides
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type SubscribersConfig struct {
	// RefreshEvery defaults to "1m".
	RefreshEvery string `json:"refresh_every"`
}
