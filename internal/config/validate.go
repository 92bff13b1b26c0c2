package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sage/internal/transport"
	logx "sage/pkg/logx"
)

// Validate checks every section and returns all problems joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) time.Duration {
		d, err := ParseDurationField(path, raw)
		add(err)
		return d
	}

	// telegram
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := transport.ParseTarget(g); err != nil {
			add(fmt.Errorf("telegram.group_log: %w", err))
		}
	}

	// logging
	if l := cfg.Logging.Level; l != "" && !logx.ValidLevel(l) {
		add(fmt.Errorf("logging.level: unknown level %q", l))
	}
	if l := cfg.Logging.Telegram.MinLevel; l != "" && !logx.ValidLevel(l) {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", l))
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		add(errors.New("logging.telegram.rate_per_sec must be >= 0"))
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.GroupLog) == "" {
		add(errors.New("logging.telegram.enabled requires telegram.group_log"))
	}

	// catalog
	if b := strings.TrimSpace(cfg.Catalog.BaseURL); b != "" {
		u, err := url.Parse(b)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(fmt.Errorf("catalog.base_url: invalid url %q", b))
		}
	}
	dur("catalog.timeout", cfg.Catalog.Timeout)
	if cfg.Catalog.RatePerMin < 0 {
		add(errors.New("catalog.rate_per_min must be >= 0"))
	}

	// broadcast
	if d := dur("broadcast.interval", cfg.Broadcast.Interval); d > 0 && d < time.Second {
		add(errors.New("broadcast.interval must be at least 1s"))
	}
	dur("broadcast.send_timeout", cfg.Broadcast.SendTimeout)
	if cfg.Broadcast.Concurrency < 0 {
		add(errors.New("broadcast.concurrency must be >= 0"))
	}
	if cfg.Broadcast.RatePerSec < 0 {
		add(errors.New("broadcast.rate_per_sec must be >= 0"))
	}
	if cfg.Broadcast.HistorySize < 0 {
		add(errors.New("broadcast.history_size must be >= 0"))
	}
	switch cfg.Broadcast.ParseMode {
	case "", "none", "Markdown", "MarkdownV2", "HTML":
	default:
		add(fmt.Errorf("broadcast.parse_mode: unsupported %q", cfg.Broadcast.ParseMode))
	}

	// storage
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "postgres", "postgresql", "pgx":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(fmt.Errorf("storage.path is required for driver %q", cfg.Storage.Driver))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	// subscribers
	dur("subscribers.refresh_every", cfg.Subscribers.RefreshEvery)

	return errors.Join(errs...)
}
