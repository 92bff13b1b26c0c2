package app

import (
	"context"
	"strings"
	"time"

	"sage/internal/broadcast"
	"sage/internal/catalog"
	"sage/internal/config"
	"sage/internal/storage"
	"sage/internal/transport"
	"sage/internal/transport/telegram"
	logx "sage/pkg/logx"
)

const userAgent = "sage/1 (+bestseller quote broadcaster)"

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if t, err := transport.ParseTarget(cfg.Telegram.GroupLog); err == nil {
		if cfg.Logging.Telegram.ThreadID > 0 {
			t.ThreadID = cfg.Logging.Telegram.ThreadID
		}
		lc.Chat.Target = t
	} else {
		lc.Chat.Enabled = false
	}
	return lc
}

func mapTelegramConfig(cfg *config.Config, sec config.Secrets) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: sec.BotTokenFor(cfg), PollTimeout: poll}, nil
}

func mapCatalogConfig(cfg *config.Config, sec config.Secrets) (catalog.Config, error) {
	timeout, err := config.ParseDurationField("catalog.timeout", cfg.Catalog.Timeout)
	if err != nil {
		return catalog.Config{}, err
	}
	ua := strings.TrimSpace(cfg.Catalog.UserAgent)
	if ua == "" {
		ua = userAgent
	}
	return catalog.Config{
		APIKey:     sec.CatalogToken,
		BaseURL:    cfg.Catalog.BaseURL,
		Timeout:    timeout,
		UserAgent:  ua,
		RatePerMin: cfg.Catalog.RatePerMin,
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	bc := cfg.Broadcast
	interval, err := config.ParseDurationOrDefault("broadcast.interval", bc.Interval, broadcast.DefaultInterval)
	if err != nil {
		return broadcast.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("broadcast.send_timeout", bc.SendTimeout)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		Interval:    interval,
		Concurrency: bc.Concurrency,
		RatePerSec:  bc.RatePerSec,
		SendTimeout: sendTimeout,
		RunOnStart:  bc.RunOnStart,
		HistorySize: bc.HistorySize,
		ParseMode:   bc.ParseMode,
	}, nil
}

func mapStorageConfig(cfg *config.Config, sec config.Secrets) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		DSN:         sec.DSNFor(cfg),
		BusyTimeout: busy,
	}, nil
}

func mapRefreshEvery(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("subscribers.refresh_every", cfg.Subscribers.RefreshEvery, time.Minute)
}

// NewCatalogClient builds the catalog client from config and secrets.
func NewCatalogClient(cfg *config.Config, sec config.Secrets, log logx.Logger) (*catalog.Client, error) {
	cc, err := mapCatalogConfig(cfg, sec)
	if err != nil {
		return nil, err
	}
	return catalog.New(cc, catalog.WithLogger(log.With(logx.String("comp", "catalog"))))
}

// OpenStore opens the configured subscription store.
func OpenStore(ctx context.Context, cfg *config.Config, sec config.Secrets, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg, sec)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
}
