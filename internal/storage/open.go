package storage

import (
	"context"
	"errors"
	"strings"

	logx "sage/pkg/logx"
)

// Store is the persistence API for subscriptions.
type Store interface {
	// Subscriptions returns every subscription ordered by creation time.
	Subscriptions(ctx context.Context) ([]Subscription, error)
	// Subscribe adds a mapping; added is false if it already existed.
	Subscribe(ctx context.Context, category, destination string) (added bool, err error)
	// Unsubscribe removes a mapping; removed is false if it didn't exist.
	Unsubscribe(ctx context.Context, category, destination string) (removed bool, err error)
	Close() error
}

// Open initializes the configured store.
// It returns ErrDisabled if storage is disabled.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
