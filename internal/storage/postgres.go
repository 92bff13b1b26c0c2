package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	logx "sage/pkg/logx"
)

//go:embed schema_postgres.sql
var postgresSchema string

const postgresTimeout = 5 * time.Second

type postgresStore struct {
	db      *pgxpool.Pool
	timeout time.Duration
	log     logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	s := &postgresStore{db: pool, timeout: postgresTimeout, log: log}
	pingCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping (%s): %w", redactDSN(dsn), err)
	}
	if _, err := pool.Exec(pingCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Debug("postgres store opened", logx.String("dsn", redactDSN(dsn)))
	return s, nil
}

func (s *postgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *postgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *postgresStore) Subscriptions(ctx context.Context) ([]Subscription, error) {
	const listSQL = `
		SELECT category, destination, created_at
		FROM subscriptions
		ORDER BY created_at, category, destination
	`
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.Query(ctx, listSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.Category, &sub.Destination, &sub.CreatedAt); err != nil {
			return nil, err
		}
		sub.CreatedAt = sub.CreatedAt.UTC()
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *postgresStore) Subscribe(ctx context.Context, category, destination string) (bool, error) {
	c, d, err := normalize(category, destination)
	if err != nil {
		return false, err
	}
	const insertSQL = `
		INSERT INTO subscriptions (category, destination, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (category, destination) DO NOTHING
	`
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(ctx, insertSQL, c, d)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) Unsubscribe(ctx context.Context, category, destination string) (bool, error) {
	c, d, err := normalize(category, destination)
	if err != nil {
		return false, err
	}
	const deleteSQL = `DELETE FROM subscriptions WHERE category = $1 AND destination = $2`
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(ctx, deleteSQL, c, d)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	rest := dsn[start+len(marker):]
	at := strings.Index(rest, "@")
	if at < 0 {
		return dsn
	}
	creds := rest[:at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return dsn[:start+len(marker)] + creds + rest[at:]
}
