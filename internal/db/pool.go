package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tunes the player-store pool. Zero values pick the defaults.
type Options struct {
	MaxConns     int32
	PingAttempts int
	PingBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 10
	}
	if o.PingAttempts <= 0 {
		o.PingAttempts = 5
	}
	if o.PingBackoff <= 0 {
		o.PingBackoff = time.Second
	}
	return o
}

// Connect opens a pool and waits for the database to answer a ping, retrying
// with linear backoff while it starts up.
func Connect(ctx context.Context, databaseURL string, opts Options, logger *slog.Logger) (*pgxpool.Pool, error) {
	opts = opts.withDefaults()
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt >= opts.PingAttempts {
			break
		}
		if logger != nil {
			logger.Warn("db not ready", "attempt", attempt, "err", err)
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * opts.PingBackoff):
		}
	}
	pool.Close()
	return nil, fmt.Errorf("ping db: %w", err)
}
