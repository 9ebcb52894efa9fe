// Package database opens the Postgres pool that backs policy storage and the
// pgvector index.
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPingAttempts   = 5
	defaultPingBackoff    = 500 * time.Millisecond
)

// Config holds pool settings. Zero values keep the pgxpool defaults, except
// for the ping retry which defaults to five attempts.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	PingAttempts    int
	PingBackoff     time.Duration
}

// NewPool parses cfg.URL, opens a pool and waits until Postgres answers a
// ping. Containers started alongside the server often need a few seconds, so
// the ping is retried with a doubling backoff.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pingWithRetry(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}

	log.Printf("database: connected to %s:%d/%s (max_conns=%d)",
		poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Port, poolCfg.ConnConfig.Database, poolCfg.MaxConns)
	return pool, nil
}

func poolConfig(cfg Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	} else if poolCfg.ConnConfig.ConnectTimeout == 0 {
		poolCfg.ConnConfig.ConnectTimeout = defaultConnectTimeout
	}
	return poolCfg, nil
}

func pingWithRetry(ctx context.Context, pool *pgxpool.Pool, cfg Config) error {
	attempts := cfg.PingAttempts
	if attempts <= 0 {
		attempts = defaultPingAttempts
	}
	backoff := cfg.PingBackoff
	if backoff <= 0 {
		backoff = defaultPingBackoff
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Printf("database: ping attempt %d/%d failed, retrying in %s: %v", i, attempts, backoff, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, err)
}
