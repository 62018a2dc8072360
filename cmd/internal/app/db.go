package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"huddle/cmd/internal/migrations"
)

// NewDBPool builds a pgxpool and waits for the database to accept connections,
// retrying with exponential backoff. Migrations run only when cfg.DBMigrate is set.
func NewDBPool(ctx context.Context, cfg Config, log Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	retries := cfg.DBConnectRetries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.WithCappedDuration(5*time.Second, retry.NewExponential(250*time.Millisecond))
	backoff = retry.WithMaxRetries(uint64(retries), backoff)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := PingDB(ctx, pool, 3*time.Second); err != nil {
			log.Warn("db.ping.fail", "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: unreachable after %d attempts: %w", attempt, err)
	}

	if cfg.DBMigrate {
		n, err := migrations.Up(ctx, pool, cfg.DBSchema)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.migrate", "schema", cfg.DBSchema, "applied", n)
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
