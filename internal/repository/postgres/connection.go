package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/pkg/retry"
)

// NewPool creates a PostgreSQL connection pool and waits for the database to
// answer a ping, retrying with backoff while it starts up.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	attempts := cfg.ConnectRetries
	if attempts == 0 {
		attempts = 5
	}
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		OnRetry: func(attempt uint, err error) {
			logger.Warn().Err(err).Uint("attempt", attempt+1).Msg("database not ready, retrying")
		},
	}, func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
