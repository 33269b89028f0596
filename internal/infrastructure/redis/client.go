package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/pkg/retry"
)

// NewClient creates a Redis client and waits until the server answers PING.
func NewClient(ctx context.Context, cfg *config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	attempts := cfg.ConnectRetries
	if attempts == 0 {
		attempts = 5
	}
	delay := cfg.ConnectRetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: delay,
		MaxDelay:     10 * time.Second,
		OnRetry: func(attempt uint, err error) {
			logger.Warn().Err(err).Uint("attempt", attempt+1).Str("addr", cfg.RedisAddr()).Msg("redis not ready, retrying")
		},
	}, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", attempts, err)
	}

	return client, nil
}
