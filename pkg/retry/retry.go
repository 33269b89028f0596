package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// RetryIf limits retries to errors it accepts. nil retries every error.
	RetryIf func(error) bool
	// OnRetry is called before each new attempt with the attempt number
	// (starting at 0) and the error that triggered it.
	OnRetry func(attempt uint, err error)
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Do executes a function with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error) error {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if cfg.RetryIf != nil {
		opts = append(opts, retry.RetryIf(cfg.RetryIf))
	}
	if cfg.OnRetry != nil {
		opts = append(opts, retry.OnRetry(cfg.OnRetry))
	}
	return retry.Do(fn, opts...)
}

// DoWithResult executes a function with exponential backoff retry and returns a result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
