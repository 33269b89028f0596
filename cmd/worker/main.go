package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cassiomorais/paygate/internal/bootstrap"
	infraRedis "github.com/cassiomorais/paygate/internal/infrastructure/redis"
	"github.com/cassiomorais/paygate/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "paygate-worker", "paygate_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker

	sweeper := service.NewSweeper(
		app.Transactions,
		app.Reconciler,
		infraRedis.NewLocker(app.Redis, workerCfg.LockTTL),
		service.SweepConfig{
			Grace:       workerCfg.SweepGrace,
			MaxAge:      workerCfg.SweepMaxAge,
			BatchSize:   workerCfg.SweepBatchSize,
			Concurrency: workerCfg.SweepConcurrency,
		},
		app.Metrics,
		app.Logger,
	)

	publisher := infraRedis.NewStatusEventPublisher(app.Redis, workerCfg.EventStream)
	relay := service.NewOutboxRelay(app.Outbox, app.TxManager, publisher, workerCfg.OutboxBatchSize, app.Metrics, app.Logger)

	app.Logger.Info().
		Dur("sweep_interval", workerCfg.SweepInterval).
		Dur("outbox_poll_interval", workerCfg.OutboxPollInterval).
		Str("stream", publisher.Stream()).
		Msg("Worker started")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Poll sweep for transactions whose webhooks never arrived.
	g.Go(func() error {
		return runEvery(gCtx, workerCfg.SweepInterval, func(ctx context.Context) {
			// The sweeper logs its own report.
			if _, err := sweeper.Run(ctx); err != nil {
				app.Logger.Error().Err(err).Msg("Sweep failed")
			}
		})
	})

	// 2. Outbox relay to the status event stream.
	g.Go(func() error {
		return runEvery(gCtx, workerCfg.OutboxPollInterval, func(ctx context.Context) {
			relayOnce(ctx, app.Logger, relay)
		})
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runEvery calls fn on every tick until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		fn(ctx)
	}
}

func relayOnce(ctx context.Context, logger zerolog.Logger, relay *service.OutboxRelay) {
	published, failed, err := relay.RelayOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Outbox relay error")
		return
	}
	if published > 0 || failed > 0 {
		logger.Debug().Int("published", published).Int("failed", failed).Msg("Outbox relayed")
	}
}
