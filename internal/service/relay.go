package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cassiomorais/paygate/internal/domain/outbox"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/pkg/retry"
)

// OutboxRelay moves pending outbox entries to the event publisher.
type OutboxRelay struct {
	outbox    outbox.Relay
	txManager TransactionManager
	publisher EventPublisher
	batchSize int
	retry     retry.Config
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewOutboxRelay(
	outboxRepo outbox.Relay,
	txManager TransactionManager,
	publisher EventPublisher,
	batchSize int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 50
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &OutboxRelay{
		outbox:    outboxRepo,
		txManager: txManager,
		publisher: publisher,
		batchSize: batchSize,
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		metrics: metrics,
		logger:  logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// RelayOnce publishes one batch. Entries that still fail after the retries
// are marked failed and picked up again until they run out of attempts.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (published, failed int, err error) {
	err = r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outbox.GetPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			msgID, pubErr := retry.DoWithResult(ctx, r.retry, func() (string, error) {
				return r.publisher.Publish(ctx, entry)
			})
			if pubErr != nil {
				failed++
				r.metrics.OutboxPublished.WithLabelValues("failed").Inc()
				r.logger.Error().Err(pubErr).Str("outbox_id", entry.ID.String()).Msg("publish outbox entry")
				if err := r.outbox.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if err := r.outbox.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			published++
			r.metrics.OutboxPublished.WithLabelValues("published").Inc()
			r.logger.Debug().Str("outbox_id", entry.ID.String()).Str("message_id", msgID).Msg("outbox entry published")
		}
		return nil
	})
	return published, failed, err
}
