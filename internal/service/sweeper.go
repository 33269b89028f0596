package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
)

const sweepLockName = "sweep"

type SweepConfig struct {
	// Grace is how old a transaction must be before it is polled.
	Grace time.Duration
	// MaxAge stops polling transactions that never settled. Zero disables
	// the bound.
	MaxAge      time.Duration
	BatchSize   int
	Concurrency int
}

type SweepReport struct {
	Skipped bool
	Scanned int
	Changed int
	Failed  int
}

// Sweeper polls non-terminal transactions whose webhooks may have been
// lost.
type Sweeper struct {
	transactions transaction.Repository
	reconciler   *Reconciler
	locker       Locker
	cfg          SweepConfig
	metrics      *observability.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

// NewSweeper builds a Sweeper. locker may be nil for a single instance.
func NewSweeper(
	transactions transaction.Repository,
	reconciler *Reconciler,
	locker Locker,
	cfg SweepConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Sweeper{
		transactions: transactions,
		reconciler:   reconciler,
		locker:       locker,
		cfg:          cfg,
		metrics:      metrics,
		logger:       logger.With().Str("component", "sweeper").Logger(),
		now:          time.Now,
	}
}

// Run performs one sweep. It is skipped when another instance holds the
// sweep lock.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockName)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Debug().Msg("sweep lock held elsewhere, skipping")
			return &SweepReport{Skipped: true}, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Msg("release sweep lock")
			}
		}()
	}

	now := s.now().UTC()
	before := now.Add(-s.cfg.Grace)
	filter := transaction.ListFilter{
		Statuses:      []status.Status{status.Pending, status.Processing, status.Unknown},
		CreatedBefore: &before,
		Limit:         s.cfg.BatchSize,
	}
	if s.cfg.MaxAge > 0 {
		after := now.Add(-s.cfg.MaxAge)
		filter.CreatedAfter = &after
	}

	stale, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	var changed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, tx := range stale {
		g.Go(func() error {
			res, err := s.reconciler.PollTransaction(ctx, tx.ID)
			switch {
			case err != nil:
				failed.Add(1)
				s.metrics.SweepPolled.WithLabelValues("failed").Inc()
			case res.Changed:
				changed.Add(1)
				s.metrics.SweepPolled.WithLabelValues("changed").Inc()
			default:
				s.metrics.SweepPolled.WithLabelValues("unchanged").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &SweepReport{Scanned: len(stale), Changed: int(changed.Load()), Failed: int(failed.Load())}
	level := zerolog.InfoLevel
	if report.Scanned == 0 {
		level = zerolog.DebugLevel
	}
	s.logger.WithLevel(level).
		Int("scanned", report.Scanned).
		Int("changed", report.Changed).
		Int("failed", report.Failed).
		Msg("sweep finished")
	return report, nil
}
