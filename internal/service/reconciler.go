package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/outbox"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/providers"
)

// Webhook outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeDropped  = "dropped"
	OutcomeRejected = "rejected"
)

// WebhookOutcome reports what a webhook did to local state.
type WebhookOutcome struct {
	Provider string
	Event    *providers.WebhookEvent
	Outcome  string
	RecordID uuid.UUID
	Status   status.Status
	Changed  bool
	Polled   bool
}

// PollResult is the remote status of a transaction. Transaction is nil when
// the reference has no local record.
type PollResult struct {
	Transaction    *transaction.Transaction
	Status         status.Status
	ProviderStatus string
	Details        map[string]any
	Changed        bool
}

// Reconciler is the only writer of status on existing records. Webhooks
// and polls both end in apply; the last write wins.
type Reconciler struct {
	registry      *providers.Registry
	transactions  transaction.Repository
	subscriptions subscription.Repository
	outbox        outbox.Writer
	txManager     TransactionManager
	metrics       *observability.Metrics
	logger        zerolog.Logger
	tracer        trace.Tracer
}

func NewReconciler(
	registry *providers.Registry,
	transactions transaction.Repository,
	subscriptions subscription.Repository,
	outboxRepo outbox.Writer,
	txManager TransactionManager,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Reconciler {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Reconciler{
		registry:      registry,
		transactions:  transactions,
		subscriptions: subscriptions,
		outbox:        outboxRepo,
		txManager:     txManager,
		metrics:       metrics,
		logger:        logger.With().Str("component", "reconciler").Logger(),
		tracer:        otel.Tracer("paygate/service"),
	}
}

// HandleWebhook verifies, decodes and applies a provider notification.
// Notifications for records that do not exist locally are dropped and
// acknowledged; nothing is created.
func (r *Reconciler) HandleWebhook(ctx context.Context, providerKey string, payload []byte, header http.Header) (*WebhookOutcome, error) {
	key := providers.NormalizeKey(providerKey)
	ctx, span := r.tracer.Start(ctx, "Reconciler.HandleWebhook", trace.WithAttributes(attribute.String("provider", key)))
	defer span.End()

	out, err := r.handleWebhook(ctx, key, payload, header)
	outcome := OutcomeRejected
	if out != nil {
		outcome = out.Outcome
	}
	r.metrics.WebhooksTotal.WithLabelValues(key, outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn().Err(err).Str("provider", key).Msg("webhook rejected")
		return nil, err
	}

	r.logger.Info().
		Str("provider", key).
		Str("event_type", out.Event.EventType).
		Str("reference", out.Event.Reference).
		Str("outcome", out.Outcome).
		Str("status", string(out.Status)).
		Bool("changed", out.Changed).
		Msg("webhook handled")
	return out, nil
}

func (r *Reconciler) handleWebhook(ctx context.Context, key string, payload []byte, header http.Header) (*WebhookOutcome, error) {
	adapter, err := r.registry.Get(key)
	if err != nil {
		return nil, err
	}

	verifier, ok, err := r.registry.Verifier(key)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := verifier.VerifyWebhook(payload, header); err != nil {
			return nil, err
		}
	}

	ev, err := adapter.ProcessWebhook(payload)
	if err != nil {
		return nil, err
	}

	out := &WebhookOutcome{Provider: key, Event: ev, Status: ev.Status}
	switch ev.Record {
	case providers.RecordTransaction:
		return r.webhookTransaction(ctx, adapter, out)
	case providers.RecordSubscription:
		return r.webhookSubscription(ctx, out)
	default:
		return nil, domainErrors.NewUnsupportedEventError(key, ev.EventType)
	}
}

func (r *Reconciler) webhookTransaction(ctx context.Context, adapter providers.Adapter, out *WebhookOutcome) (*WebhookOutcome, error) {
	tx, err := r.transactions.GetByProviderRef(ctx, out.Provider, out.Event.Reference)
	if errors.Is(err, domainErrors.ErrTransactionNotFound) && out.Event.LocalReference != "" {
		tx, err = r.transactionByLocalReference(ctx, out.Provider, out.Event.LocalReference)
	}
	if errors.Is(err, domainErrors.ErrTransactionNotFound) {
		out.Outcome = OutcomeDropped
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.RecordID = tx.ID
	out.Outcome = OutcomeApplied

	if out.Event.RequiresPoll {
		res, err := r.poll(ctx, adapter, tx, outbox.SourceWebhook)
		if err != nil {
			return nil, err
		}
		out.Polled = true
		out.Status = res.Status
		out.Changed = res.Changed
		return out, nil
	}

	changed, err := r.ApplyTransactionStatus(ctx, tx, out.Event.Status, outbox.SourceWebhook)
	if err != nil {
		return nil, err
	}
	out.Changed = changed
	return out, nil
}

// transactionByLocalReference resolves an echoed local id. The record must
// belong to the provider that sent the notification.
func (r *Reconciler) transactionByLocalReference(ctx context.Context, provider, ref string) (*transaction.Transaction, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, domainErrors.ErrTransactionNotFound
	}
	tx, err := r.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Provider != provider {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return tx, nil
}

func (r *Reconciler) webhookSubscription(ctx context.Context, out *WebhookOutcome) (*WebhookOutcome, error) {
	sub, err := r.subscriptions.GetByProviderRef(ctx, out.Provider, out.Event.Reference)
	if errors.Is(err, domainErrors.ErrSubscriptionNotFound) {
		out.Outcome = OutcomeDropped
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.RecordID = sub.ID

	// Subscriptions have no status endpoint to poll.
	if out.Event.RequiresPoll {
		out.Outcome = OutcomeDropped
		return out, nil
	}

	out.Outcome = OutcomeApplied
	from := sub.Status
	sub.SetStatus(out.Event.Status)
	if err := r.SaveSubscription(ctx, sub, from, outbox.SourceWebhook); err != nil {
		return nil, err
	}
	out.Changed = from != sub.Status
	return out, nil
}

// PollTransaction asks the provider for the current status of a stored
// transaction and persists it when it differs.
func (r *Reconciler) PollTransaction(ctx context.Context, id uuid.UUID) (*PollResult, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.PollTransaction", trace.WithAttributes(attribute.String("transaction_id", id.String())))
	defer span.End()

	tx, err := r.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	adapter, err := r.registry.Get(tx.Provider)
	if err != nil {
		return nil, err
	}
	res, err := r.poll(ctx, adapter, tx, outbox.SourcePoll)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// PollByProviderReference polls a provider-assigned transaction id. Without
// a local record the remote status is returned and nothing is stored.
func (r *Reconciler) PollByProviderReference(ctx context.Context, providerKey, ref string) (*PollResult, error) {
	key := providers.NormalizeKey(providerKey)
	ctx, span := r.tracer.Start(ctx, "Reconciler.PollByProviderReference", trace.WithAttributes(
		attribute.String("provider", key),
		attribute.String("reference", ref),
	))
	defer span.End()

	adapter, err := r.registry.Get(key)
	if err != nil {
		return nil, err
	}

	tx, err := r.transactions.GetByProviderRef(ctx, key, ref)
	switch {
	case errors.Is(err, domainErrors.ErrTransactionNotFound):
		remote, err := adapter.CheckPaymentStatus(ctx, ref)
		if err != nil {
			r.metrics.PollsTotal.WithLabelValues(key, "failed").Inc()
			return nil, err
		}
		r.metrics.PollsTotal.WithLabelValues(key, "untracked").Inc()
		return &PollResult{Status: remote.Status, ProviderStatus: remote.ProviderStatus, Details: remote.Details}, nil
	case err != nil:
		return nil, err
	}

	return r.poll(ctx, adapter, tx, outbox.SourcePoll)
}

// poll never changes stored state when the remote check fails.
func (r *Reconciler) poll(ctx context.Context, adapter providers.Adapter, tx *transaction.Transaction, src outbox.Source) (*PollResult, error) {
	remote, err := adapter.CheckPaymentStatus(ctx, tx.ProviderTransactionID)
	if err != nil {
		r.metrics.PollsTotal.WithLabelValues(tx.Provider, "failed").Inc()
		r.logger.Warn().Err(err).
			Str("transaction_id", tx.ID.String()).
			Str("provider", tx.Provider).
			Msg("status poll failed")
		return nil, fmt.Errorf("poll transaction %s: %w", tx.ID, err)
	}

	changed, err := r.ApplyTransactionStatus(ctx, tx, remote.Status, src)
	if err != nil {
		return nil, err
	}
	outcome := "unchanged"
	if changed {
		outcome = "changed"
	}
	r.metrics.PollsTotal.WithLabelValues(tx.Provider, outcome).Inc()

	return &PollResult{
		Transaction:    tx,
		Status:         remote.Status,
		ProviderStatus: remote.ProviderStatus,
		Details:        remote.Details,
		Changed:        changed,
	}, nil
}

// ApplyTransactionStatus overwrites tx's status with to. Nothing is written
// when the status is unchanged.
func (r *Reconciler) ApplyTransactionStatus(ctx context.Context, tx *transaction.Transaction, to status.Status, src outbox.Source) (bool, error) {
	from, updatedAt := tx.Status, tx.UpdatedAt
	if !tx.SetStatus(to) {
		return false, nil
	}

	err := r.apply(ctx, outbox.StatusChange{
		AggregateType:     outbox.AggregateTransaction,
		AggregateID:       tx.ID,
		Provider:          tx.Provider,
		ProviderReference: tx.ProviderTransactionID,
		From:              from,
		To:                to,
		Source:            src,
	}, func(ctx context.Context) error {
		return r.transactions.UpdateStatus(ctx, tx)
	})
	if err != nil {
		tx.Status, tx.UpdatedAt = from, updatedAt
		return false, err
	}
	return true, nil
}

// SaveSubscription persists every mutable field of sub. An outbox entry is
// written when its status moved away from from.
func (r *Reconciler) SaveSubscription(ctx context.Context, sub *subscription.Subscription, from status.Status, src outbox.Source) error {
	return r.apply(ctx, outbox.StatusChange{
		AggregateType:     outbox.AggregateSubscription,
		AggregateID:       sub.ID,
		Provider:          sub.Provider,
		ProviderReference: sub.ProviderSubscriptionID,
		From:              from,
		To:                sub.Status,
		Source:            src,
	}, func(ctx context.Context) error {
		return r.subscriptions.Update(ctx, sub)
	})
}

// apply is the single status write path. persist and the outbox insert
// share one database transaction.
func (r *Reconciler) apply(ctx context.Context, change outbox.StatusChange, persist func(ctx context.Context) error) error {
	start := time.Now()
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := persist(txCtx); err != nil {
			return err
		}
		if change.From == change.To {
			return nil
		}
		return r.outbox.Insert(txCtx, outbox.NewStatusChangeEntry(change))
	})
	if err != nil {
		return fmt.Errorf("apply %s status %s: %w", change.AggregateType, change.To, err)
	}

	if change.From != change.To {
		r.metrics.StatusTransitions.WithLabelValues(change.AggregateType, string(change.Source), string(change.To)).Inc()
		r.logger.Info().
			Str("record", change.AggregateType).
			Str("id", change.AggregateID.String()).
			Str("from", string(change.From)).
			Str("to", string(change.To)).
			Str("source", string(change.Source)).
			Dur("took", time.Since(start)).
			Msg("status changed")
	}
	return nil
}
