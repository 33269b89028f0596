package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
)

const subscriptionColumns = `id, user_id, plan_id, status, amount::text, currency, interval_unit, interval_count,
	start_date, end_date, provider, provider_subscription_id, transaction_id, checkout_url, created_at, updated_at`

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO subscriptions
		 (id, user_id, plan_id, status, amount, currency, interval_unit, interval_count,
		  start_date, end_date, provider, provider_subscription_id, transaction_id, checkout_url, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), amountToNumeric(sub.Amount), sub.Amount.Currency,
		string(sub.Interval.Unit), sub.Interval.Count, sub.StartDate, sub.EndDate, sub.Provider,
		sub.ProviderSubscriptionID, sub.TransactionID, sub.CheckoutURL, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return scanSubscription(r.db(ctx).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
}

func (r *SubscriptionRepository) GetByProviderRef(ctx context.Context, provider, providerSubID string) (*subscription.Subscription, error) {
	return scanSubscription(r.db(ctx).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE provider = $1 AND provider_subscription_id = $2
		 ORDER BY created_at DESC LIMIT 1`, provider, providerSubID))
}

// Update writes every mutable column: status and end date from
// reconciliation, and the plan terms and provider id after a replace.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE subscriptions SET
		  plan_id=$1, status=$2, amount=$3, currency=$4, interval_unit=$5, interval_count=$6,
		  start_date=$7, end_date=$8, provider_subscription_id=$9, checkout_url=$10, updated_at=$11
		 WHERE id=$12`,
		sub.PlanID, string(sub.Status), amountToNumeric(sub.Amount), sub.Amount.Currency,
		string(sub.Interval.Unit), sub.Interval.Count, sub.StartDate, sub.EndDate,
		sub.ProviderSubscriptionID, sub.CheckoutURL, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(s scanner) (*subscription.Subscription, error) {
	sub := &subscription.Subscription{}
	var (
		st     string
		amount string
		unit   string
	)
	err := s.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &st, &amount, &sub.Amount.Currency, &unit, &sub.Interval.Count,
		&sub.StartDate, &sub.EndDate, &sub.Provider, &sub.ProviderSubscriptionID, &sub.TransactionID,
		&sub.CheckoutURL, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.Amount, err = numericToAmount(amount, sub.Amount.Currency)
	if err != nil {
		return nil, err
	}
	sub.Status = status.Status(st)
	sub.Interval.Unit = subscription.IntervalUnit(unit)
	return sub, nil
}
