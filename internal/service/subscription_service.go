package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/outbox"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/providers"
)

type CreateSubscriptionRequest struct {
	Provider       string
	UserID         string
	PlanID         string
	PlanName       string
	Amount         money.Amount
	Interval       subscription.Interval
	PaymentDetails map[string]any
	SuccessURL     string
	CancelURL      string
	TransactionID  *uuid.UUID
}

type UpdateSubscriptionRequest struct {
	PlanID         string
	PriceID        string
	Amount         *money.Amount
	Interval       *subscription.Interval
	PaymentDetails map[string]any
}

type SubscriptionService struct {
	registry      *providers.Registry
	subscriptions subscription.Repository
	reconciler    *Reconciler
	logger        zerolog.Logger
}

func NewSubscriptionService(
	registry *providers.Registry,
	subscriptions subscription.Repository,
	reconciler *Reconciler,
	logger zerolog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		registry:      registry,
		subscriptions: subscriptions,
		reconciler:    reconciler,
		logger:        logger.With().Str("component", "subscriptions").Logger(),
	}
}

func (s *SubscriptionService) Create(ctx context.Context, req CreateSubscriptionRequest) (*subscription.Subscription, error) {
	key := providers.NormalizeKey(req.Provider)
	adapter, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if err := req.Amount.Validate(); err != nil {
		return nil, err
	}

	planName := req.PlanName
	if planName == "" {
		planName = req.PlanID
	}
	res, err := adapter.CreateSubscription(ctx, providers.SubscriptionRequest{
		Amount:         req.Amount,
		Interval:       req.Interval,
		PlanName:       planName,
		PaymentDetails: req.PaymentDetails,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	if res.ProviderSubscriptionID == "" {
		return nil, domainErrors.NewRejectionError(key, string(providers.OpCreateSubscription), "", "provider returned no subscription id")
	}

	sub := subscription.New(req.UserID, req.PlanID, key, res.ProviderSubscriptionID, req.Amount, req.Interval, res.Status)
	sub.TransactionID = req.TransactionID
	if res.CheckoutURL != "" {
		sub.CheckoutURL = &res.CheckoutURL
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("store subscription %s/%s: %w", key, res.ProviderSubscriptionID, err)
	}

	s.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Str("provider", key).
		Str("provider_subscription_id", sub.ProviderSubscriptionID).
		Str("status", string(sub.Status)).
		Msg("subscription created")
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return s.subscriptions.GetByID(ctx, id)
}

// Cancel cancels the subscription at the provider and stores the reported
// status.
func (s *SubscriptionService) Cancel(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	sub, adapter, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := adapter.CancelSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return nil, err
	}

	from := sub.Status
	sub.SetStatus(resultStatus(res, status.Cancelled))
	if err := s.reconciler.SaveSubscription(ctx, sub, from, outbox.SourceCommand); err != nil {
		return nil, err
	}
	return sub, nil
}

// Update changes the plan. When the provider recreated the subscription the
// record is pointed at the new provider id. A partial update stores the
// cancelled state and returns the record together with the error.
func (s *SubscriptionService) Update(ctx context.Context, id uuid.UUID, req UpdateSubscriptionRequest) (*subscription.Subscription, error) {
	sub, adapter, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := adapter.UpdateSubscription(ctx, sub.ProviderSubscriptionID, providers.PlanChange{
		PlanID:         req.PlanID,
		PriceID:        req.PriceID,
		Amount:         req.Amount,
		Interval:       req.Interval,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrPartialUpdate) && res != nil {
			from := sub.Status
			sub.SetStatus(resultStatus(res, status.Cancelled))
			if saveErr := s.reconciler.SaveSubscription(ctx, sub, from, outbox.SourceCommand); saveErr != nil {
				return nil, errors.Join(err, saveErr)
			}
			s.logger.Error().Err(err).
				Str("subscription_id", sub.ID.String()).
				Str("provider_subscription_id", sub.ProviderSubscriptionID).
				Msg("subscription cancelled but not replaced")
			return sub, err
		}
		return nil, err
	}

	from := sub.Status
	amount := money.Amount{}
	if req.Amount != nil {
		amount = *req.Amount
	}
	interval := subscription.Interval{}
	if req.Interval != nil {
		interval = *req.Interval
	}

	if res.Replaced {
		sub.Replace(res.ProviderSubscriptionID, req.PlanID, amount, interval, resultStatus(res, status.Pending))
		if res.CheckoutURL != "" {
			sub.CheckoutURL = &res.CheckoutURL
		}
	} else {
		if req.PlanID != "" {
			sub.PlanID = req.PlanID
		}
		if !amount.IsZero() {
			sub.Amount = amount
		}
		if interval.Count > 0 {
			sub.Interval = interval
		}
		sub.SetStatus(resultStatus(res, sub.Status))
	}

	if err := s.reconciler.SaveSubscription(ctx, sub, from, outbox.SourceCommand); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("subscription_id", sub.ID.String()).
		Bool("replaced", res.Replaced).
		Str("provider_subscription_id", sub.ProviderSubscriptionID).
		Msg("subscription updated")
	return sub, nil
}

func (s *SubscriptionService) load(ctx context.Context, id uuid.UUID) (*subscription.Subscription, providers.Adapter, error) {
	sub, err := s.subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := s.registry.Get(sub.Provider)
	if err != nil {
		return nil, nil, err
	}
	return sub, adapter, nil
}

// resultStatus falls back when the provider did not report a usable status.
func resultStatus(res *providers.Result, fallback status.Status) status.Status {
	if res == nil || !res.Status.IsValid() || res.Status == status.Unknown {
		return fallback
	}
	return res.Status
}
