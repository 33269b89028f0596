package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/pkg/saga"
)

type catalogProduct struct {
	ID string `json:"id"`
}

type billingPlan struct {
	ID string `json:"id"`
}

type billingSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

type frequency struct {
	IntervalUnit  string `json:"interval_unit"`
	IntervalCount int    `json:"interval_count"`
}

type billingCycle struct {
	Frequency     frequency `json:"frequency"`
	TenureType    string    `json:"tenure_type"`
	Sequence      int       `json:"sequence"`
	TotalCycles   int       `json:"total_cycles"`
	PricingScheme struct {
		FixedPrice orderAmount `json:"fixed_price"`
	} `json:"pricing_scheme"`
}

type subscriptionTerms struct {
	amount    money.Amount
	interval  subscription.Interval
	name      string
	email     string
	brand     string
	returnURL string
	cancelURL string
}

// CreateSubscription creates a catalog product, a billing plan and the
// subscription. The plan is deactivated if the subscription step fails.
func (a *Adapter) CreateSubscription(ctx context.Context, req providers.SubscriptionRequest) (*providers.Result, error) {
	return a.subscribe(ctx, providers.OpCreateSubscription, subscriptionTerms{
		amount:    req.Amount,
		interval:  req.Interval,
		name:      req.PlanName,
		email:     stringDetail(req.PaymentDetails, "subscriber_email"),
		brand:     stringDetail(req.PaymentDetails, "brand_name"),
		returnURL: req.SuccessURL,
		cancelURL: req.CancelURL,
	})
}

func (a *Adapter) subscribe(ctx context.Context, op providers.Operation, terms subscriptionTerms) (*providers.Result, error) {
	name := terms.name
	if name == "" {
		name = fmt.Sprintf("Subscription %s every %s", terms.amount, terms.interval)
	}

	var (
		prod catalogProduct
		plan billingPlan
		sub  billingSubscription
	)

	s := saga.New("paypal-create-subscription").
		AddStep(saga.Step{
			Name: "create_product",
			Execute: func(ctx context.Context) error {
				body := map[string]any{"name": name, "type": "SERVICE"}
				return a.client.PostJSON(ctx, string(op), "/v1/catalogs/products", body, &prod)
			},
		}).
		AddStep(saga.Step{
			Name: "create_plan",
			Execute: func(ctx context.Context) error {
				return a.client.PostJSON(ctx, string(op), "/v1/billing/plans", planBody(prod.ID, name, terms), &plan)
			},
			Compensate: func(ctx context.Context) error {
				return a.client.PostJSON(ctx, string(op), "/v1/billing/plans/"+url.PathEscape(plan.ID)+"/deactivate", nil, nil)
			},
		}).
		AddStep(saga.Step{
			Name: "create_subscription",
			Execute: func(ctx context.Context) error {
				body := map[string]any{
					"plan_id": plan.ID,
					"application_context": applicationContext{
						BrandName:  terms.brand,
						ReturnURL:  terms.returnURL,
						CancelURL:  terms.cancelURL,
						UserAction: "SUBSCRIBE_NOW",
					},
				}
				if terms.email != "" {
					body["subscriber"] = map[string]any{"email_address": terms.email}
				}
				return a.client.PostJSON(ctx, string(op), "/v1/billing/subscriptions", body, &sub)
			},
		})

	if err := s.Execute(ctx); err != nil {
		var se *saga.StepError
		if errors.As(err, &se) && se.CompensationErr != nil {
			a.logger.Warn().Err(se.CompensationErr).Str("plan_id", plan.ID).Msg("failed to deactivate orphaned billing plan")
		}
		return nil, err
	}

	st := subscriptionStatuses.Map(sub.Status)
	if st == status.Unknown {
		st = status.Pending
	}
	return &providers.Result{
		ProviderSubscriptionID: sub.ID,
		Status:                 st,
		ProviderStatus:         sub.Status,
		CheckoutURL:            approvalLink(sub.Links),
		Metadata: map[string]any{
			"product_id": prod.ID,
			"plan_id":    plan.ID,
		},
	}, nil
}

func planBody(productID, name string, terms subscriptionTerms) map[string]any {
	cycle := billingCycle{
		Frequency: frequency{
			IntervalUnit:  strings.ToUpper(string(terms.interval.Unit)),
			IntervalCount: terms.interval.Count,
		},
		TenureType:  "REGULAR",
		Sequence:    1,
		TotalCycles: 0,
	}
	cycle.PricingScheme.FixedPrice = orderAmount{
		CurrencyCode: strings.ToUpper(terms.amount.Currency),
		Value:        terms.amount.Decimal(),
	}

	return map[string]any{
		"product_id":     productID,
		"name":           name,
		"billing_cycles": []billingCycle{cycle},
		"payment_preferences": map[string]any{
			"auto_bill_outstanding":     true,
			"payment_failure_threshold": 3,
		},
	}
}

func (a *Adapter) cancel(ctx context.Context, op providers.Operation, providerSubscriptionID, reason string) error {
	path := "/v1/billing/subscriptions/" + url.PathEscape(providerSubscriptionID) + "/cancel"
	return a.client.PostJSON(ctx, string(op), path, map[string]string{"reason": reason}, nil)
}

// CancelSubscription cancels immediately. PayPal answers 204 with no body.
func (a *Adapter) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*providers.Result, error) {
	if err := a.cancel(ctx, providers.OpCancelSubscription, providerSubscriptionID, "Cancelled by merchant"); err != nil {
		return nil, err
	}
	return &providers.Result{
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 status.Cancelled,
		ProviderStatus:         "CANCELLED",
	}, nil
}

// UpdateSubscription cancels the current subscription and creates a new one
// with the requested terms. PayPal has no in-place price change for
// fixed-price plans. If the cancel succeeds and the create fails, the
// returned result reports the old subscription as cancelled together with an
// ErrPartialUpdate error.
func (a *Adapter) UpdateSubscription(ctx context.Context, providerSubscriptionID string, plan providers.PlanChange) (*providers.Result, error) {
	op := providers.OpUpdateSubscription

	if plan.Amount == nil {
		return nil, domainErrors.NewValidationError("amount", "is required for this provider")
	}
	if plan.Interval == nil {
		return nil, domainErrors.NewValidationError("interval", "is required for this provider")
	}

	if err := a.cancel(ctx, op, providerSubscriptionID, "Plan changed"); err != nil {
		return nil, err
	}

	res, err := a.subscribe(ctx, op, subscriptionTerms{
		amount:    *plan.Amount,
		interval:  *plan.Interval,
		name:      plan.PlanID,
		email:     stringDetail(plan.PaymentDetails, "subscriber_email"),
		brand:     stringDetail(plan.PaymentDetails, "brand_name"),
		returnURL: stringDetail(plan.PaymentDetails, "return_url"),
		cancelURL: stringDetail(plan.PaymentDetails, "cancel_url"),
	})
	if err != nil {
		a.logger.Error().Err(err).Str("subscription_id", providerSubscriptionID).Msg("subscription cancelled but replacement failed")
		return &providers.Result{
			ProviderSubscriptionID: providerSubscriptionID,
			Status:                 status.Cancelled,
			ProviderStatus:         "CANCELLED",
		}, fmt.Errorf("%w: %w", domainErrors.ErrPartialUpdate, err)
	}

	res.Replaced = true
	res.Metadata["replaced_subscription_id"] = providerSubscriptionID
	return res, nil
}
