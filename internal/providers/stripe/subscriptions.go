package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v81"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/pkg/saga"
)

func (a *Adapter) subscriptionResult(sub *stripeapi.Subscription, extra map[string]any) *providers.Result {
	native := string(sub.Status)
	return &providers.Result{
		ProviderSubscriptionID: sub.ID,
		Status:                 subscriptionStatuses.Map(native),
		ProviderStatus:         native,
		Metadata:               extra,
	}
}

// CreateSubscription creates a product, a recurring price and the
// subscription for an existing customer. Objects created before a failing
// step are archived.
func (a *Adapter) CreateSubscription(ctx context.Context, req providers.SubscriptionRequest) (*providers.Result, error) {
	customer := stringDetail(req.PaymentDetails, "customer_id")
	if customer == "" {
		return nil, domainErrors.NewPreconditionError(a.key, string(providers.OpCreateSubscription), "payment_details.customer_id is required")
	}

	name := req.PlanName
	if name == "" {
		name = fmt.Sprintf("Subscription %s every %s", req.Amount, req.Interval)
	}

	var (
		prod *stripeapi.Product
		pr   *stripeapi.Price
		sub  *stripeapi.Subscription
	)
	op := providers.OpCreateSubscription

	s := saga.New("stripe-create-subscription").
		AddStep(saga.Step{
			Name: "create_product",
			Execute: func(ctx context.Context) (err error) {
				prod, err = a.newProduct(ctx, op, name, "")
				return err
			},
			Compensate: func(ctx context.Context) error {
				return a.archiveProduct(ctx, op, prod.ID)
			},
		}).
		AddStep(saga.Step{
			Name: "create_price",
			Execute: func(ctx context.Context) (err error) {
				pr, err = a.newPrice(ctx, op, prod.ID, req.Amount, &req.Interval)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return a.archivePrice(ctx, op, pr.ID)
			},
		}).
		AddStep(saga.Step{
			Name: "create_subscription",
			Execute: func(ctx context.Context) (err error) {
				params := &stripeapi.SubscriptionParams{
					Customer: stripeapi.String(customer),
					Items:    []*stripeapi.SubscriptionItemsParams{{Price: stripeapi.String(pr.ID)}},
				}
				params.Context = ctx
				sub, err = a.api.Subscriptions.New(params)
				if err != nil {
					return a.providerError(op, err)
				}
				return nil
			},
		})

	if err := s.Execute(ctx); err != nil {
		var se *saga.StepError
		if errors.As(err, &se) && se.CompensationErr != nil {
			a.logger.Warn().Err(se.CompensationErr).Msg("failed to archive orphaned billing objects")
		}
		return nil, err
	}

	return a.subscriptionResult(sub, map[string]any{
		"product_id": prod.ID,
		"price_id":   pr.ID,
	}), nil
}

func (a *Adapter) newProduct(ctx context.Context, op providers.Operation, name, description string) (*stripeapi.Product, error) {
	params := &stripeapi.ProductParams{Name: stripeapi.String(name)}
	if description != "" {
		params.Description = stripeapi.String(description)
	}
	params.Context = ctx
	prod, err := a.api.Products.New(params)
	if err != nil {
		return nil, a.providerError(op, err)
	}
	return prod, nil
}

// newPrice creates a price on productID; it is recurring when interval is
// set.
func (a *Adapter) newPrice(ctx context.Context, op providers.Operation, productID string, amount money.Amount, interval *subscription.Interval) (*stripeapi.Price, error) {
	params := &stripeapi.PriceParams{
		Product:    stripeapi.String(productID),
		Currency:   stripeapi.String(strings.ToLower(amount.Currency)),
		UnitAmount: stripeapi.Int64(amount.Minor),
	}
	if interval != nil {
		params.Recurring = &stripeapi.PriceRecurringParams{
			Interval:      stripeapi.String(string(interval.Unit)),
			IntervalCount: stripeapi.Int64(int64(interval.Count)),
		}
	}
	params.Context = ctx
	pr, err := a.api.Prices.New(params)
	if err != nil {
		return nil, a.providerError(op, err)
	}
	return pr, nil
}

func (a *Adapter) archiveProduct(ctx context.Context, op providers.Operation, id string) error {
	params := &stripeapi.ProductParams{Active: stripeapi.Bool(false)}
	params.Context = ctx
	if _, err := a.api.Products.Update(id, params); err != nil {
		return a.providerError(op, err)
	}
	return nil
}

func (a *Adapter) archivePrice(ctx context.Context, op providers.Operation, id string) error {
	params := &stripeapi.PriceParams{Active: stripeapi.Bool(false)}
	params.Context = ctx
	if _, err := a.api.Prices.Update(id, params); err != nil {
		return a.providerError(op, err)
	}
	return nil
}

// CancelSubscription cancels immediately.
func (a *Adapter) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*providers.Result, error) {
	params := &stripeapi.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := a.api.Subscriptions.Cancel(providerSubscriptionID, params)
	if err != nil {
		return nil, a.providerError(providers.OpCancelSubscription, err)
	}
	if sub.ID == "" {
		sub.ID = providerSubscriptionID
	}
	res := a.subscriptionResult(sub, nil)
	if res.Status == status.Unknown {
		res.Status = status.Cancelled
	}
	return res, nil
}

// UpdateSubscription swaps the price on the subscription's first item in
// place. Without a price id, a new price is created on the current product.
func (a *Adapter) UpdateSubscription(ctx context.Context, providerSubscriptionID string, plan providers.PlanChange) (*providers.Result, error) {
	op := providers.OpUpdateSubscription

	getParams := &stripeapi.SubscriptionParams{}
	getParams.Context = ctx
	current, err := a.api.Subscriptions.Get(providerSubscriptionID, getParams)
	if err != nil {
		return nil, a.providerError(op, err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, domainErrors.NewPreconditionError(a.key, string(op), "subscription has no items")
	}
	item := current.Items.Data[0]

	priceID := plan.PriceID
	if priceID == "" {
		if plan.Amount == nil {
			return nil, domainErrors.NewValidationError("plan", "price_id or amount is required")
		}
		if item.Price == nil || item.Price.Product == nil {
			return nil, domainErrors.NewPreconditionError(a.key, string(op), "subscription item has no product")
		}
		interval := plan.Interval
		if interval == nil && item.Price.Recurring != nil {
			iv, err := subscription.ParseInterval(string(item.Price.Recurring.Interval), int(item.Price.Recurring.IntervalCount))
			if err == nil {
				interval = &iv
			}
		}
		if interval == nil {
			return nil, domainErrors.NewValidationError("interval", "is required when the current price is not recurring")
		}
		pr, err := a.newPrice(ctx, op, item.Price.Product.ID, *plan.Amount, interval)
		if err != nil {
			return nil, err
		}
		priceID = pr.ID
	}

	params := &stripeapi.SubscriptionParams{
		Items: []*stripeapi.SubscriptionItemsParams{{
			ID:    stripeapi.String(item.ID),
			Price: stripeapi.String(priceID),
		}},
	}
	params.Context = ctx
	updated, err := a.api.Subscriptions.Update(providerSubscriptionID, params)
	if err != nil {
		return nil, a.providerError(op, err)
	}
	return a.subscriptionResult(updated, map[string]any{"price_id": priceID}), nil
}
