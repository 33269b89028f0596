package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/outbox"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/testutil"
)

func monthly() subscription.Interval {
	return subscription.Interval{Unit: subscription.Month, Count: 1}
}

func TestSubscriptionService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent providers.SubscriptionRequest
	f.adapter.CreateSubscriptionFunc = func(_ context.Context, req providers.SubscriptionRequest) (*providers.Result, error) {
		sent = req
		return &providers.Result{ProviderSubscriptionID: "mock_sub_1", Status: status.Pending, CheckoutURL: "https://mock.example/approve"}, nil
	}

	sub, err := f.subscriptionService().Create(ctx, CreateSubscriptionRequest{
		Provider: "mock",
		UserID:   "user-1",
		PlanID:   "pro",
		Amount:   money.Amount{Minor: 999, Currency: "USD"},
		Interval: monthly(),
	})
	require.NoError(t, err)
	assert.Equal(t, "pro", sent.PlanName, "plan id doubles as name")
	assert.Equal(t, "mock_sub_1", sub.ProviderSubscriptionID)
	assert.Equal(t, "https://mock.example/approve", *sub.CheckoutURL)

	stored, err := f.subscriptions.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Pending, stored.Status)
	assert.Equal(t, "user-1", stored.UserID)
}

func TestSubscriptionService_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := testutil.NewTestSubscription("mock", "mock_sub_1", status.Processing)
	f.subscriptions.Add(sub)

	got, err := f.subscriptionService().Cancel(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Cancelled, got.Status)
	assert.NotNil(t, got.EndDate)

	require.Equal(t, 1, f.outbox.Len())
	assert.Equal(t, string(outbox.SourceCommand), f.outbox.Entries[0].Payload["source"])
}

func TestSubscriptionService_CancelNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.subscriptionService().Cancel(context.Background(), testutil.NewTestSubscription("mock", "x", status.Pending).ID)
	assert.ErrorIs(t, err, domainErrors.ErrSubscriptionNotFound)
	assert.Zero(t, f.adapter.TotalCalls())
}

func TestSubscriptionService_UpdateInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := testutil.NewTestSubscription("mock", "mock_sub_1", status.Pending)
	f.subscriptions.Add(sub)

	amount := money.Amount{Minor: 1999, Currency: "USD"}
	got, err := f.subscriptionService().Update(ctx, sub.ID, UpdateSubscriptionRequest{PlanID: "pro", Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "mock_sub_1", got.ProviderSubscriptionID)
	assert.Equal(t, "pro", got.PlanID)
	assert.Equal(t, int64(1999), got.Amount.Minor)
	assert.Equal(t, status.Processing, got.Status)

	stored, err := f.subscriptions.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", stored.PlanID)
}

func TestSubscriptionService_UpdateReplaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := testutil.NewTestSubscription("mock", "I-OLD", status.Processing)
	f.subscriptions.Add(sub)
	f.adapter.UpdateSubscriptionFunc = func(_ context.Context, ref string, _ providers.PlanChange) (*providers.Result, error) {
		assert.Equal(t, "I-OLD", ref)
		return &providers.Result{ProviderSubscriptionID: "I-NEW", Status: status.Pending, Replaced: true, CheckoutURL: "https://mock.example/approve/new"}, nil
	}

	yearly := subscription.Interval{Unit: subscription.Year, Count: 1}
	got, err := f.subscriptionService().Update(ctx, sub.ID, UpdateSubscriptionRequest{PlanID: "pro-yearly", Interval: &yearly})
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, "I-NEW", got.ProviderSubscriptionID)
	assert.Equal(t, subscription.Year, got.Interval.Unit)

	stored, err := f.subscriptions.GetByProviderRef(ctx, "mock", "I-NEW")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)
	assert.Equal(t, status.Pending, stored.Status)
}

func TestSubscriptionService_PartialUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := testutil.NewTestSubscription("mock", "I-OLD", status.Processing)
	f.subscriptions.Add(sub)
	f.adapter.UpdateSubscriptionFunc = func(context.Context, string, providers.PlanChange) (*providers.Result, error) {
		return &providers.Result{ProviderSubscriptionID: "I-OLD", Status: status.Cancelled},
			domainErrors.NewProviderError("mock", "update_subscription", domainErrors.ErrPartialUpdate, "old subscription cancelled, new one not created", nil)
	}

	got, err := f.subscriptionService().Update(ctx, sub.ID, UpdateSubscriptionRequest{PlanID: "pro"})
	require.ErrorIs(t, err, domainErrors.ErrPartialUpdate)
	require.NotNil(t, got)
	assert.Equal(t, status.Cancelled, got.Status)

	stored, err := f.subscriptions.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Cancelled, stored.Status)
	assert.Equal(t, "I-OLD", stored.ProviderSubscriptionID)
	assert.Equal(t, "plan-basic", stored.PlanID)
	assert.NotNil(t, stored.EndDate)
	assert.Equal(t, 1, f.outbox.Len())
}

func TestSubscriptionService_UpdateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := testutil.NewTestSubscription("mock", "mock_sub_1", status.Processing)
	f.subscriptions.Add(sub)
	f.adapter.UpdateSubscriptionFunc = func(context.Context, string, providers.PlanChange) (*providers.Result, error) {
		return nil, domainErrors.NewRejectionError("mock", "update_subscription", "INVALID_PLAN", "plan does not exist")
	}

	_, err := f.subscriptionService().Update(ctx, sub.ID, UpdateSubscriptionRequest{PlanID: "nope"})
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)

	stored, err := f.subscriptions.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Processing, stored.Status)
	assert.Zero(t, f.outbox.Len())
}

func TestSubscriptionService_NotSupported(t *testing.T) {
	adapter := &subscriptionlessAdapter{MockAdapter: testutil.NewMockAdapter()}
	f := newFixtureWith(t, map[string]providers.Adapter{"cashonly": adapter}, adapter.MockAdapter)

	_, err := f.subscriptionService().Create(context.Background(), CreateSubscriptionRequest{
		Provider: "cashonly",
		Amount:   money.Amount{Minor: 999, Currency: "USD"},
		Interval: monthly(),
	})
	assert.ErrorIs(t, err, domainErrors.ErrNotSupported)
	assert.Zero(t, f.subscriptions.Count())
}

// subscriptionlessAdapter reports subscriptions as unsupported.
type subscriptionlessAdapter struct {
	*testutil.MockAdapter
}

func (a *subscriptionlessAdapter) CreateSubscription(context.Context, providers.SubscriptionRequest) (*providers.Result, error) {
	return nil, domainErrors.NewNotSupportedError("cashonly", "create_subscription")
}
