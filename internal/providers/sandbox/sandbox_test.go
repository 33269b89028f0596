package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/providers"
)

func TestAdapter_CreateAndPoll(t *testing.T) {
	a := New("sandbox", WithLatency(0))

	amount, err := money.Parse("100.00", "EUR")
	require.NoError(t, err)

	res, err := a.CreatePayment(context.Background(), providers.PaymentRequest{Amount: amount})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ProviderTransactionID, txnPrefix))
	assert.Equal(t, status.Pending, res.Status)
	assert.Contains(t, res.CheckoutURL, res.ProviderTransactionID)

	st, err := a.CheckPaymentStatus(context.Background(), res.ProviderTransactionID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, st.Status)
}

func TestAdapter_PollUnknownReference(t *testing.T) {
	a := New("sandbox", WithLatency(0))

	_, err := a.CheckPaymentStatus(context.Background(), "pi_123")
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
}

func TestAdapter_AlwaysFails(t *testing.T) {
	a := New("sandbox", WithLatency(0), WithFailureRate(1.0))

	_, err := a.CreatePayment(context.Background(), providers.PaymentRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
}

func TestAdapter_AlwaysTimesOut(t *testing.T) {
	a := New("sandbox", WithLatency(0), WithTimeoutRate(1.0))

	_, err := a.CreateSubscription(context.Background(), providers.SubscriptionRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrProviderNetwork)
}

func TestAdapter_ContextCancellation(t *testing.T) {
	a := New("sandbox", WithLatency(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.CreatePayment(ctx, providers.PaymentRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrProviderNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapter_ProcessWebhook(t *testing.T) {
	a := New("sandbox")

	tests := []struct {
		name    string
		payload string
		want    *providers.WebhookEvent
		wantErr error
	}{
		{
			name:    "transaction",
			payload: `{"reference":"sbx_txn_1","status":"completed","event":"payment.completed"}`,
			want:    &providers.WebhookEvent{Record: providers.RecordTransaction, Reference: "sbx_txn_1", Status: status.Completed, EventType: "payment.completed"},
		},
		{
			name:    "subscription",
			payload: `{"type":"subscription","reference":"sbx_sub_1","status":"CANCELLED"}`,
			want:    &providers.WebhookEvent{Record: providers.RecordSubscription, Reference: "sbx_sub_1", Status: status.Cancelled},
		},
		{name: "malformed", payload: `{`, wantErr: domainErrors.ErrValidationFailed},
		{name: "missing reference", payload: `{"status":"COMPLETED"}`, wantErr: domainErrors.ErrValidationFailed},
		{name: "unknown type", payload: `{"type":"refund","reference":"r","status":"COMPLETED"}`, wantErr: domainErrors.ErrUnsupportedEvent},
		{name: "unknown status", payload: `{"reference":"r","status":"SETTLED"}`, wantErr: domainErrors.ErrUnsupportedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := a.ProcessWebhook([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestAdapter_SubscriptionLifecycle(t *testing.T) {
	a := New("sandbox", WithLatency(0))
	ctx := context.Background()

	created, err := a.CreateSubscription(ctx, providers.SubscriptionRequest{})
	require.NoError(t, err)
	assert.Equal(t, status.Processing, created.Status)

	updated, err := a.UpdateSubscription(ctx, created.ProviderSubscriptionID, providers.PlanChange{PlanID: "gold"})
	require.NoError(t, err)
	assert.Equal(t, created.ProviderSubscriptionID, updated.ProviderSubscriptionID)
	assert.False(t, updated.Replaced)

	cancelled, err := a.CancelSubscription(ctx, created.ProviderSubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, status.Cancelled, cancelled.Status)
}
