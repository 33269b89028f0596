package revolut

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRevolut struct {
	hits    atomic.Int32
	mu      sync.Mutex
	body    map[string]any
	handler http.HandlerFunc
	srv     *httptest.Server
}

func newFakeRevolut(t *testing.T, handler http.HandlerFunc) *fakeRevolut {
	f := &fakeRevolut{handler: handler}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		assert.Equal(t, "Bearer sk_revolut", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("Revolut-Api-Version"))
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			body := map[string]any{}
			require.NoError(t, json.Unmarshal(raw, &body))
			f.mu.Lock()
			f.body = body
			f.mu.Unlock()
		}
		f.handler(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRevolut) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body
}

func newAdapter(t *testing.T, f *fakeRevolut, webhookSecret string) *Adapter {
	t.Helper()
	a, err := Build("revolut", config.ProviderConfig{
		SecretKey:     "sk_revolut",
		WebhookSecret: webhookSecret,
		BaseURL:       f.srv.URL,
	}, providers.Deps{
		Logger:    zerolog.Nop(),
		Transport: http.DefaultTransport,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return a.(*Adapter)
}

func respond(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func TestBuild(t *testing.T) {
	_, err := Build("revolut", config.ProviderConfig{}, providers.Deps{})
	assert.ErrorIs(t, err, domainErrors.ErrProviderConfiguration)

	a, err := Build("revolut", config.ProviderConfig{SecretKey: "sk"}, providers.Deps{})
	require.NoError(t, err)
	assert.Equal(t, providers.KindBankRail, a.Kind())
	assert.False(t, providers.CapabilitiesOf(a).Subscriptions)
	assert.True(t, providers.CapabilitiesOf(a).WebhookSignatures)
}

func TestCreatePayment_SendsMinorUnits(t *testing.T) {
	f := newFakeRevolut(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST /orders", r.Method+" "+r.URL.Path)
		respond(http.StatusCreated, `{
			"id": "6516e61c-d279-a454-a837-bc52ce55ed49",
			"token": "0adc0e3c-ab44-4f33-bcc0-534ded7354ce",
			"state": "PENDING",
			"checkout_url": "https://checkout.revolut.com/payment-link/0adc0e3c"
		}`)(w, r)
	})
	a := newAdapter(t, f, "")

	amount, err := money.Parse("100.00", "eur")
	require.NoError(t, err)

	res, err := a.CreatePayment(context.Background(), providers.PaymentRequest{
		Amount:         amount,
		SuccessURL:     "https://shop.example/ok",
		CancelURL:      "https://shop.example/cancel",
		Description:    "Order 42",
		PaymentDetails: map[string]any{"order_id": "ord-42", "email": "buyer@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "6516e61c-d279-a454-a837-bc52ce55ed49", res.ProviderTransactionID)
	assert.Equal(t, status.Pending, res.Status)
	assert.Equal(t, "https://checkout.revolut.com/payment-link/0adc0e3c", res.CheckoutURL)

	body := f.lastBody()
	assert.Equal(t, float64(10000), body["amount"])
	assert.Equal(t, "EUR", body["currency"])
	assert.Equal(t, "automatic", body["capture_mode"])
	assert.Equal(t, "ord-42", body["merchant_order_ext_ref"])
	assert.Equal(t, "buyer@example.com", body["customer_email"])
	assert.Equal(t, "https://shop.example/cancel", body["redirect_urls"].(map[string]any)["failure_url"])
}

func TestCheckPaymentStatus(t *testing.T) {
	tests := []struct {
		state string
		want  status.Status
	}{
		{"PENDING", status.Pending},
		{"AUTHORISED", status.Processing},
		{"COMPLETED", status.Completed},
		{"CANCELLED", status.Cancelled},
		{"FAILED", status.Failed},
		{"REFUND_PENDING", status.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			f := newFakeRevolut(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/orders/ord-1", r.URL.Path)
				respond(http.StatusOK, `{"id":"ord-1","state":"`+tt.state+`","amount":500,"currency":"GBP"}`)(w, r)
			})
			a := newAdapter(t, f, "")

			res, err := a.CheckPaymentStatus(context.Background(), "ord-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.state, res.ProviderStatus)
			assert.Equal(t, int64(500), res.Details["amount"])
		})
	}
}

func TestCheckPaymentStatus_Errors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want error
	}{
		{"not found", http.StatusNotFound, `{"code":"not_found","message":"Order not found"}`, domainErrors.ErrProviderRejected},
		{"bad key", http.StatusUnauthorized, `{"code":"unauthenticated","message":"Bad key"}`, domainErrors.ErrProviderConfiguration},
		{"gateway", http.StatusBadGateway, ``, domainErrors.ErrProviderNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, newFakeRevolut(t, respond(tt.code, tt.body)), "")
			_, err := a.CheckPaymentStatus(context.Background(), "ord-1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubscriptions_NotSupportedWithoutIO(t *testing.T) {
	f := newFakeRevolut(t, respond(http.StatusOK, `{}`))
	a := newAdapter(t, f, "")
	ctx := context.Background()

	_, err := a.CreateSubscription(ctx, providers.SubscriptionRequest{
		Amount:   money.Amount{Minor: 999, Currency: "EUR"},
		Interval: subscription.Interval{Unit: subscription.Month, Count: 1},
	})
	assert.ErrorIs(t, err, domainErrors.ErrNotSupported)

	_, err = a.CancelSubscription(ctx, "sub")
	assert.ErrorIs(t, err, domainErrors.ErrNotSupported)

	_, err = a.UpdateSubscription(ctx, "sub", providers.PlanChange{})
	assert.ErrorIs(t, err, domainErrors.ErrNotSupported)

	assert.Zero(t, f.hits.Load())
}

func TestProcessWebhook(t *testing.T) {
	a := newAdapter(t, newFakeRevolut(t, respond(http.StatusOK, `{}`)), "")

	tests := []struct {
		payload string
		ref     string
		want    status.Status
	}{
		{`{"event":"ORDER_COMPLETED","order_id":"ord-1"}`, "ord-1", status.Completed},
		{`{"event":"ORDER_AUTHORISED","order_id":"ord-1"}`, "ord-1", status.Processing},
		{`{"event":"ORDER_PAYMENT_DECLINED","order":{"id":"ord-2"}}`, "ord-2", status.Failed},
		{`{"event":"ORDER_PAYMENT_FAILED","order_id":"ord-3"}`, "ord-3", status.Failed},
		{`{"event":"ORDER_CANCELLED","order_id":"ord-4"}`, "ord-4", status.Cancelled},
	}
	for _, tt := range tests {
		ev, err := a.ProcessWebhook([]byte(tt.payload))
		require.NoError(t, err, tt.payload)
		assert.Equal(t, providers.RecordTransaction, ev.Record)
		assert.Equal(t, tt.ref, ev.Reference)
		assert.Equal(t, tt.want, ev.Status)
	}

	_, err := a.ProcessWebhook([]byte(`{"event":"PAYOUT_COMPLETED","order_id":"x"}`))
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedEvent)

	_, err = a.ProcessWebhook([]byte(`{"event":"ORDER_COMPLETED"}`))
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}

func TestVerifyWebhook(t *testing.T) {
	const secret = "wsk_test"
	a := newAdapter(t, newFakeRevolut(t, respond(http.StatusOK, `{}`)), secret)
	payload := []byte(`{"event":"ORDER_COMPLETED","order_id":"ord-1"}`)
	ts := strconv.FormatInt(fixedNow.UnixMilli(), 10)

	signed := func(ts, sig string) http.Header {
		h := http.Header{}
		h.Set("Revolut-Request-Timestamp", ts)
		h.Set("Revolut-Signature", sig)
		return h
	}

	assert.NoError(t, a.VerifyWebhook(payload, signed(ts, "v1="+Sign(secret, ts, payload))))
	assert.NoError(t, a.VerifyWebhook(payload, signed(ts, "v1=deadbeef,v1="+Sign(secret, ts, payload))))

	err := a.VerifyWebhook(payload, signed(ts, "v1="+Sign("other", ts, payload)))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidWebhookSignature)

	old := strconv.FormatInt(fixedNow.Add(-10*time.Minute).UnixMilli(), 10)
	err = a.VerifyWebhook(payload, signed(old, "v1="+Sign(secret, old, payload)))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidWebhookSignature)

	err = a.VerifyWebhook(payload, http.Header{})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidWebhookSignature)

	unsigned := newAdapter(t, newFakeRevolut(t, respond(http.StatusOK, `{}`)), "")
	assert.NoError(t, unsigned.VerifyWebhook(payload, http.Header{}))
}
