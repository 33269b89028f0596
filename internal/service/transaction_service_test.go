package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/providers/stripe"
	"github.com/cassiomorais/paygate/internal/testutil"
)

func TestTransactionService_Create(t *testing.T) {
	f := newFixture(t)
	svc := f.transactionService()
	ctx := context.Background()

	amount, err := money.Parse("100.00", "EUR")
	require.NoError(t, err)

	tx, err := svc.Create(ctx, CreateTransactionRequest{
		Provider:    " Mock ",
		Amount:      amount,
		SuccessURL:  "https://shop.example/ok",
		CancelURL:   "https://shop.example/cancel",
		Description: "Order 42",
		Metadata:    map[string]any{"order_id": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mock", tx.Provider)
	assert.NotEmpty(t, tx.ProviderTransactionID)
	assert.Equal(t, status.Pending, tx.Status)
	require.NotNil(t, tx.CheckoutURL)

	stored, err := f.transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), stored.Amount.Minor)
	assert.Equal(t, "EUR", stored.Amount.Currency)
	assert.Equal(t, status.Pending, stored.Status)
	assert.Equal(t, tx.ProviderTransactionID, stored.ProviderTransactionID)
	assert.Equal(t, "42", stored.Metadata["order_id"])
	assert.Equal(t, "Order 42", *stored.Description)
}

func TestTransactionService_CreatePassesLocalReference(t *testing.T) {
	f := newFixture(t)
	var sent providers.PaymentRequest
	f.adapter.CreatePaymentFunc = func(_ context.Context, req providers.PaymentRequest) (*providers.Result, error) {
		sent = req
		return &providers.Result{ProviderTransactionID: "cs_1", Status: status.Pending}, nil
	}

	tx, err := f.transactionService().Create(context.Background(), CreateTransactionRequest{
		Provider: "mock",
		Amount:   testutil.EUR(500),
	})
	require.NoError(t, err)
	assert.Equal(t, tx.ID.String(), sent.Reference)
}

func TestTransactionService_CreateRejectsMissingReference(t *testing.T) {
	f := newFixture(t)
	f.adapter.CreatePaymentFunc = func(context.Context, providers.PaymentRequest) (*providers.Result, error) {
		return &providers.Result{Status: status.Pending}, nil
	}

	_, err := f.transactionService().Create(context.Background(), CreateTransactionRequest{Provider: "mock", Amount: testutil.EUR(100)})
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
	assert.Zero(t, f.transactions.Count())
}

func TestTransactionService_CreateInvalidAmount(t *testing.T) {
	f := newFixture(t)
	_, err := f.transactionService().Create(context.Background(), CreateTransactionRequest{
		Provider: "mock",
		Amount:   money.Amount{Minor: 0, Currency: "EUR"},
	})
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
	assert.Zero(t, f.adapter.TotalCalls())
}

func TestUnknownProvider_NoAdapterCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txs := f.transactionService()
	subs := f.subscriptionService()
	customers := NewCustomerService(f.registry, f.customers, zerolog.Nop())
	products := NewProductService(f.registry)

	calls := map[string]func() error{
		"create payment": func() error {
			_, err := txs.Create(ctx, CreateTransactionRequest{Provider: "nope", Amount: testutil.EUR(100)})
			return err
		},
		"status by reference": func() error {
			_, err := txs.StatusByProviderReference(ctx, "nope", "ref")
			return err
		},
		"webhook": func() error {
			_, err := f.reconciler.HandleWebhook(ctx, "nope", []byte(`{}`), nil)
			return err
		},
		"create subscription": func() error {
			_, err := subs.Create(ctx, CreateSubscriptionRequest{Provider: "nope", Amount: testutil.EUR(100)})
			return err
		},
		"create customer": func() error {
			_, err := customers.Create(ctx, CreateCustomerRequest{Provider: "nope", Email: "a@example.com"})
			return err
		},
		"has payment method": func() error {
			_, err := customers.HasPaymentMethod(ctx, "nope", "cus_1")
			return err
		},
		"create product": func() error {
			_, err := products.CreateProductAndPrice(ctx, "nope", providers.ProductRequest{Name: "Pro", Amount: testutil.EUR(100)})
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), domainErrors.ErrUnknownProvider)
		})
	}
	assert.Zero(t, f.adapter.TotalCalls())
}

func TestTransactionService_Get(t *testing.T) {
	f := newFixture(t)
	svc := f.transactionService()
	ctx := context.Background()
	tx := testutil.NewTestTransaction("mock", "mock_txn_1", status.Pending)
	f.transactions.Add(tx)

	f.adapter.CheckPaymentStatusFunc = func(context.Context, string) (*providers.StatusResult, error) {
		return &providers.StatusResult{Status: status.Processing}, nil
	}
	got, err := svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Processing, got.Status)

	// A failing provider still yields the stored record.
	f.adapter.CheckPaymentStatusFunc = func(context.Context, string) (*providers.StatusResult, error) {
		return nil, domainErrors.NewNetworkError("mock", "check_payment_status", errors.New("timeout"))
	}
	got, err = svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Processing, got.Status)

	_, err = svc.Status(ctx, tx.ID)
	assert.ErrorIs(t, err, domainErrors.ErrProviderNetwork)
}

func TestTransactionService_PaymentURL(t *testing.T) {
	f := newFixture(t)
	svc := f.transactionService()
	ctx := context.Background()

	tx := testutil.NewTestTransaction("mock", "mock_txn_1", status.Pending)
	f.transactions.Add(tx)
	url, err := svc.PaymentURL(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/mock_txn_1", url)

	bare := transaction.New("mock", "mock_txn_2", testutil.EUR(100), status.Pending)
	f.transactions.Add(bare)
	_, err = svc.PaymentURL(ctx, bare.ID)
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}

func TestTransactionService_List(t *testing.T) {
	f := newFixture(t)
	f.transactions.Add(testutil.NewTestTransaction("mock", "a", status.Pending))
	f.transactions.Add(testutil.NewTestTransaction("mock", "b", status.Completed))
	f.transactions.Add(testutil.NewTestTransaction("other", "c", status.Pending))

	provider := "MOCK"
	list, err := f.transactionService().List(context.Background(), transaction.ListFilter{
		Provider: &provider,
		Statuses: []status.Status{status.Pending},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ProviderTransactionID)
}

func newStripeFixture(t *testing.T, handler http.HandlerFunc) (*fixture, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	adapter, err := stripe.Build("stripe", config.ProviderConfig{SecretKey: "sk_test_123", BaseURL: srv.URL},
		providers.Deps{Logger: zerolog.Nop(), Transport: http.DefaultTransport})
	require.NoError(t, err)
	return newFixtureWith(t, map[string]providers.Adapter{"stripe": adapter}, nil), &hits
}

func TestStripePollPersistsCompletion(t *testing.T) {
	f, hits := newStripeFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payment_intents/pi_1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","status":"succeeded","amount":10000,"currency":"eur"}`))
	})
	ctx := context.Background()
	tx := testutil.NewTestTransaction("stripe", "pi_1", status.Pending)
	f.transactions.Add(tx)

	res, err := f.transactionService().Status(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, res.Status)
	assert.Equal(t, "succeeded", res.ProviderStatus)
	assert.True(t, res.Changed)
	assert.Equal(t, int32(1), hits.Load())

	stored, err := f.transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, stored.Status)
	assert.Equal(t, 1, f.outbox.Len())
}

func TestStripeRejectsForeignPaymentDetails(t *testing.T) {
	f, hits := newStripeFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	_, err := f.transactionService().Create(context.Background(), CreateTransactionRequest{
		Provider: "stripe",
		Amount:   testutil.EUR(10000),
		PaymentDetails: map[string]any{
			"payer_email": "buyer@example.com",
			"brand_name":  "Shop",
		},
	})
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
	assert.Zero(t, hits.Load())
	assert.Zero(t, f.transactions.Count())
}
