package service

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/testutil"
)

// --- Test Helpers ---

type fixture struct {
	adapter       *testutil.MockAdapter
	registry      *providers.Registry
	transactions  *testutil.MockTransactionRepository
	subscriptions *testutil.MockSubscriptionRepository
	customers     *testutil.MockCustomerRepository
	outbox        *testutil.MockOutboxRepository
	txManager     *testutil.MockTransactionManager
	metrics       *observability.Metrics
	reconciler    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	adapter := testutil.NewMockAdapter()
	return newFixtureWith(t, map[string]providers.Adapter{"mock": adapter}, adapter)
}

func newFixtureWith(t *testing.T, adapters map[string]providers.Adapter, mock *testutil.MockAdapter) *fixture {
	t.Helper()
	reg, err := providers.NewStaticRegistry(adapters)
	require.NoError(t, err)

	f := &fixture{
		adapter:       mock,
		registry:      reg,
		transactions:  testutil.NewMockTransactionRepository(),
		subscriptions: testutil.NewMockSubscriptionRepository(),
		customers:     testutil.NewMockCustomerRepository(),
		outbox:        &testutil.MockOutboxRepository{},
		txManager:     testutil.NewMockTransactionManager(),
		metrics:       observability.NewNopMetrics(),
	}
	f.reconciler = NewReconciler(reg, f.transactions, f.subscriptions, f.outbox, f.txManager, f.metrics, zerolog.Nop())
	return f
}

func (f *fixture) transactionService() *TransactionService {
	return NewTransactionService(f.registry, f.transactions, f.reconciler, zerolog.Nop())
}

func (f *fixture) subscriptionService() *SubscriptionService {
	return NewSubscriptionService(f.registry, f.subscriptions, f.reconciler, zerolog.Nop())
}
