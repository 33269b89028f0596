//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cassiomorais/paygate/internal/domain/customer"
	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/outbox"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("paygate"),
		tcpostgres.WithUsername("paygate"),
		tcpostgres.WithPassword("paygate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(url))

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRepositories(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	txRepo := NewTransactionRepository(pool)
	subRepo := NewSubscriptionRepository(pool)
	custRepo := NewCustomerRepository(pool)
	outboxRepo := NewOutboxRepository(pool)
	tm := NewTxManager(pool)

	t.Run("transaction round trip", func(t *testing.T) {
		amount, err := money.Parse("100.00", "EUR")
		require.NoError(t, err)
		tx := transaction.New("stripe", "cs_test_1", amount, status.Pending)
		url := "https://checkout.stripe.com/c/cs_test_1"
		tx.CheckoutURL = &url
		tx.Metadata["order"] = "42"
		require.NoError(t, txRepo.Create(ctx, tx))

		got, err := txRepo.GetByProviderRef(ctx, "stripe", "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, tx.ID, got.ID)
		assert.Equal(t, amount, got.Amount)
		assert.Equal(t, status.Pending, got.Status)
		assert.Equal(t, url, *got.CheckoutURL)
		assert.Equal(t, "42", got.Metadata["order"])

		got.SetStatus(status.Completed)
		require.NoError(t, txRepo.UpdateStatus(ctx, got))
		again, err := txRepo.GetByID(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Completed, again.Status)
	})

	t.Run("duplicate provider reference", func(t *testing.T) {
		amount := money.Amount{Minor: 500, Currency: "USD"}
		require.NoError(t, txRepo.Create(ctx, transaction.New("paypal", "ORDER-DUP", amount, status.Pending)))
		err := txRepo.Create(ctx, transaction.New("paypal", "ORDER-DUP", amount, status.Pending))
		assert.ErrorIs(t, err, domainErrors.ErrDuplicateProviderReference)

		// Same reference at another provider is a different record.
		assert.NoError(t, txRepo.Create(ctx, transaction.New("revolut", "ORDER-DUP", amount, status.Pending)))
	})

	t.Run("missing records", func(t *testing.T) {
		_, err := txRepo.GetByProviderRef(ctx, "stripe", "nope")
		assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
		_, err = subRepo.GetByProviderRef(ctx, "stripe", "nope")
		assert.ErrorIs(t, err, domainErrors.ErrSubscriptionNotFound)
		_, err = custRepo.GetByProviderRef(ctx, "stripe", "nope")
		assert.ErrorIs(t, err, domainErrors.ErrCustomerNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		provider := "revolut"
		list, err := txRepo.List(ctx, transaction.ListFilter{
			Provider: &provider,
			Statuses: []status.Status{status.Pending, status.Processing},
		})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "ORDER-DUP", list[0].ProviderTransactionID)

		future := time.Now().Add(time.Hour)
		all, err := txRepo.List(ctx, transaction.ListFilter{CreatedBefore: &future, Limit: 100})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 3)
	})

	t.Run("subscription update and replace", func(t *testing.T) {
		sub := subscription.New("user-1", "pro", "paypal", "I-OLD",
			money.Amount{Minor: 999, Currency: "USD"},
			subscription.Interval{Unit: subscription.Month, Count: 1}, status.Pending)
		require.NoError(t, subRepo.Create(ctx, sub))

		sub.Replace("I-NEW", "pro-plus", money.Amount{Minor: 1999, Currency: "USD"},
			subscription.Interval{Unit: subscription.Year, Count: 1}, status.Pending)
		require.NoError(t, subRepo.Update(ctx, sub))

		got, err := subRepo.GetByProviderRef(ctx, "paypal", "I-NEW")
		require.NoError(t, err)
		assert.Equal(t, sub.ID, got.ID)
		assert.Equal(t, int64(1999), got.Amount.Minor)
		assert.Equal(t, subscription.Year, got.Interval.Unit)
		assert.Nil(t, got.EndDate)

		got.SetStatus(status.Cancelled)
		require.NoError(t, subRepo.Update(ctx, got))
		final, err := subRepo.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Cancelled, final.Status)
		assert.NotNil(t, final.EndDate)
	})

	t.Run("customer unique per provider", func(t *testing.T) {
		require.NoError(t, custRepo.Create(ctx, customer.New("stripe", "cus_1", "a@example.com", "A")))
		err := custRepo.Create(ctx, customer.New("stripe", "cus_1", "b@example.com", "B"))
		assert.ErrorIs(t, err, domainErrors.ErrDuplicateProviderReference)
	})

	t.Run("outbox written in transaction", func(t *testing.T) {
		tx := transaction.New("stripe", "pi_outbox", money.Amount{Minor: 100, Currency: "EUR"}, status.Pending)
		require.NoError(t, txRepo.Create(ctx, tx))

		errBoom := errors.New("boom")
		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			tx.SetStatus(status.Completed)
			if err := txRepo.UpdateStatus(ctx, tx); err != nil {
				return err
			}
			if err := outboxRepo.Insert(ctx, outbox.NewStatusChangeEntry(outbox.StatusChange{
				AggregateType: outbox.AggregateTransaction, AggregateID: tx.ID,
				From: status.Pending, To: status.Completed, Source: outbox.SourcePoll,
			})); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		got, err := txRepo.GetByID(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, status.Pending, got.Status, "rolled back")

		pending, err := outboxRepo.GetPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		entry := outbox.NewStatusChangeEntry(outbox.StatusChange{
			AggregateType: outbox.AggregateTransaction, AggregateID: tx.ID,
			From: status.Pending, To: status.Completed, Source: outbox.SourcePoll,
		})
		entry.MaxRetries = 1
		require.NoError(t, outboxRepo.Insert(ctx, entry))

		pending, err = outboxRepo.GetPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "COMPLETED", pending[0].Payload["to"])

		require.NoError(t, outboxRepo.MarkFailed(ctx, entry.ID))
		pending, err = outboxRepo.GetPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "retries exhausted")
	})
}
