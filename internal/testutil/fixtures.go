package testutil

import (
	"time"

	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
)

// EUR returns an amount of minor euro units.
func EUR(minor int64) money.Amount {
	return money.Amount{Minor: minor, Currency: "EUR"}
}

func NewTestTransaction(provider, ref string, st status.Status) *transaction.Transaction {
	tx := transaction.New(provider, ref, EUR(10000), st)
	url := "https://checkout.example/" + ref
	tx.CheckoutURL = &url
	return tx
}

// NewStaleTransaction is created age ago.
func NewStaleTransaction(provider, ref string, st status.Status, age time.Duration) *transaction.Transaction {
	tx := NewTestTransaction(provider, ref, st)
	tx.CreatedAt = time.Now().UTC().Add(-age)
	tx.UpdatedAt = tx.CreatedAt
	return tx
}

func NewTestSubscription(provider, ref string, st status.Status) *subscription.Subscription {
	return subscription.New("user-1", "plan-basic", provider, ref,
		money.Amount{Minor: 999, Currency: "USD"},
		subscription.Interval{Unit: subscription.Month, Count: 1}, st)
}
