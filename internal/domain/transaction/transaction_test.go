package transaction

import (
	"testing"

	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tx := New("stripe", "cs_test_123", money.Amount{Minor: 10000, Currency: "EUR"}, status.Pending)

	assert.NotEqual(t, uuid.Nil, tx.ID)
	assert.Equal(t, "stripe", tx.Provider)
	assert.Equal(t, "cs_test_123", tx.ProviderTransactionID)
	assert.Equal(t, status.Pending, tx.Status)
	assert.NotNil(t, tx.Metadata)
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestSetStatus_AnyTransitionAllowed(t *testing.T) {
	tx := New("stripe", "pi_1", money.Amount{Minor: 100, Currency: "USD"}, status.Pending)

	assert.True(t, tx.SetStatus(status.Completed))
	assert.False(t, tx.SetStatus(status.Completed))
	// Regression out of a terminal state is accepted.
	assert.True(t, tx.SetStatus(status.Pending))
	assert.Equal(t, status.Pending, tx.Status)
}
