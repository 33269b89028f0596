package outbox

import (
	"testing"

	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	aggregateID := uuid.New()
	entry := NewEntry(AggregateTransaction, aggregateID, EventTransactionStatusChanged, nil)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, aggregateID, entry.AggregateID)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.Nil(t, entry.PublishedAt)
}

func TestNewStatusChangeEntry(t *testing.T) {
	tests := []struct {
		name          string
		aggregateType string
		wantEvent     string
	}{
		{"transaction", AggregateTransaction, EventTransactionStatusChanged},
		{"subscription", AggregateSubscription, EventSubscriptionStatusChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			entry := NewStatusChangeEntry(StatusChange{
				AggregateType:     tt.aggregateType,
				AggregateID:       id,
				Provider:          "stripe",
				ProviderReference: "pi_123",
				From:              status.Pending,
				To:                status.Completed,
				Source:            SourceWebhook,
			})

			assert.Equal(t, tt.wantEvent, entry.EventType)
			assert.Equal(t, tt.aggregateType, entry.AggregateType)
			assert.Equal(t, id, entry.AggregateID)
			assert.Equal(t, "PENDING", entry.Payload["from"])
			assert.Equal(t, "COMPLETED", entry.Payload["to"])
			assert.Equal(t, "webhook", entry.Payload["source"])
			assert.Equal(t, "pi_123", entry.Payload["provider_reference"])
		})
	}
}

func TestEntry_UniqueIDs(t *testing.T) {
	aggregateID := uuid.New()
	entry1 := NewEntry(AggregateTransaction, aggregateID, EventTransactionStatusChanged, nil)
	entry2 := NewEntry(AggregateTransaction, aggregateID, EventTransactionStatusChanged, nil)

	assert.NotEqual(t, entry1.ID, entry2.ID)
	assert.Equal(t, entry1.AggregateID, entry2.AggregateID)
}

func TestEntry_RecordFailedAttempt(t *testing.T) {
	entry := NewEntry(AggregateTransaction, uuid.New(), EventTransactionStatusChanged, nil)
	entry.MaxRetries = 2

	entry.RecordFailedAttempt()
	assert.Equal(t, 1, entry.RetryCount)
	assert.Equal(t, StatusPending, entry.Status, "still retryable")

	entry.RecordFailedAttempt()
	assert.Equal(t, 2, entry.RetryCount)
	assert.Equal(t, StatusFailed, entry.Status)
}
