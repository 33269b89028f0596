package outbox

import (
	"time"

	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/google/uuid"
)

const (
	AggregateTransaction  = "transaction"
	AggregateSubscription = "subscription"

	EventTransactionStatusChanged  = "transaction.status_changed"
	EventSubscriptionStatusChanged = "subscription.status_changed"
)

// Source tells consumers which reconciliation channel produced a change.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceCommand Source = "command"
)

type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    5,
		CreatedAt:     time.Now().UTC(),
	}
}

// RecordFailedAttempt counts one failed publish and retires the entry when
// its attempts are used up.
func (e *Entry) RecordFailedAttempt() {
	e.RetryCount++
	if e.RetryCount >= e.MaxRetries {
		e.Status = StatusFailed
	}
}

// StatusChange describes one reconciled status write.
type StatusChange struct {
	AggregateType     string
	AggregateID       uuid.UUID
	Provider          string
	ProviderReference string
	From              status.Status
	To                status.Status
	Source            Source
}

// NewStatusChangeEntry builds the outbox entry for a status change.
func NewStatusChangeEntry(c StatusChange) *Entry {
	eventType := EventTransactionStatusChanged
	if c.AggregateType == AggregateSubscription {
		eventType = EventSubscriptionStatusChanged
	}
	return NewEntry(c.AggregateType, c.AggregateID, eventType, map[string]any{
		"provider":           c.Provider,
		"provider_reference": c.ProviderReference,
		"from":               string(c.From),
		"to":                 string(c.To),
		"source":             string(c.Source),
	})
}
