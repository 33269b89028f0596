package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cassiomorais/paygate/internal/domain/outbox"
)

// DefaultStatusStream receives every reconciled status change.
const DefaultStatusStream = "paygate:status-events"

// streamMaxLen caps the stream so that it is trimmed approximately.
const streamMaxLen = 100_000

// StatusEventPublisher appends outbox entries to a Redis stream.
type StatusEventPublisher struct {
	client redis.UniversalClient
	stream string
}

func NewStatusEventPublisher(client redis.UniversalClient, stream string) *StatusEventPublisher {
	if stream == "" {
		stream = DefaultStatusStream
	}
	return &StatusEventPublisher{client: client, stream: stream}
}

func (p *StatusEventPublisher) Stream() string { return p.stream }

// Publish appends entry and returns the stream message id.
func (p *StatusEventPublisher) Publish(ctx context.Context, entry *outbox.Entry) (string, error) {
	values, err := StreamValues(entry)
	if err != nil {
		return "", err
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish %s to %s: %w", entry.EventType, p.stream, err)
	}
	return id, nil
}

// StreamValues is the flat field map written for one entry.
func StreamValues(entry *outbox.Entry) (map[string]any, error) {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload %s: %w", entry.ID, err)
	}
	return map[string]any{
		"event_id":       entry.ID.String(),
		"event_type":     entry.EventType,
		"aggregate_type": entry.AggregateType,
		"aggregate_id":   entry.AggregateID.String(),
		"payload":        string(payload),
		"created_at":     entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}
