package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoredResponse is a captured HTTP response replayed for a repeated
// Idempotency-Key.
type StoredResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	// RequestHash fingerprints the request that produced the response.
	RequestHash string    `json:"request_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// IdempotencyStore keeps responses keyed by scope and Idempotency-Key.
type IdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// IdempotencyKey is the Redis key for a client key within scope.
func IdempotencyKey(scope, key string) string {
	return "paygate:idem:" + scope + ":" + key
}

func inflightKey(scope, key string) string {
	return IdempotencyKey(scope, key) + ":inflight"
}

// Get returns the stored response, or nil when there is none.
func (s *IdempotencyStore) Get(ctx context.Context, scope, key string) (*StoredResponse, error) {
	raw, err := s.client.Get(ctx, IdempotencyKey(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return &resp, nil
}

// Reserve marks key as in flight. It returns false when another request
// holds the reservation.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, inflightKey(scope, key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Release drops the in-flight marker.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, inflightKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Save stores resp for the configured TTL.
func (s *IdempotencyStore) Save(ctx context.Context, scope, key string, resp *StoredResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, IdempotencyKey(scope, key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}
