package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassiomorais/paygate/internal/domain/outbox"
)

// OutboxRepository stores status-change events written in the same
// transaction as the record they describe.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

var _ outbox.Repository = (*OutboxRepository)(nil)

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, max_retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.AggregateType, entry.AggregateID, entry.EventType, payload,
		string(entry.Status), entry.RetryCount, entry.MaxRetries, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// GetPending returns the oldest pending entries. Rows are locked with SKIP
// LOCKED, so relays running in a transaction do not pick the same rows.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, max_retries, created_at, published_at
		 FROM outbox WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`, string(outbox.StatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = $1, published_at = $2 WHERE id = $3`,
		string(outbox.StatusPublished), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// MarkFailed counts a failed publish. The entry stays pending until it has
// used up max_retries.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1,
		        status = CASE WHEN retry_count + 1 >= max_retries THEN $1::varchar ELSE $2::varchar END
		 WHERE id = $3`, string(outbox.StatusFailed), string(outbox.StatusPending), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func scanOutboxEntry(s scanner) (*outbox.Entry, error) {
	e := &outbox.Entry{}
	var (
		payload []byte
		st      string
	)
	if err := s.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &st,
		&e.RetryCount, &e.MaxRetries, &e.CreatedAt, &e.PublishedAt); err != nil {
		return nil, fmt.Errorf("scan outbox entry: %w", err)
	}
	e.Status = outbox.Status(st)
	e.Payload = make(map[string]any)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
	}
	return e, nil
}
