package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Writer records status changes. It is called inside the database
// transaction that persists the new status, so the change and its event
// commit or roll back together.
type Writer interface {
	Insert(ctx context.Context, entry *Entry) error
}

// Relay is the publishing side.
//
// GetPending returns up to limit pending entries, oldest first, locked for
// the enclosing transaction so concurrent relays skip them. MarkFailed
// counts one failed publish attempt; once RetryCount reaches MaxRetries the
// entry becomes StatusFailed and is never returned again.
type Relay interface {
	GetPending(ctx context.Context, limit int) ([]*Entry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type Repository interface {
	Writer
	Relay
}
