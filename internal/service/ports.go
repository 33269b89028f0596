package service

import (
	"context"

	"github.com/cassiomorais/paygate/internal/domain/outbox"
)

// TransactionManager wraps repository calls in a single database
// transaction carried on the context.
type TransactionManager interface {
	// WithTransaction commits when fn returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher delivers outbox entries to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, entry *outbox.Entry) (string, error)
}

// Locker hands out a lease for name. ok is false when another instance holds
// it; release must be called once the work is done.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(context.Context) error, ok bool, err error)
}
