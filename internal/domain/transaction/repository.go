package transaction

import (
	"context"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/google/uuid"
)

// Repository defines the interface for transaction persistence
type Repository interface {
	// Create inserts a new transaction
	Create(ctx context.Context, tx *Transaction) error

	// GetByID retrieves a transaction by internal ID
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByProviderRef retrieves a transaction by (provider, provider_transaction_id)
	GetByProviderRef(ctx context.Context, provider, providerTxID string) (*Transaction, error)

	// UpdateStatus persists the status and updated_at of a transaction
	UpdateStatus(ctx context.Context, tx *Transaction) error

	// List lists transactions with filters
	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)
}

// ListFilter holds filters for listing transactions
type ListFilter struct {
	Provider      *string
	Statuses      []status.Status
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	Limit         int
	Offset        int
}
