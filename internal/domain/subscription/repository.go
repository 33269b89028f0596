package subscription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// GetByProviderRef returns the most recent subscription for the
	// provider-assigned id.
	GetByProviderRef(ctx context.Context, provider, providerSubID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
}
