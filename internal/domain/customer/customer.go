package customer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Customer is a provider-side payment-method holder.
type Customer struct {
	ID                 uuid.UUID
	Provider           string
	ProviderCustomerID string
	Email              string
	Name               string
	CreatedAt          time.Time
}

func New(provider, providerCustomerID, email, name string) *Customer {
	return &Customer{
		ID:                 uuid.New(),
		Provider:           provider,
		ProviderCustomerID: providerCustomerID,
		Email:              email,
		Name:               name,
		CreatedAt:          time.Now().UTC(),
	}
}

type Repository interface {
	Create(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetByProviderRef(ctx context.Context, provider, providerCustomerID string) (*Customer, error)
}
