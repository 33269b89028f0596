package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/paygate/internal/domain/customer"
	"github.com/cassiomorais/paygate/internal/providers"
)

type CreateCustomerRequest struct {
	Provider string
	Email    string
	Name     string
	Metadata map[string]any
}

// CustomerService manages provider-side customers and their stored payment
// methods.
type CustomerService struct {
	registry  *providers.Registry
	customers customer.Repository
	logger    zerolog.Logger
}

func NewCustomerService(registry *providers.Registry, customers customer.Repository, logger zerolog.Logger) *CustomerService {
	return &CustomerService{
		registry:  registry,
		customers: customers,
		logger:    logger.With().Str("component", "customers").Logger(),
	}
}

func (s *CustomerService) Create(ctx context.Context, req CreateCustomerRequest) (*customer.Customer, error) {
	key := providers.NormalizeKey(req.Provider)
	cm, err := s.registry.Customers(key)
	if err != nil {
		return nil, err
	}

	res, err := cm.CreateCustomer(ctx, providers.CustomerRequest{
		Email:    req.Email,
		Name:     req.Name,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	email, name := res.Email, res.Name
	if email == "" {
		email = req.Email
	}
	if name == "" {
		name = req.Name
	}
	c := customer.New(key, res.ProviderCustomerID, email, name)
	if err := s.customers.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("store customer %s/%s: %w", key, res.ProviderCustomerID, err)
	}

	s.logger.Info().Str("customer_id", c.ID.String()).Str("provider", key).Msg("customer created")
	return c, nil
}

func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	return s.customers.GetByID(ctx, id)
}

func (s *CustomerService) HasPaymentMethod(ctx context.Context, provider, providerCustomerID string) (bool, error) {
	cm, err := s.registry.Customers(provider)
	if err != nil {
		return false, err
	}
	return cm.HasPaymentMethod(ctx, providerCustomerID)
}

// SetDefaultPaymentMethod promotes the customer's first stored method and
// returns its id.
func (s *CustomerService) SetDefaultPaymentMethod(ctx context.Context, provider, providerCustomerID string) (string, error) {
	cm, err := s.registry.Customers(provider)
	if err != nil {
		return "", err
	}
	return cm.SetDefaultPaymentMethod(ctx, providerCustomerID)
}

func (s *CustomerService) CreateSetupSession(ctx context.Context, provider string, req providers.SetupSessionRequest) (*providers.SetupSession, error) {
	cm, err := s.registry.Customers(provider)
	if err != nil {
		return nil, err
	}
	return cm.CreateSetupSession(ctx, req)
}

// ProductService creates catalogue entries at providers that have one.
type ProductService struct {
	registry *providers.Registry
}

func NewProductService(registry *providers.Registry) *ProductService {
	return &ProductService{registry: registry}
}

func (s *ProductService) CreateProductAndPrice(ctx context.Context, provider string, req providers.ProductRequest) (*providers.ProductResult, error) {
	pm, err := s.registry.Products(provider)
	if err != nil {
		return nil, err
	}
	if err := req.Amount.Validate(); err != nil {
		return nil, err
	}
	return pm.CreateProductAndPrice(ctx, req)
}
