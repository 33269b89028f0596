package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassiomorais/paygate/internal/domain/customer"
	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
)

type CustomerRepository struct {
	pool *pgxpool.Pool
}

func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO customers (id, provider, provider_customer_id, email, name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Provider, c.ProviderCustomerID, c.Email, c.Name, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s %s", domainErrors.ErrDuplicateProviderReference, c.Provider, c.ProviderCustomerID)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	return scanCustomer(r.db(ctx).QueryRow(ctx,
		`SELECT id, provider, provider_customer_id, email, name, created_at
		 FROM customers WHERE id = $1`, id))
}

func (r *CustomerRepository) GetByProviderRef(ctx context.Context, provider, providerCustomerID string) (*customer.Customer, error) {
	return scanCustomer(r.db(ctx).QueryRow(ctx,
		`SELECT id, provider, provider_customer_id, email, name, created_at
		 FROM customers WHERE provider = $1 AND provider_customer_id = $2`, provider, providerCustomerID))
}

func scanCustomer(s scanner) (*customer.Customer, error) {
	c := &customer.Customer{}
	if err := s.Scan(&c.ID, &c.Provider, &c.ProviderCustomerID, &c.Email, &c.Name, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}
