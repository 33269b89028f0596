package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
	"github.com/cassiomorais/paygate/internal/providers"
)

// CreateTransactionRequest holds the input for a one-time payment.
// Controllers convert their HTTP DTOs to this type.
type CreateTransactionRequest struct {
	Provider       string
	Amount         money.Amount
	PaymentDetails map[string]any
	SuccessURL     string
	CancelURL      string
	Description    string
	Metadata       map[string]any
}

// TransactionService creates payments and reads them back. Status changes
// after creation go through the Reconciler.
type TransactionService struct {
	registry     *providers.Registry
	transactions transaction.Repository
	reconciler   *Reconciler
	logger       zerolog.Logger
}

func NewTransactionService(
	registry *providers.Registry,
	transactions transaction.Repository,
	reconciler *Reconciler,
	logger zerolog.Logger,
) *TransactionService {
	return &TransactionService{
		registry:     registry,
		transactions: transactions,
		reconciler:   reconciler,
		logger:       logger.With().Str("component", "transactions").Logger(),
	}
}

// Create asks the provider to open a payment and stores the local record
// with the status the provider reported.
func (s *TransactionService) Create(ctx context.Context, req CreateTransactionRequest) (*transaction.Transaction, error) {
	key := providers.NormalizeKey(req.Provider)
	adapter, err := s.registry.Get(key)
	if err != nil {
		return nil, err
	}
	if err := req.Amount.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	res, err := adapter.CreatePayment(ctx, providers.PaymentRequest{
		Reference:      id.String(),
		Amount:         req.Amount,
		PaymentDetails: req.PaymentDetails,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		Metadata:       req.Metadata,
		Description:    req.Description,
	})
	if err != nil {
		return nil, err
	}
	if res.ProviderTransactionID == "" {
		return nil, domainErrors.NewRejectionError(key, string(providers.OpCreatePayment), "", "provider returned no transaction id")
	}

	tx := transaction.New(key, res.ProviderTransactionID, req.Amount, res.Status)
	tx.ID = id
	tx.SuccessURL = req.SuccessURL
	tx.CancelURL = req.CancelURL
	if req.Description != "" {
		tx.Description = &req.Description
	}
	if res.CheckoutURL != "" {
		tx.CheckoutURL = &res.CheckoutURL
	}
	for k, v := range req.Metadata {
		tx.Metadata[k] = v
	}
	if len(res.Metadata) > 0 {
		tx.Metadata["provider_metadata"] = res.Metadata
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("store transaction %s/%s: %w", key, res.ProviderTransactionID, err)
	}
	if res.ClientSecret != "" {
		tx.ClientSecret = &res.ClientSecret
	}

	s.logger.Info().
		Str("transaction_id", tx.ID.String()).
		Str("provider", key).
		Str("provider_transaction_id", tx.ProviderTransactionID).
		Str("status", string(tx.Status)).
		Str("amount", tx.Amount.String()).
		Msg("transaction created")
	return tx, nil
}

// Get returns the stored transaction after refreshing it from the provider.
// A failed refresh is logged and the stored record is returned unchanged.
func (s *TransactionService) Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	res, err := s.reconciler.PollTransaction(ctx, id)
	if err == nil {
		return res.Transaction, nil
	}

	tx, getErr := s.transactions.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	s.logger.Warn().Err(err).Str("transaction_id", id.String()).Msg("returning stored transaction without refresh")
	return tx, nil
}

// Status polls the provider and returns the remote view.
func (s *TransactionService) Status(ctx context.Context, id uuid.UUID) (*PollResult, error) {
	return s.reconciler.PollTransaction(ctx, id)
}

// StatusByProviderReference polls by provider-assigned id.
func (s *TransactionService) StatusByProviderReference(ctx context.Context, provider, ref string) (*PollResult, error) {
	return s.reconciler.PollByProviderReference(ctx, provider, ref)
}

func (s *TransactionService) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	if filter.Provider != nil {
		key := providers.NormalizeKey(*filter.Provider)
		filter.Provider = &key
	}
	return s.transactions.List(ctx, filter)
}

// PaymentURL returns the hosted checkout link of a transaction.
func (s *TransactionService) PaymentURL(ctx context.Context, id uuid.UUID) (string, error) {
	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if tx.CheckoutURL == nil || *tx.CheckoutURL == "" {
		return "", domainErrors.NewValidationError("checkout_url", "transaction has no checkout URL")
	}
	return *tx.CheckoutURL, nil
}
