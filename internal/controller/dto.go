package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/cassiomorais/paygate/internal/domain/customer"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/service"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (decimal strings for money, string
// IDs, validation tags). Controllers convert them to service requests.

// DecimalAmount accepts a JSON string ("100.00") or a bare number (100.00)
// and keeps its literal text so money.Parse sees the exact digits.
type DecimalAmount string

func (d *DecimalAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = DecimalAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("amount must be a string or number")
	}
	*d = DecimalAmount(n.String())
	return nil
}

// CreateTransactionRequest holds the input for a one-time payment.
type CreateTransactionRequest struct {
	Amount         DecimalAmount  `json:"amount" validate:"required"`
	Currency       string         `json:"currency" validate:"required,len=3"`
	PaymentDetails map[string]any `json:"payment_details,omitempty"`
	SuccessURL     string         `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL      string         `json:"cancel_url,omitempty" validate:"omitempty,url"`
	Description    string         `json:"description,omitempty" validate:"max=500"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CreateSubscriptionRequest holds the input for a recurring payment.
// UserID defaults to the authenticated caller.
type CreateSubscriptionRequest struct {
	UserID         string         `json:"user_id,omitempty"`
	PlanID         string         `json:"plan_id" validate:"required"`
	PlanName       string         `json:"plan_name,omitempty"`
	Amount         DecimalAmount  `json:"amount" validate:"required"`
	Currency       string         `json:"currency" validate:"required,len=3"`
	Interval       string         `json:"interval" validate:"required,oneof=day week month year"`
	IntervalCount  int            `json:"interval_count,omitempty" validate:"gte=0"`
	PaymentDetails map[string]any `json:"payment_details,omitempty"`
	SuccessURL     string         `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL      string         `json:"cancel_url,omitempty" validate:"omitempty,url"`
	TransactionID  *string        `json:"transaction_id,omitempty" validate:"omitempty,uuid"`
}

// UpdateSubscriptionRequest changes the plan of a subscription. Amount and
// interval are optional; adapters that recreate the subscription need them.
type UpdateSubscriptionRequest struct {
	PlanID         string         `json:"plan_id" validate:"required"`
	PriceID        string         `json:"price_id,omitempty"`
	Amount         DecimalAmount  `json:"amount,omitempty"`
	Currency       string         `json:"currency,omitempty" validate:"omitempty,len=3"`
	Interval       string         `json:"interval,omitempty" validate:"omitempty,oneof=day week month year"`
	IntervalCount  int            `json:"interval_count,omitempty" validate:"gte=0"`
	PaymentDetails map[string]any `json:"payment_details,omitempty"`
}

type CreateCustomerRequest struct {
	Email    string         `json:"email" validate:"required,email"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SetupSessionRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// CreateProductRequest creates a product with one price. Interval makes the
// price recurring.
type CreateProductRequest struct {
	Name          string        `json:"name" validate:"required"`
	Description   string        `json:"description,omitempty"`
	Amount        DecimalAmount `json:"amount" validate:"required"`
	Currency      string        `json:"currency" validate:"required,len=3"`
	Interval      string        `json:"interval,omitempty" validate:"omitempty,oneof=day week month year"`
	IntervalCount int           `json:"interval_count,omitempty" validate:"gte=0"`
}

// --- Response DTOs ---

// TransactionResponse represents a transaction in API responses.
// ClientSecret is only present on the create response.
type TransactionResponse struct {
	ID                    string         `json:"id"`
	Provider              string         `json:"provider"`
	ProviderTransactionID string         `json:"provider_transaction_id"`
	Status                string         `json:"status"`
	Amount                string         `json:"amount"`
	AmountMinor           int64          `json:"amount_minor"`
	Currency              string         `json:"currency"`
	CheckoutURL           *string        `json:"checkout_url,omitempty"`
	ClientSecret          *string        `json:"client_secret,omitempty"`
	Description           *string        `json:"description,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

type StatusResponse struct {
	TransactionID  *string        `json:"transaction_id,omitempty"`
	Status         string         `json:"status"`
	ProviderStatus string         `json:"provider_status,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Changed        bool           `json:"changed"`
}

type SubscriptionResponse struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"user_id"`
	PlanID                 string     `json:"plan_id"`
	Provider               string     `json:"provider"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	Status                 string     `json:"status"`
	Amount                 string     `json:"amount"`
	Currency               string     `json:"currency"`
	Interval               string     `json:"interval"`
	IntervalCount          int        `json:"interval_count"`
	CheckoutURL            *string    `json:"checkout_url,omitempty"`
	TransactionID          *string    `json:"transaction_id,omitempty"`
	StartDate              time.Time  `json:"start_date"`
	EndDate                *time.Time `json:"end_date,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type CustomerResponse struct {
	ID                 string    `json:"id"`
	Provider           string    `json:"provider"`
	ProviderCustomerID string    `json:"provider_customer_id"`
	Email              string    `json:"email"`
	Name               string    `json:"name,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type PaymentURLResponse struct {
	PaymentURL string `json:"payment_url"`
}

// WebhookAck is the only body a webhook response carries.
type WebhookAck struct {
	Status string `json:"status"`
}

type HasPaymentMethodResponse struct {
	HasPaymentMethod bool `json:"has_payment_method"`
}

type DefaultPaymentMethodResponse struct {
	PaymentMethodID string `json:"payment_method_id"`
}

type SetupSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type ProductResponse struct {
	ProductID string `json:"product_id"`
	PriceID   string `json:"price_id"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// --- Mappers ---

func toTransactionResponse(tx *transaction.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                    tx.ID.String(),
		Provider:              tx.Provider,
		ProviderTransactionID: tx.ProviderTransactionID,
		Status:                string(tx.Status),
		Amount:                tx.Amount.Decimal(),
		AmountMinor:           tx.Amount.Minor,
		Currency:              tx.Amount.Currency,
		CheckoutURL:           tx.CheckoutURL,
		ClientSecret:          tx.ClientSecret,
		Description:           tx.Description,
		Metadata:              tx.Metadata,
		CreatedAt:             tx.CreatedAt,
		UpdatedAt:             tx.UpdatedAt,
	}
}

func toStatusResponse(res *service.PollResult) StatusResponse {
	resp := StatusResponse{
		Status:         string(res.Status),
		ProviderStatus: res.ProviderStatus,
		Details:        res.Details,
		Changed:        res.Changed,
	}
	if res.Transaction != nil {
		id := res.Transaction.ID.String()
		resp.TransactionID = &id
	}
	return resp
}

func toSubscriptionResponse(sub *subscription.Subscription) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:                     sub.ID.String(),
		UserID:                 sub.UserID,
		PlanID:                 sub.PlanID,
		Provider:               sub.Provider,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Status:                 string(sub.Status),
		Amount:                 sub.Amount.Decimal(),
		Currency:               sub.Amount.Currency,
		Interval:               string(sub.Interval.Unit),
		IntervalCount:          sub.Interval.Count,
		CheckoutURL:            sub.CheckoutURL,
		StartDate:              sub.StartDate,
		EndDate:                sub.EndDate,
		CreatedAt:              sub.CreatedAt,
		UpdatedAt:              sub.UpdatedAt,
	}
	if sub.TransactionID != nil {
		id := sub.TransactionID.String()
		resp.TransactionID = &id
	}
	return resp
}

func toCustomerResponse(c *customer.Customer) CustomerResponse {
	return CustomerResponse{
		ID:                 c.ID.String(),
		Provider:           c.Provider,
		ProviderCustomerID: c.ProviderCustomerID,
		Email:              c.Email,
		Name:               c.Name,
		CreatedAt:          c.CreatedAt,
	}
}

// parseAmount converts the wire pair into an exact amount.
func parseAmount(value DecimalAmount, currency string) (money.Amount, error) {
	return money.Parse(string(value), currency)
}

// parseInterval returns nil when no unit was given.
func parseInterval(unit string, count int) (*subscription.Interval, error) {
	if unit == "" {
		return nil, nil
	}
	iv, err := subscription.ParseInterval(unit, count)
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func toProductResponse(res *providers.ProductResult) ProductResponse {
	return ProductResponse{ProductID: res.ProductID, PriceID: res.PriceID}
}
