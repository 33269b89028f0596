// Package sandbox is an in-process payment provider for local development.
// It answers every call itself with configurable latency and failure rates.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
)

const (
	txnPrefix = "sbx_txn_"
	subPrefix = "sbx_sub_"
)

// Adapter simulates a card processor.
type Adapter struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
	checkoutURL string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithFailureRate sets the probability that a call is rejected.
func WithFailureRate(rate float64) Option {
	return func(a *Adapter) { a.failureRate = rate }
}

// WithLatency sets the simulated processing latency.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) { a.latency = d }
}

// WithTimeoutRate sets the probability of a simulated network failure.
func WithTimeoutRate(rate float64) Option {
	return func(a *Adapter) { a.timeoutRate = rate }
}

// WithCheckoutBaseURL sets the base of the returned checkout links.
func WithCheckoutBaseURL(u string) Option {
	return func(a *Adapter) { a.checkoutURL = strings.TrimRight(u, "/") }
}

func New(name string, opts ...Option) *Adapter {
	a := &Adapter{
		name:        name,
		latency:     100 * time.Millisecond,
		checkoutURL: "https://sandbox.paygate.local/checkout",
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Build is the providers.Builder for type "sandbox". BaseURL overrides the
// checkout link base.
func Build(key string, cfg config.ProviderConfig, _ providers.Deps) (providers.Adapter, error) {
	opts := []Option{}
	if cfg.BaseURL != "" {
		opts = append(opts, WithCheckoutBaseURL(cfg.BaseURL))
	}
	return New(key, opts...), nil
}

var _ providers.Adapter = (*Adapter)(nil)

func (a *Adapter) Kind() providers.Kind { return providers.KindSandbox }

func (a *Adapter) DetailsSchema(providers.Operation) string { return "" }

// simulate waits for the configured latency and rolls the failure dice.
func (a *Adapter) simulate(ctx context.Context, op providers.Operation) error {
	select {
	case <-time.After(a.latency):
	case <-ctx.Done():
		return domainErrors.NewNetworkError(a.name, string(op), ctx.Err())
	}

	if rand.Float64() < a.timeoutRate {
		return domainErrors.NewNetworkError(a.name, string(op), context.DeadlineExceeded)
	}
	if rand.Float64() < a.failureRate {
		return domainErrors.NewRejectionError(a.name, string(op), "simulated_decline", "simulated processing failure")
	}
	return nil
}

func newReference(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

func (a *Adapter) CreatePayment(ctx context.Context, req providers.PaymentRequest) (*providers.Result, error) {
	if err := a.simulate(ctx, providers.OpCreatePayment); err != nil {
		return nil, err
	}
	ref := newReference(txnPrefix)
	return &providers.Result{
		ProviderTransactionID: ref,
		Status:                status.Pending,
		ProviderStatus:        "created",
		CheckoutURL:           a.checkoutURL + "/" + ref,
		Metadata:              map[string]any{"amount": req.Amount.String()},
	}, nil
}

// CheckPaymentStatus reports every sandbox payment as settled.
func (a *Adapter) CheckPaymentStatus(ctx context.Context, providerTransactionID string) (*providers.StatusResult, error) {
	if !strings.HasPrefix(providerTransactionID, txnPrefix) {
		return nil, domainErrors.NewRejectionError(a.name, string(providers.OpCheckPaymentStatus), "resource_missing", fmt.Sprintf("no such payment: %s", providerTransactionID))
	}
	if err := a.simulate(ctx, providers.OpCheckPaymentStatus); err != nil {
		return nil, err
	}
	return &providers.StatusResult{Status: status.Completed, ProviderStatus: "settled"}, nil
}

type webhookPayload struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Event     string `json:"event"`
}

// ProcessWebhook accepts {"type","reference","status","event"} documents
// with an already unified status.
func (a *Adapter) ProcessWebhook(payload []byte) (*providers.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed JSON: "+err.Error())
	}
	if p.Reference == "" {
		return nil, domainErrors.NewValidationError("reference", "is required")
	}

	var record providers.RecordType
	switch p.Type {
	case "", string(providers.RecordTransaction):
		record = providers.RecordTransaction
	case string(providers.RecordSubscription):
		record = providers.RecordSubscription
	default:
		return nil, domainErrors.NewUnsupportedEventError(a.name, p.Type)
	}

	st, err := status.Parse(p.Status)
	if err != nil {
		return nil, domainErrors.NewUnsupportedEventError(a.name, p.Event)
	}
	return &providers.WebhookEvent{
		Record:    record,
		Reference: p.Reference,
		Status:    st,
		EventType: p.Event,
	}, nil
}

func (a *Adapter) CreateSubscription(ctx context.Context, req providers.SubscriptionRequest) (*providers.Result, error) {
	if err := a.simulate(ctx, providers.OpCreateSubscription); err != nil {
		return nil, err
	}
	ref := newReference(subPrefix)
	return &providers.Result{
		ProviderSubscriptionID: ref,
		Status:                 status.Processing,
		ProviderStatus:         "active",
		CheckoutURL:            a.checkoutURL + "/" + ref,
	}, nil
}

func (a *Adapter) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*providers.Result, error) {
	if err := a.simulate(ctx, providers.OpCancelSubscription); err != nil {
		return nil, err
	}
	return &providers.Result{
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 status.Cancelled,
		ProviderStatus:         "canceled",
	}, nil
}

func (a *Adapter) UpdateSubscription(ctx context.Context, providerSubscriptionID string, _ providers.PlanChange) (*providers.Result, error) {
	if err := a.simulate(ctx, providers.OpUpdateSubscription); err != nil {
		return nil, err
	}
	return &providers.Result{
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 status.Processing,
		ProviderStatus:         "active",
	}, nil
}
