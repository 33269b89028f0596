package providers

import (
	"context"
	"net/http"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
)

// Kind tags the payment network family an adapter talks to.
type Kind string

const (
	KindCard     Kind = "card"
	KindWallet   Kind = "wallet"
	KindBankRail Kind = "bank_rail"
	KindSandbox  Kind = "sandbox"
)

// Operation names an adapter call. Used for schemas, errors and metrics.
type Operation string

const (
	OpCreatePayment      Operation = "create_payment"
	OpCheckPaymentStatus Operation = "check_payment_status"
	OpProcessWebhook     Operation = "process_webhook"
	OpCreateSubscription Operation = "create_subscription"
	OpCancelSubscription Operation = "cancel_subscription"
	OpUpdateSubscription Operation = "update_subscription"
	OpCreateCustomer     Operation = "create_customer"
	OpHasPaymentMethod   Operation = "has_payment_method"
	OpCreateSetupSession Operation = "create_setup_session"
	OpSetDefaultMethod   Operation = "set_default_payment_method"
	OpCreateProduct      Operation = "create_product_and_price"
)

// Adapter is the contract every payment provider implements. Implementations
// hold only immutable configuration and are safe for concurrent use.
type Adapter interface {
	Kind() Kind

	// DetailsSchema returns the JSON Schema that payment_details must satisfy
	// for op, or "" when the operation takes no details.
	DetailsSchema(op Operation) string

	CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error)
	CheckPaymentStatus(ctx context.Context, providerTransactionID string) (*StatusResult, error)

	// ProcessWebhook decodes a provider notification. It performs no I/O.
	ProcessWebhook(payload []byte) (*WebhookEvent, error)

	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Result, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string) (*Result, error)

	// UpdateSubscription changes the plan. Adapters without in-place plan
	// changes cancel and recreate; when recreation fails they return a Result
	// describing the cancelled subscription together with an error wrapping
	// ErrPartialUpdate.
	UpdateSubscription(ctx context.Context, providerSubscriptionID string, plan PlanChange) (*Result, error)
}

// CustomerManager is implemented by providers with stored payment methods.
type CustomerManager interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (*CustomerResult, error)
	HasPaymentMethod(ctx context.Context, providerCustomerID string) (bool, error)
	CreateSetupSession(ctx context.Context, req SetupSessionRequest) (*SetupSession, error)
	// SetDefaultPaymentMethod promotes the customer's first stored method and
	// returns its id.
	SetDefaultPaymentMethod(ctx context.Context, providerCustomerID string) (string, error)
}

// ProductManager is implemented by providers with a product catalogue.
type ProductManager interface {
	CreateProductAndPrice(ctx context.Context, req ProductRequest) (*ProductResult, error)
}

// WebhookVerifier checks a notification's signature before it is decoded.
// Adapters without a configured secret accept every payload.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, header http.Header) error
}

type PaymentRequest struct {
	// Reference is the local transaction id. Adapters may attach it to the
	// provider object so notifications about related objects can be
	// matched back, see WebhookEvent.LocalReference.
	Reference      string
	Amount         money.Amount
	PaymentDetails map[string]any
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]any
	Description    string
}

type SubscriptionRequest struct {
	Amount         money.Amount
	Interval       subscription.Interval
	PlanName       string
	PaymentDetails map[string]any
	SuccessURL     string
	CancelURL      string
}

// PlanChange describes the target plan of an update. Adapters use PriceID
// when they have one and fall back to Amount and Interval.
type PlanChange struct {
	PlanID         string
	PriceID        string
	Amount         *money.Amount
	Interval       *subscription.Interval
	PaymentDetails map[string]any
}

// Result is the normalized outcome of an outbound operation.
type Result struct {
	ProviderTransactionID  string
	ProviderSubscriptionID string
	Status                 status.Status
	ProviderStatus         string
	CheckoutURL            string
	ClientSecret           string
	Metadata               map[string]any

	// Replaced is set when an update created a new provider subscription.
	Replaced bool
}

type StatusResult struct {
	Status         status.Status
	ProviderStatus string
	Details        map[string]any
}

// RecordType selects which local record a webhook event targets.
type RecordType string

const (
	RecordTransaction  RecordType = "transaction"
	RecordSubscription RecordType = "subscription"
)

type WebhookEvent struct {
	Record    RecordType
	Reference string
	Status    status.Status
	EventType string

	// LocalReference is the local transaction id echoed back by the
	// provider. It is used when Reference names a provider object other
	// than the one stored, such as the PaymentIntent behind a Checkout
	// Session.
	LocalReference string

	// RequiresPoll marks notifications that carry no status; the caller
	// must poll the provider for the current state.
	RequiresPoll bool
}

type CustomerRequest struct {
	Email    string
	Name     string
	Metadata map[string]any
}

type CustomerResult struct {
	ProviderCustomerID string
	Email              string
	Name               string
}

type SetupSessionRequest struct {
	ProviderCustomerID string
	SuccessURL         string
	CancelURL          string
}

type SetupSession struct {
	SessionID   string
	CheckoutURL string
}

type ProductRequest struct {
	Name        string
	Description string
	Amount      money.Amount
	// Interval makes the price recurring when set.
	Interval *subscription.Interval
}

type ProductResult struct {
	ProductID string
	PriceID   string
}

// Capabilities summarises the optional interfaces an adapter implements.
type Capabilities struct {
	Subscriptions     bool `json:"subscriptions"`
	Customers         bool `json:"customers"`
	Products          bool `json:"products"`
	WebhookSignatures bool `json:"webhook_signatures"`
}

// subscriptionless is implemented by NoSubscriptions.
type subscriptionless interface {
	subscriptionsUnsupported()
}

func CapabilitiesOf(a Adapter) Capabilities {
	_, noSubs := a.(subscriptionless)
	_, customers := a.(CustomerManager)
	_, products := a.(ProductManager)
	_, verifier := a.(WebhookVerifier)
	return Capabilities{
		Subscriptions:     !noSubs,
		Customers:         customers,
		Products:          products,
		WebhookSignatures: verifier,
	}
}

// NoSubscriptions is embedded by adapters whose network has no recurring
// billing. Every subscription method fails with ErrNotSupported before any
// I/O.
type NoSubscriptions struct {
	Provider string
}

func (n NoSubscriptions) subscriptionsUnsupported() {}

func (n NoSubscriptions) CreateSubscription(context.Context, SubscriptionRequest) (*Result, error) {
	return nil, domainErrors.NewNotSupportedError(n.Provider, string(OpCreateSubscription))
}

func (n NoSubscriptions) CancelSubscription(context.Context, string) (*Result, error) {
	return nil, domainErrors.NewNotSupportedError(n.Provider, string(OpCancelSubscription))
}

func (n NoSubscriptions) UpdateSubscription(context.Context, string, PlanChange) (*Result, error) {
	return nil, domainErrors.NewNotSupportedError(n.Provider, string(OpUpdateSubscription))
}
