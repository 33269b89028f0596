// Package mercadopago adapts Mercado Pago direct payments through the
// official Go SDK. Notifications carry no status, so every webhook asks the
// caller to poll.
package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/rs/zerolog"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
)

var paymentStatuses = status.Mapping{
	"pending":      status.Pending,
	"authorized":   status.Processing,
	"in_process":   status.Processing,
	"in_mediation": status.Processing,
	"approved":     status.Completed,
	"rejected":     status.Failed,
	"charged_back": status.Failed,
	"cancelled":    status.Cancelled,
	"refunded":     status.Cancelled,
}

const paymentSchema = `{
  "type": "object",
  "properties": {
    "payment_method_id": {"type": "string", "minLength": 1},
    "payer_email": {"type": "string", "format": "email"},
    "token": {"type": "string"},
    "installments": {"type": "integer", "minimum": 1},
    "external_reference": {"type": "string", "maxLength": 256}
  },
  "required": ["payment_method_id", "payer_email"],
  "additionalProperties": false
}`

// paymentAPI is the part of payment.Client the adapter uses.
type paymentAPI interface {
	Create(ctx context.Context, request payment.Request) (*payment.Response, error)
	Get(ctx context.Context, id int) (*payment.Response, error)
}

type Adapter struct {
	providers.NoSubscriptions

	key      string
	payments paymentAPI
	logger   zerolog.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

// Build is the providers.Builder for type "mercadopago".
func Build(key string, cfg config.ProviderConfig, deps providers.Deps) (providers.Adapter, error) {
	if cfg.AccessToken == "" {
		return nil, domainErrors.NewConfigurationError(key, "access_token is required")
	}
	sdkCfg, err := mpconfig.New(cfg.AccessToken)
	if err != nil {
		return nil, domainErrors.NewProviderError(key, "configure", domainErrors.ErrProviderConfiguration, "sdk config", err)
	}
	return newAdapter(key, payment.NewClient(sdkCfg), deps.Logger), nil
}

func newAdapter(key string, api paymentAPI, logger zerolog.Logger) *Adapter {
	return &Adapter{
		NoSubscriptions: providers.NoSubscriptions{Provider: key},
		key:             key,
		payments:        api,
		logger:          logger.With().Str("provider", key).Logger(),
	}
}

func (a *Adapter) Kind() providers.Kind { return providers.KindWallet }

func (a *Adapter) DetailsSchema(op providers.Operation) string {
	if op == providers.OpCreatePayment {
		return paymentSchema
	}
	return ""
}

// CreatePayment creates a direct payment. The currency is the one of the
// seller account, so it is only recorded in metadata.
func (a *Adapter) CreatePayment(ctx context.Context, req providers.PaymentRequest) (*providers.Result, error) {
	op := string(providers.OpCreatePayment)

	value, err := strconv.ParseFloat(req.Amount.Decimal(), 64)
	if err != nil {
		return nil, domainErrors.NewValidationError("amount", err.Error())
	}

	metadata := map[string]any{"currency": req.Amount.Currency}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	body := map[string]any{
		"transaction_amount": value,
		"payment_method_id":  req.PaymentDetails["payment_method_id"],
		"payer":              map[string]any{"email": req.PaymentDetails["payer_email"]},
		"metadata":           metadata,
	}
	for _, k := range []string{"token", "installments", "external_reference"} {
		if v, ok := req.PaymentDetails[k]; ok {
			body[k] = v
		}
	}
	if req.Description != "" {
		body["description"] = req.Description
	}
	if req.SuccessURL != "" {
		body["callback_url"] = req.SuccessURL
	}

	// payment.Request mirrors the API's JSON, so the body is built in wire
	// form and decoded into it.
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, domainErrors.NewValidationError("payment_details", err.Error())
	}
	var request payment.Request
	if err := json.Unmarshal(raw, &request); err != nil {
		return nil, domainErrors.NewValidationError("payment_details", err.Error())
	}

	resp, err := a.payments.Create(ctx, request)
	if err != nil {
		return nil, a.classify(ctx, op, err)
	}

	a.logger.Debug().Int("payment_id", resp.ID).Str("status", resp.Status).Msg("payment created")
	return &providers.Result{
		ProviderTransactionID: strconv.Itoa(resp.ID),
		Status:                paymentStatuses.Map(resp.Status),
		ProviderStatus:        resp.Status,
		Metadata:              responseDetails(resp),
	}, nil
}

func (a *Adapter) CheckPaymentStatus(ctx context.Context, providerTransactionID string) (*providers.StatusResult, error) {
	id, err := strconv.Atoi(strings.TrimSpace(providerTransactionID))
	if err != nil {
		return nil, domainErrors.NewValidationError("provider_transaction_id", "must be a numeric Mercado Pago payment id")
	}

	resp, err := a.payments.Get(ctx, id)
	if err != nil {
		return nil, a.classify(ctx, string(providers.OpCheckPaymentStatus), err)
	}
	return &providers.StatusResult{
		Status:         paymentStatuses.Map(resp.Status),
		ProviderStatus: resp.Status,
		Details:        responseDetails(resp),
	}, nil
}

type notification struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ProcessWebhook accepts "payment" notifications. They only name the payment,
// so the event carries RequiresPoll and no status.
func (a *Adapter) ProcessWebhook(payload []byte) (*providers.WebhookEvent, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed JSON: "+err.Error())
	}

	kind := n.Type
	if kind == "" {
		kind = n.Topic
	}
	if kind != "payment" {
		return nil, domainErrors.NewUnsupportedEventError(a.key, kind)
	}

	// data.id arrives as a string in webhooks and as a number in older IPN
	// payloads.
	id := strings.Trim(strings.TrimSpace(string(n.Data.ID)), `"`)
	if id == "" || id == "null" {
		return nil, domainErrors.NewValidationError("data.id", "is required")
	}

	eventType := n.Action
	if eventType == "" {
		eventType = kind
	}
	return &providers.WebhookEvent{
		Record:       providers.RecordTransaction,
		Reference:    id,
		Status:       status.Unknown,
		EventType:    eventType,
		RequiresPoll: true,
	}, nil
}

// classify maps SDK errors onto the provider error kinds. The SDK does not
// expose HTTP status codes, so anything that is not a transport failure is
// treated as a rejection.
func (a *Adapter) classify(ctx context.Context, op string, err error) error {
	var netErr net.Error
	switch {
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return domainErrors.NewNetworkError(a.key, op, err)
	default:
		e := domainErrors.NewProviderError(a.key, op, domainErrors.ErrProviderRejected, "", err)
		e.Code = "mercadopago_error"
		return e
	}
}

func responseDetails(resp *payment.Response) map[string]any {
	details := map[string]any{}
	raw, err := json.Marshal(resp)
	if err != nil {
		return details
	}
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return details
	}
	for _, k := range []string{"id", "status", "status_detail", "transaction_amount", "currency_id", "date_created", "date_approved", "external_reference"} {
		if v, ok := full[k]; ok {
			details[k] = v
		}
	}
	return details
}
