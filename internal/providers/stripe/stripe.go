// Package stripe adapts Stripe Checkout, Billing and Customers to
// providers.Adapter through the official stripe-go client.
package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
)

// transactionIDKey is the metadata key carrying the local transaction id on
// PaymentIntents created by Checkout.
const transactionIDKey = "transaction_id"

// PaymentIntent states.
var paymentIntentStatuses = status.Mapping{
	"requires_payment_method": status.Pending,
	"requires_confirmation":   status.Pending,
	"requires_action":         status.Pending,
	"processing":              status.Processing,
	"requires_capture":        status.Processing,
	"canceled":                status.Cancelled,
	"succeeded":               status.Completed,
}

// Checkout Session states, used when a session has no PaymentIntent yet.
var sessionStatuses = status.Mapping{
	"open":     status.Pending,
	"complete": status.Completed,
	"expired":  status.Cancelled,
}

// Subscription states. An active subscription keeps billing, so it is
// reported as PROCESSING rather than a terminal state.
var subscriptionStatuses = status.Mapping{
	"incomplete":         status.Pending,
	"trialing":           status.Processing,
	"active":             status.Processing,
	"past_due":           status.Processing,
	"paused":             status.Pending,
	"unpaid":             status.Failed,
	"incomplete_expired": status.Failed,
	"canceled":           status.Cancelled,
}

const paymentSchema = `{
  "type": "object",
  "properties": {
    "customer_id": {"type": "string", "pattern": "^cus_"},
    "customer_email": {"type": "string", "format": "email"}
  },
  "additionalProperties": false
}`

const subscriptionSchema = `{
  "type": "object",
  "properties": {
    "customer_id": {"type": "string", "pattern": "^cus_"}
  },
  "additionalProperties": false
}`

type Adapter struct {
	key           string
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
	logger        zerolog.Logger
}

var (
	_ providers.Adapter         = (*Adapter)(nil)
	_ providers.CustomerManager = (*Adapter)(nil)
	_ providers.ProductManager  = (*Adapter)(nil)
	_ providers.WebhookVerifier = (*Adapter)(nil)
)

// Build is the providers.Builder for type "stripe". cfg.BaseURL overrides
// the API host, which tests point at an httptest server.
func Build(key string, cfg config.ProviderConfig, deps providers.Deps) (providers.Adapter, error) {
	if cfg.SecretKey == "" {
		return nil, domainErrors.NewConfigurationError(key, "secret_key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeapi.APIURL
	}
	rt := deps.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	logger := deps.Logger.With().Str("provider", key).Logger()

	// Retries stay with the caller and the circuit breaker.
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		HTTPClient:        &http.Client{Transport: otelhttp.NewTransport(rt), Timeout: cfg.Timeout},
		URL:               stripeapi.String(strings.TrimRight(baseURL, "/")),
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     leveledLogger{log: logger},
	})
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Adapter{
		key:           key,
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     5 * time.Minute,
		logger:        logger,
	}, nil
}

func (a *Adapter) Kind() providers.Kind { return providers.KindCard }

func (a *Adapter) DetailsSchema(op providers.Operation) string {
	switch op {
	case providers.OpCreatePayment:
		return paymentSchema
	case providers.OpCreateSubscription, providers.OpUpdateSubscription:
		return subscriptionSchema
	}
	return ""
}

// providerError classifies a stripe-go failure.
//
//	transport failure, 408, 429, 5xx -> ErrProviderNetwork
//	401, 403                         -> ErrProviderConfiguration
//	any other 4xx                    -> ErrProviderRejected
//
// The decline code is more specific than the generic code when both are
// present.
func (a *Adapter) providerError(op providers.Operation, err error) error {
	var se *stripeapi.Error
	if !errors.As(err, &se) {
		return domainErrors.NewNetworkError(a.key, string(op), err)
	}

	code := string(se.DeclineCode)
	if code == "" {
		code = string(se.Code)
	}
	if code == "" {
		code = string(se.Type)
	}
	if code == "" {
		code = fmt.Sprintf("http_%d", se.HTTPStatusCode)
	}
	message := se.Msg
	if message == "" {
		message = http.StatusText(se.HTTPStatusCode)
	}

	var kind error
	switch sc := se.HTTPStatusCode; {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		kind = domainErrors.ErrProviderConfiguration
	case sc == http.StatusRequestTimeout || sc == http.StatusTooManyRequests || sc >= 500:
		kind = domainErrors.ErrProviderNetwork
	default:
		return domainErrors.NewRejectionError(a.key, string(op), code, message)
	}
	e := domainErrors.NewProviderError(a.key, string(op), kind, message, nil)
	e.Code = code
	return e
}

func stringDetail(details map[string]any, key string) string {
	v, _ := details[key].(string)
	return strings.TrimSpace(v)
}

// leveledLogger routes stripe-go's logging into zerolog. stripe-go logs
// every request at info, which is debug noise here.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
func (l leveledLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l leveledLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l leveledLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
