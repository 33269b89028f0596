// Package revolut adapts the Revolut Merchant API. Revolut offers one-off
// orders only, so subscriptions are reported as not supported.
package revolut

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/providers/restclient"
)

const (
	sandboxBaseURL = "https://sandbox-merchant.revolut.com/api"
	liveBaseURL    = "https://merchant.revolut.com/api"
	apiVersion     = "2024-09-01"
)

var orderStates = status.Mapping{
	"PENDING":    status.Pending,
	"PROCESSING": status.Processing,
	"AUTHORISED": status.Processing,
	"COMPLETED":  status.Completed,
	"CANCELLED":  status.Cancelled,
	"FAILED":     status.Failed,
}

const paymentSchema = `{
  "type": "object",
  "properties": {
    "order_id": {"type": "string", "maxLength": 255},
    "customer_email": {"type": "string", "format": "email"},
    "email": {"type": "string", "format": "email"}
  },
  "additionalProperties": false
}`

type Adapter struct {
	providers.NoSubscriptions

	key           string
	client        *restclient.Client
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

var (
	_ providers.Adapter         = (*Adapter)(nil)
	_ providers.WebhookVerifier = (*Adapter)(nil)
)

// Build is the providers.Builder for type "revolut".
func Build(key string, cfg config.ProviderConfig, deps providers.Deps) (providers.Adapter, error) {
	if cfg.SecretKey == "" {
		return nil, domainErrors.NewConfigurationError(key, "secret_key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sandboxBaseURL
		if cfg.IsLive() {
			baseURL = liveBaseURL
		}
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Adapter{
		NoSubscriptions: providers.NoSubscriptions{Provider: key},
		key:             key,
		client: restclient.New(key, baseURL,
			restclient.WithTransport(deps.Transport),
			restclient.WithBearerToken(cfg.SecretKey),
			restclient.WithHeader("Revolut-Api-Version", apiVersion),
		),
		webhookSecret: cfg.WebhookSecret,
		tolerance:     5 * time.Minute,
		now:           now,
		logger:        deps.Logger.With().Str("provider", key).Logger(),
	}, nil
}

func (a *Adapter) Kind() providers.Kind { return providers.KindBankRail }

func (a *Adapter) DetailsSchema(op providers.Operation) string {
	if op == providers.OpCreatePayment {
		return paymentSchema
	}
	return ""
}

type orderRequest struct {
	Amount              int64          `json:"amount"`
	Currency            string         `json:"currency"`
	CaptureMode         string         `json:"capture_mode"`
	MerchantOrderExtRef string         `json:"merchant_order_ext_ref,omitempty"`
	Description         string         `json:"description,omitempty"`
	CustomerEmail       string         `json:"customer_email,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	RedirectURLs        *redirectURLs  `json:"redirect_urls,omitempty"`
}

type redirectURLs struct {
	SuccessURL string `json:"success_url,omitempty"`
	FailureURL string `json:"failure_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

type order struct {
	ID                  string `json:"id"`
	Token               string `json:"token"`
	State               string `json:"state"`
	CheckoutURL         string `json:"checkout_url"`
	Amount              int64  `json:"amount"`
	Currency            string `json:"currency"`
	MerchantOrderExtRef string `json:"merchant_order_ext_ref"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

// CreatePayment creates an order with automatic capture. Amounts are sent
// in minor units.
func (a *Adapter) CreatePayment(ctx context.Context, req providers.PaymentRequest) (*providers.Result, error) {
	email := stringDetail(req.PaymentDetails, "customer_email")
	if email == "" {
		email = stringDetail(req.PaymentDetails, "email")
	}

	body := orderRequest{
		Amount:              req.Amount.Minor,
		Currency:            strings.ToUpper(req.Amount.Currency),
		CaptureMode:         "automatic",
		MerchantOrderExtRef: stringDetail(req.PaymentDetails, "order_id"),
		Description:         req.Description,
		CustomerEmail:       email,
		Metadata:            req.Metadata,
	}
	if req.SuccessURL != "" || req.CancelURL != "" {
		body.RedirectURLs = &redirectURLs{
			SuccessURL: req.SuccessURL,
			FailureURL: req.CancelURL,
			CancelURL:  req.CancelURL,
		}
	}

	var o order
	if err := a.client.PostJSON(ctx, string(providers.OpCreatePayment), "/orders", body, &o); err != nil {
		return nil, err
	}

	st := orderStates.Map(o.State)
	if st == status.Unknown {
		st = status.Pending
	}
	return &providers.Result{
		ProviderTransactionID: o.ID,
		Status:                st,
		ProviderStatus:        o.State,
		CheckoutURL:           o.CheckoutURL,
		ClientSecret:          o.Token,
		Metadata:              map[string]any{"revolut_state": o.State},
	}, nil
}

func (a *Adapter) CheckPaymentStatus(ctx context.Context, providerTransactionID string) (*providers.StatusResult, error) {
	var o order
	if err := a.client.Get(ctx, string(providers.OpCheckPaymentStatus), "/orders/"+url.PathEscape(providerTransactionID), nil, &o); err != nil {
		return nil, err
	}
	return &providers.StatusResult{
		Status:         orderStates.Map(o.State),
		ProviderStatus: o.State,
		Details: map[string]any{
			"id":                     o.ID,
			"amount":                 o.Amount,
			"currency":               o.Currency,
			"merchant_order_ext_ref": o.MerchantOrderExtRef,
			"created_at":             o.CreatedAt,
			"updated_at":             o.UpdatedAt,
		},
	}, nil
}

type event struct {
	Event   string `json:"event"`
	OrderID string `json:"order_id"`
	Order   struct {
		ID string `json:"id"`
	} `json:"order"`
}

// ProcessWebhook maps ORDER_* events. Current payloads carry order_id at the
// top level; older ones nest it under order.id.
func (a *Adapter) ProcessWebhook(payload []byte) (*providers.WebhookEvent, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed JSON: "+err.Error())
	}

	out := &providers.WebhookEvent{Record: providers.RecordTransaction, EventType: ev.Event}
	switch ev.Event {
	case "ORDER_COMPLETED":
		out.Status = status.Completed
	case "ORDER_AUTHORISED":
		out.Status = status.Processing
	case "ORDER_PAYMENT_DECLINED", "ORDER_PAYMENT_FAILED":
		out.Status = status.Failed
	case "ORDER_CANCELLED":
		out.Status = status.Cancelled
	default:
		return nil, domainErrors.NewUnsupportedEventError(a.key, ev.Event)
	}

	out.Reference = ev.OrderID
	if out.Reference == "" {
		out.Reference = ev.Order.ID
	}
	if out.Reference == "" {
		return nil, domainErrors.NewValidationError("order_id", "is required")
	}
	return out, nil
}

// VerifyWebhook checks Revolut-Signature, a list of "v1=<hex>" HMAC-SHA256
// values over "v1.{Revolut-Request-Timestamp}.{payload}". The timestamp is in
// milliseconds.
func (a *Adapter) VerifyWebhook(payload []byte, header http.Header) error {
	if a.webhookSecret == "" {
		return nil
	}

	timestamp := header.Get("Revolut-Request-Timestamp")
	sig := header.Get("Revolut-Signature")
	if timestamp == "" || sig == "" {
		return fmt.Errorf("%w: missing Revolut-Signature or Revolut-Request-Timestamp", domainErrors.ErrInvalidWebhookSignature)
	}

	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domainErrors.ErrInvalidWebhookSignature)
	}
	if age := a.now().Sub(time.UnixMilli(ms)); age > a.tolerance || age < -a.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domainErrors.ErrInvalidWebhookSignature)
	}

	expected := "v1=" + Sign(a.webhookSecret, timestamp, payload)
	for _, s := range strings.Split(sig, ",") {
		if hmac.Equal([]byte(strings.TrimSpace(s)), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", domainErrors.ErrInvalidWebhookSignature)
}

// Sign returns the hex digest Revolut sends after "v1=".
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v1." + timestamp + "."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func stringDetail(details map[string]any, key string) string {
	v, _ := details[key].(string)
	return strings.TrimSpace(v)
}
