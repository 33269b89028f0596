// Package paypal adapts the PayPal REST API (Orders v2, Billing
// Subscriptions v1) to providers.Adapter.
package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/providers/restclient"
)

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"
)

// Order states (Orders v2).
var orderStatuses = status.Mapping{
	"CREATED":               status.Pending,
	"SAVED":                 status.Pending,
	"PAYER_ACTION_REQUIRED": status.Pending,
	"APPROVED":              status.Processing,
	"VOIDED":                status.Cancelled,
	"COMPLETED":             status.Completed,
	"FAILED":                status.Failed,
}

// Billing subscription states. ACTIVE keeps billing and is not terminal.
var subscriptionStatuses = status.Mapping{
	"APPROVAL_PENDING": status.Pending,
	"APPROVED":         status.Pending,
	"SUSPENDED":        status.Pending,
	"ACTIVE":           status.Processing,
	"CANCELLED":        status.Cancelled,
	"EXPIRED":          status.Completed,
}

const paymentSchema = `{
  "type": "object",
  "properties": {
    "payer_email": {"type": "string", "format": "email"},
    "brand_name": {"type": "string", "maxLength": 127}
  },
  "additionalProperties": false
}`

const subscriptionSchema = `{
  "type": "object",
  "properties": {
    "subscriber_email": {"type": "string", "format": "email"},
    "brand_name": {"type": "string", "maxLength": 127},
    "return_url": {"type": "string", "format": "uri"},
    "cancel_url": {"type": "string", "format": "uri"}
  },
  "additionalProperties": false
}`

type Adapter struct {
	key    string
	client *restclient.Client
	logger zerolog.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

// Build is the providers.Builder for type "paypal". Access tokens come from
// the client-credentials grant and are cached and refreshed by x/oauth2.
func Build(key string, cfg config.ProviderConfig, deps providers.Deps) (providers.Adapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, domainErrors.NewConfigurationError(key, "client_id and client_secret are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sandboxBaseURL
		if cfg.IsLive() {
			baseURL = liveBaseURL
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	transport := deps.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	base := &http.Client{Transport: otelhttp.NewTransport(transport)}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Adapter{
		key: key,
		client: restclient.New(key, baseURL,
			restclient.WithHTTPClient(cc.Client(tokenCtx)),
			restclient.WithErrorDecoder(decodeError),
		),
		logger: deps.Logger.With().Str("provider", key).Logger(),
	}, nil
}

func (a *Adapter) Kind() providers.Kind { return providers.KindWallet }

func (a *Adapter) DetailsSchema(op providers.Operation) string {
	switch op {
	case providers.OpCreatePayment:
		return paymentSchema
	case providers.OpCreateSubscription, providers.OpUpdateSubscription:
		return subscriptionSchema
	}
	return ""
}

// decodeError reads PayPal's {"name","message","details":[...]} errors. The
// first detail issue is the most specific code.
func decodeError(body []byte) (string, string, bool) {
	var env struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Details []struct {
			Issue       string `json:"issue"`
			Description string `json:"description"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &env); err != nil || (env.Name == "" && env.Message == "") {
		return "", "", false
	}
	code, message := env.Name, env.Message
	if len(env.Details) > 0 {
		if env.Details[0].Issue != "" {
			code = env.Details[0].Issue
		}
		if env.Details[0].Description != "" {
			message = message + ": " + env.Details[0].Description
		}
	}
	return code, message, true
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// approvalLink returns the buyer-facing redirect among links.
func approvalLink(links []link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func stringDetail(details map[string]any, key string) string {
	v, _ := details[key].(string)
	return strings.TrimSpace(v)
}
