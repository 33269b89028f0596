package stripe

import (
	"encoding/json"
	"fmt"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/providers"
)

// ProcessWebhook maps payment_intent.*, checkout.session.* and
// customer.subscription.* events. PaymentIntents opened by Checkout carry
// the local transaction id in their metadata; it is passed on as
// LocalReference because the stored reference is the session id.
func (a *Adapter) ProcessWebhook(payload []byte) (*providers.WebhookEvent, error) {
	var ev stripeapi.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed JSON: "+err.Error())
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, domainErrors.NewValidationError("data.object", "is required")
	}
	eventType := string(ev.Type)
	out := &providers.WebhookEvent{EventType: eventType, Record: providers.RecordTransaction}

	var err error
	switch eventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed",
		"payment_intent.canceled", "payment_intent.processing":
		var pi stripeapi.PaymentIntent
		err = json.Unmarshal(ev.Data.Raw, &pi)
		out.Reference = pi.ID
		out.LocalReference = pi.Metadata[transactionIDKey]
		out.Status = intentEventStatus(eventType)

	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var session stripeapi.CheckoutSession
		err = json.Unmarshal(ev.Data.Raw, &session)
		out.Reference = session.ID
		out.Status = sessionEventStatus(eventType, session.PaymentStatus)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeapi.Subscription
		err = json.Unmarshal(ev.Data.Raw, &sub)
		out.Record = providers.RecordSubscription
		out.Reference = sub.ID
		out.Status = subscriptionStatuses.Map(string(sub.Status))
		if eventType == "customer.subscription.deleted" {
			out.Status = status.Cancelled
		}

	default:
		return nil, domainErrors.NewUnsupportedEventError(a.key, eventType)
	}

	if err != nil {
		return nil, domainErrors.NewValidationError("data.object", "malformed object: "+err.Error())
	}
	if out.Reference == "" {
		return nil, domainErrors.NewValidationError("data.object.id", "is required")
	}
	return out, nil
}

func intentEventStatus(eventType string) status.Status {
	switch eventType {
	case "payment_intent.succeeded":
		return status.Completed
	case "payment_intent.payment_failed":
		return status.Failed
	case "payment_intent.canceled":
		return status.Cancelled
	default:
		return status.Processing
	}
}

func sessionEventStatus(eventType string, paymentStatus stripeapi.CheckoutSessionPaymentStatus) status.Status {
	switch eventType {
	case "checkout.session.completed":
		// Delayed methods complete the session before the money moves.
		if paymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid ||
			paymentStatus == stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired {
			return status.Completed
		}
		return status.Processing
	case "checkout.session.async_payment_succeeded":
		return status.Completed
	case "checkout.session.async_payment_failed":
		return status.Failed
	default:
		return status.Cancelled
	}
}

// VerifyWebhook checks the Stripe-Signature header against the endpoint
// secret and the timestamp tolerance. Without a secret every payload is
// accepted.
func (a *Adapter) VerifyWebhook(payload []byte, header http.Header) error {
	if a.webhookSecret == "" {
		return nil
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header.Get("Stripe-Signature"), a.webhookSecret, a.tolerance); err != nil {
		return fmt.Errorf("%w: %w", domainErrors.ErrInvalidWebhookSignature, err)
	}
	return nil
}
