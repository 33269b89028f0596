package paypal

import (
	"encoding/json"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/providers"
)

type event struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// ProcessWebhook maps CHECKOUT.ORDER.*, PAYMENT.CAPTURE.* and
// BILLING.SUBSCRIPTION.* events. Capture events are reported against the
// order they belong to, which is the id stored locally.
func (a *Adapter) ProcessWebhook(payload []byte) (*providers.WebhookEvent, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed JSON: "+err.Error())
	}
	res := ev.Resource

	out := &providers.WebhookEvent{Reference: res.ID, EventType: ev.EventType}
	switch ev.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		out.Record, out.Status = providers.RecordTransaction, status.Processing
	case "CHECKOUT.ORDER.COMPLETED":
		out.Record, out.Status = providers.RecordTransaction, status.Completed

	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED":
		out.Record, out.Status = providers.RecordTransaction, status.Completed
		if ev.EventType == "PAYMENT.CAPTURE.DENIED" {
			out.Status = status.Failed
		}
		if order := res.SupplementaryData.RelatedIDs.OrderID; order != "" {
			out.Reference = order
		}

	case "BILLING.SUBSCRIPTION.CREATED", "BILLING.SUBSCRIPTION.SUSPENDED":
		out.Record, out.Status = providers.RecordSubscription, status.Pending
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		out.Record, out.Status = providers.RecordSubscription, status.Processing
	case "BILLING.SUBSCRIPTION.CANCELLED":
		out.Record, out.Status = providers.RecordSubscription, status.Cancelled
	case "BILLING.SUBSCRIPTION.EXPIRED":
		out.Record, out.Status = providers.RecordSubscription, status.Completed

	default:
		return nil, domainErrors.NewUnsupportedEventError(a.key, ev.EventType)
	}

	if out.Reference == "" {
		return nil, domainErrors.NewValidationError("resource.id", "is required")
	}
	return out, nil
}
