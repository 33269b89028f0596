package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/service"
)

const maxWebhookBytes = 1 << 20

// WebhookController ingests provider notifications. The response body is
// the bare acknowledgement; failures answer non-2xx so the provider retries.
type WebhookController struct {
	reconciler *service.Reconciler
}

func NewWebhookController(reconciler *service.Reconciler) *WebhookController {
	return &WebhookController{reconciler: reconciler}
}

func (h *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large", Code: "payload_too_large"})
			return
		}
		writeError(w, domainErrors.NewValidationError("body", "unreadable payload"))
		return
	}

	if _, err := h.reconciler.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), payload, r.Header); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WebhookAck{Status: "success"})
}
