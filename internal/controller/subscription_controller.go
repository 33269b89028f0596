package controller

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	customMW "github.com/cassiomorais/paygate/internal/middleware"
	"github.com/cassiomorais/paygate/internal/service"
)

type SubscriptionController struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionController(subscriptionService *service.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{subscriptionService: subscriptionService}
}

func (h *SubscriptionController) Create(w http.ResponseWriter, r *http.Request) {
	provider, err := providerQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateSubscriptionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID, _ = customMW.GetUserID(r.Context())
	}
	if userID == "" {
		writeError(w, domainErrors.NewValidationError("user_id", "is required"))
		return
	}
	amount, err := parseAmount(req.Amount, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	interval, err := parseInterval(req.Interval, req.IntervalCount)
	if err != nil {
		writeError(w, err)
		return
	}

	svcReq := service.CreateSubscriptionRequest{
		Provider:       provider,
		UserID:         userID,
		PlanID:         req.PlanID,
		PlanName:       req.PlanName,
		Amount:         amount,
		Interval:       *interval,
		PaymentDetails: req.PaymentDetails,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	}
	if req.TransactionID != nil {
		txID, err := uuid.Parse(*req.TransactionID)
		if err != nil {
			writeError(w, domainErrors.NewValidationError("transaction_id", "must be a UUID"))
			return
		}
		svcReq.TransactionID = &txID
	}

	sub, err := h.subscriptionService.Create(r.Context(), svcReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *SubscriptionController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.subscriptionService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// Update changes the plan. A partial update answers with the error; the
// stored subscription is then cancelled and can be fetched.
func (h *SubscriptionController) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateSubscriptionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	svcReq := service.UpdateSubscriptionRequest{
		PlanID:         req.PlanID,
		PriceID:        req.PriceID,
		PaymentDetails: req.PaymentDetails,
	}
	if req.Amount != "" {
		if req.Currency == "" {
			writeError(w, domainErrors.NewValidationError("currency", "is required with amount"))
			return
		}
		var amount money.Amount
		if amount, err = parseAmount(req.Amount, req.Currency); err != nil {
			writeError(w, err)
			return
		}
		svcReq.Amount = &amount
	}
	if svcReq.Interval, err = parseInterval(req.Interval, req.IntervalCount); err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.subscriptionService.Update(r.Context(), id, svcReq)
	if err != nil {
		if errors.Is(err, domainErrors.ErrPartialUpdate) && sub != nil {
			w.Header().Set("Location", "/api/v1/subscriptions/"+sub.ID.String())
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionController) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.subscriptionService.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}
