package controller

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
	"github.com/cassiomorais/paygate/internal/service"
)

type TransactionController struct {
	transactionService *service.TransactionService
}

func NewTransactionController(transactionService *service.TransactionService) *TransactionController {
	return &TransactionController{transactionService: transactionService}
}

func (h *TransactionController) Create(w http.ResponseWriter, r *http.Request) {
	provider, err := providerQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateTransactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.transactionService.Create(r.Context(), service.CreateTransactionRequest{
		Provider:       provider,
		Amount:         amount,
		PaymentDetails: req.PaymentDetails,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		Description:    req.Description,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *TransactionController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.transactionService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *TransactionController) Status(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.transactionService.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(res))
}

// StatusByReference polls a provider transaction id, tracked locally or not.
func (h *TransactionController) StatusByReference(w http.ResponseWriter, r *http.Request) {
	res, err := h.transactionService.StatusByProviderReference(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(res))
}

func (h *TransactionController) PaymentURL(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	url, err := h.transactionService.PaymentURL(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PaymentURLResponse{PaymentURL: url})
}

// List supports ?provider=, ?status= (comma separated), ?limit= and ?offset=.
func (h *TransactionController) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := transaction.ListFilter{Limit: limit, Offset: offset}
	if p := strings.TrimSpace(r.URL.Query().Get("provider")); p != "" {
		filter.Provider = &p
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := status.Parse(s)
			if err != nil {
				writeError(w, domainErrors.NewValidationError("status", err.Error()))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	txs, err := h.transactionService.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, resp)
}
