package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/service"
)

// CustomerController covers customers, their stored payment methods and
// setup sessions.
type CustomerController struct {
	customerService *service.CustomerService
}

func NewCustomerController(customerService *service.CustomerService) *CustomerController {
	return &CustomerController{customerService: customerService}
}

func (h *CustomerController) Create(w http.ResponseWriter, r *http.Request) {
	provider, err := providerQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateCustomerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.customerService.Create(r.Context(), service.CreateCustomerRequest{
		Provider: provider,
		Email:    req.Email,
		Name:     req.Name,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCustomerResponse(c))
}

func (h *CustomerController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.customerService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *CustomerController) HasPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ok, err := h.customerService.HasPaymentMethod(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HasPaymentMethodResponse{HasPaymentMethod: ok})
}

func (h *CustomerController) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	pmID, err := h.customerService.SetDefaultPaymentMethod(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DefaultPaymentMethodResponse{PaymentMethodID: pmID})
}

func (h *CustomerController) CreateSetupSession(w http.ResponseWriter, r *http.Request) {
	provider, err := providerQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req SetupSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.customerService.CreateSetupSession(r.Context(), provider, providers.SetupSessionRequest{
		ProviderCustomerID: req.CustomerID,
		SuccessURL:         req.SuccessURL,
		CancelURL:          req.CancelURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SetupSessionResponse{SessionID: sess.SessionID, CheckoutURL: sess.CheckoutURL})
}

type ProductController struct {
	productService *service.ProductService
}

func NewProductController(productService *service.ProductService) *ProductController {
	return &ProductController{productService: productService}
}

func (h *ProductController) Create(w http.ResponseWriter, r *http.Request) {
	provider, err := providerQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateProductRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
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

	res, err := h.productService.CreateProductAndPrice(r.Context(), provider, providers.ProductRequest{
		Name:        req.Name,
		Description: req.Description,
		Amount:      amount,
		Interval:    interval,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(res))
}
