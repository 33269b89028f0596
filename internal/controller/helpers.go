package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order. ErrPartialUpdate wraps the provider
// error that broke the update, so it has to match before the provider kinds.
var errorMappings = []errorMapping{
	{domainErrors.ErrValidationFailed, http.StatusBadRequest, "validation_error"},
	{domainErrors.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider"},
	{domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrSubscriptionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrCustomerNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrUnsupportedEvent, http.StatusBadRequest, "unsupported_event"},
	{domainErrors.ErrInvalidWebhookSignature, http.StatusUnauthorized, "invalid_signature"},
	{domainErrors.ErrNotSupported, http.StatusUnprocessableEntity, "not_supported"},
	{domainErrors.ErrPrecondition, http.StatusUnprocessableEntity, "precondition_failed"},
	{domainErrors.ErrPartialUpdate, http.StatusBadGateway, "partial_update"},
	{domainErrors.ErrProviderRejected, http.StatusUnprocessableEntity, "provider_rejected"},
	{domainErrors.ErrProviderNetwork, http.StatusServiceUnavailable, "provider_unavailable"},
	{domainErrors.ErrProviderConfiguration, http.StatusBadGateway, "provider_misconfigured"},
	{domainErrors.ErrDuplicateProviderReference, http.StatusConflict, "duplicate"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Details = validationErr.Details
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	resp.Details = nil
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			details := make([]string, 0, len(ve))
			for _, fe := range ve {
				details = append(details, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed", details...)
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError(name, "must be a UUID")
	}
	return id, nil
}

// providerQuery returns the ?provider= value. Resolution and normalization
// happen in the registry.
func providerQuery(r *http.Request) (string, error) {
	p := strings.TrimSpace(r.URL.Query().Get("provider"))
	if p == "" {
		return "", domainErrors.NewValidationError("provider", "query parameter is required")
	}
	return p, nil
}

func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultListLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 {
			return 0, 0, domainErrors.NewValidationError("limit", "must be a positive integer")
		}
		limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, domainErrors.NewValidationError("offset", "must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}
