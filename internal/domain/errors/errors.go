package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Lookup errors
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrUnknownProvider      = errors.New("unknown payment provider")

	// Provider failure kinds. Every adapter failure carries exactly one.
	ErrProviderConfiguration = errors.New("payment provider misconfigured")
	ErrProviderNetwork       = errors.New("payment provider unreachable")
	ErrProviderRejected      = errors.New("rejected by payment provider")

	// Capability and contract errors
	ErrNotSupported     = errors.New("operation not supported by provider")
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
	ErrPrecondition     = errors.New("precondition not met")
	ErrPartialUpdate    = errors.New("subscription cancelled but replacement failed")

	// Webhook errors
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// Persistence errors
	ErrDuplicateProviderReference = errors.New("duplicate provider reference")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error. Details carries one entry
// per violation when a whole document was checked at once.
type ValidationError struct {
	Field   string
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, details ...string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Details: details,
	}
}

// ProviderError is the single error shape crossing the adapter boundary.
// Kind is one of the provider sentinels (or ErrNotSupported, ErrPrecondition,
// ErrUnsupportedEvent); Err is the underlying cause, if any.
type ProviderError struct {
	Provider string
	Op       string
	Kind     error
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("provider error")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the caller may retry the same call as-is.
func (e *ProviderError) Retryable() bool {
	return errors.Is(e.Kind, ErrProviderNetwork)
}

func NewProviderError(provider, op string, kind error, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Kind:     kind,
		Message:  message,
		Err:      err,
	}
}

func NewConfigurationError(provider, message string) *ProviderError {
	return NewProviderError(provider, "configure", ErrProviderConfiguration, message, nil)
}

func NewNetworkError(provider, op string, err error) *ProviderError {
	return NewProviderError(provider, op, ErrProviderNetwork, "", err)
}

// NewRejectionError keeps the provider's own code and message so they can be
// surfaced verbatim.
func NewRejectionError(provider, op, code, message string) *ProviderError {
	e := NewProviderError(provider, op, ErrProviderRejected, message, nil)
	e.Code = code
	return e
}

func NewNotSupportedError(provider, op string) *ProviderError {
	return NewProviderError(provider, op, ErrNotSupported, "", nil)
}

func NewPreconditionError(provider, op, message string) *ProviderError {
	return NewProviderError(provider, op, ErrPrecondition, message, nil)
}

func NewUnsupportedEventError(provider, eventType string) *ProviderError {
	return NewProviderError(provider, "process_webhook", ErrUnsupportedEvent, fmt.Sprintf("event type %q", eventType), nil)
}

// KindOf returns the provider failure kind carried by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrProviderConfiguration,
		ErrProviderNetwork,
		ErrProviderRejected,
		ErrNotSupported,
		ErrPrecondition,
		ErrUnsupportedEvent,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
