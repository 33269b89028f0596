package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError(t *testing.T) {
	tests := []struct {
		name          string
		code          string
		message       string
		err           error
		expectedError string
	}{
		{
			name:          "with wrapped error",
			code:          "PAYMENT_LINK_MISSING",
			message:       "transaction has no checkout url",
			err:           ErrTransactionNotFound,
			expectedError: "transaction has no checkout url: transaction not found",
		},
		{
			name:          "without wrapped error",
			code:          "INVALID_INPUT",
			message:       "invalid input provided",
			err:           nil,
			expectedError: "invalid input provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domainErr := NewDomainError(tt.code, tt.message, tt.err)

			assert.Equal(t, tt.code, domainErr.Code)
			assert.Equal(t, tt.expectedError, domainErr.Error())
			if tt.err != nil {
				assert.ErrorIs(t, domainErr, tt.err)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("currency", "must be an ISO 4217 code")
	assert.Equal(t, "validation failed for field currency: must be an ISO 4217 code", err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)

	withDetails := NewValidationError("payment_details", "does not match schema", "customer_id: Invalid type", "(root): Additional property x is not allowed")
	assert.Contains(t, withDetails.Error(), "customer_id: Invalid type")
	assert.Contains(t, withDetails.Error(), "Additional property x")
	assert.Len(t, withDetails.Details, 2)
}

func TestValidationError_As(t *testing.T) {
	wrapped := fmt.Errorf("create payment: %w", NewValidationError("amount", "must be positive"))

	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "amount", ve.Field)
}

func TestProviderError_KindsAreDistinguishable(t *testing.T) {
	cfgErr := NewConfigurationError("stripe", "secret_key is required")
	netErr := NewNetworkError("stripe", "create_payment", context.DeadlineExceeded)
	rejErr := NewRejectionError("stripe", "create_payment", "card_declined", "Your card was declined.")

	assert.ErrorIs(t, cfgErr, ErrProviderConfiguration)
	assert.NotErrorIs(t, cfgErr, ErrProviderNetwork)

	assert.ErrorIs(t, netErr, ErrProviderNetwork)
	assert.ErrorIs(t, netErr, context.DeadlineExceeded)
	assert.True(t, netErr.Retryable())

	assert.ErrorIs(t, rejErr, ErrProviderRejected)
	assert.False(t, rejErr.Retryable())
	assert.Contains(t, rejErr.Error(), "Your card was declined.")
	assert.Contains(t, rejErr.Error(), "[card_declined]")
}

func TestProviderError_Message(t *testing.T) {
	err := NewNotSupportedError("revolut", "create_subscription")
	assert.Equal(t, "revolut create_subscription: operation not supported by provider", err.Error())

	evt := NewUnsupportedEventError("paypal", "CUSTOMER.DISPUTE.CREATED")
	assert.ErrorIs(t, evt, ErrUnsupportedEvent)
	assert.Contains(t, evt.Error(), "CUSTOMER.DISPUTE.CREATED")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"network", NewNetworkError("p", "op", errors.New("dial tcp")), ErrProviderNetwork},
		{"wrapped rejection", fmt.Errorf("outer: %w", NewRejectionError("p", "op", "", "no")), ErrProviderRejected},
		{"precondition", NewPreconditionError("stripe", "create_subscription", "customer_id required"), ErrPrecondition},
		{"partial update carries the create failure", fmt.Errorf("%w: %w", ErrPartialUpdate, NewNetworkError("paypal", "create_subscription", nil)), ErrProviderNetwork},
		{"plain error", errors.New("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
