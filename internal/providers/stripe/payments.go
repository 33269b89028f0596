package stripe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v81"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/providers"
)

// CreatePayment opens a hosted Checkout Session in payment mode. The local
// transaction id rides on the session and on the PaymentIntent Checkout
// creates later, so payment_intent.* events can be matched to the session.
func (a *Adapter) CreatePayment(ctx context.Context, req providers.PaymentRequest) (*providers.Result, error) {
	name := req.Description
	if name == "" {
		name = "Payment"
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{{
			Quantity: stripeapi.Int64(1),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String(strings.ToLower(req.Amount.Currency)),
				UnitAmount: stripeapi.Int64(req.Amount.Minor),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(name),
				},
			},
		}},
	}
	params.Context = ctx
	if req.SuccessURL != "" {
		params.SuccessURL = stripeapi.String(req.SuccessURL)
	}
	if req.CancelURL != "" {
		params.CancelURL = stripeapi.String(req.CancelURL)
	}
	// Stripe accepts either an existing customer or a prefilled email.
	if customer := stringDetail(req.PaymentDetails, "customer_id"); customer != "" {
		params.Customer = stripeapi.String(customer)
	} else if email := stringDetail(req.PaymentDetails, "customer_email"); email != "" {
		params.CustomerEmail = stripeapi.String(email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, fmt.Sprint(v))
	}
	if req.Reference != "" {
		params.ClientReferenceID = stripeapi.String(req.Reference)
		params.PaymentIntentData = &stripeapi.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{transactionIDKey: req.Reference},
		}
	}

	session, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, a.providerError(providers.OpCreatePayment, err)
	}

	return &providers.Result{
		ProviderTransactionID: session.ID,
		Status:                status.Pending,
		ProviderStatus:        string(session.Status),
		CheckoutURL:           session.URL,
		ClientSecret:          session.ClientSecret,
		Metadata: map[string]any{
			"payment_status": string(session.PaymentStatus),
		},
	}, nil
}

// CheckPaymentStatus accepts Checkout Session (cs_) and PaymentIntent (pi_)
// ids. A session reports its PaymentIntent's state once one exists.
func (a *Adapter) CheckPaymentStatus(ctx context.Context, providerTransactionID string) (*providers.StatusResult, error) {
	switch {
	case strings.HasPrefix(providerTransactionID, "cs_"):
		params := &stripeapi.CheckoutSessionParams{}
		params.Context = ctx
		session, err := a.api.CheckoutSessions.Get(providerTransactionID, params)
		if err != nil {
			return nil, a.providerError(providers.OpCheckPaymentStatus, err)
		}
		if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
			native := string(session.Status)
			return &providers.StatusResult{
				Status:         sessionStatuses.Map(native),
				ProviderStatus: native,
				Details:        map[string]any{"session_status": native, "payment_status": string(session.PaymentStatus)},
			}, nil
		}
		res, err := a.intentStatus(ctx, session.PaymentIntent.ID)
		if err != nil {
			return nil, err
		}
		res.Details["session_status"] = string(session.Status)
		return res, nil

	case strings.HasPrefix(providerTransactionID, "pi_"):
		return a.intentStatus(ctx, providerTransactionID)

	default:
		return nil, domainErrors.NewValidationError("provider_transaction_id", "unrecognised Stripe id "+strconv.Quote(providerTransactionID))
	}
}

func (a *Adapter) intentStatus(ctx context.Context, id string) (*providers.StatusResult, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	pi, err := a.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, a.providerError(providers.OpCheckPaymentStatus, err)
	}
	native := string(pi.Status)
	return &providers.StatusResult{
		Status:         paymentIntentStatuses.Map(native),
		ProviderStatus: native,
		Details: map[string]any{
			"payment_intent": pi.ID,
			"amount":         pi.Amount,
			"currency":       string(pi.Currency),
		},
	}, nil
}
