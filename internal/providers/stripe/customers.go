package stripe

import (
	"context"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v81"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/providers"
)

func (a *Adapter) CreateCustomer(ctx context.Context, req providers.CustomerRequest) (*providers.CustomerResult, error) {
	params := &stripeapi.CustomerParams{}
	if req.Email != "" {
		params.Email = stripeapi.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripeapi.String(req.Name)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, fmt.Sprint(v))
	}
	params.Context = ctx

	c, err := a.api.Customers.New(params)
	if err != nil {
		return nil, a.providerError(providers.OpCreateCustomer, err)
	}
	return &providers.CustomerResult{ProviderCustomerID: c.ID, Email: c.Email, Name: c.Name}, nil
}

// firstCard returns the customer's first stored card, or nil.
func (a *Adapter) firstCard(ctx context.Context, op providers.Operation, customerID string) (*stripeapi.PaymentMethod, error) {
	params := &stripeapi.PaymentMethodListParams{
		Customer: stripeapi.String(customerID),
		Type:     stripeapi.String(string(stripeapi.PaymentMethodTypeCard)),
	}
	params.Limit = stripeapi.Int64(1)
	params.Context = ctx

	it := a.api.PaymentMethods.List(params)
	var pm *stripeapi.PaymentMethod
	if it.Next() {
		pm = it.PaymentMethod()
	}
	if err := it.Err(); err != nil {
		return nil, a.providerError(op, err)
	}
	return pm, nil
}

func (a *Adapter) HasPaymentMethod(ctx context.Context, providerCustomerID string) (bool, error) {
	pm, err := a.firstCard(ctx, providers.OpHasPaymentMethod, providerCustomerID)
	if err != nil {
		return false, err
	}
	return pm != nil, nil
}

// CreateSetupSession opens a Checkout Session in setup mode so the customer
// can store a card.
func (a *Adapter) CreateSetupSession(ctx context.Context, req providers.SetupSessionRequest) (*providers.SetupSession, error) {
	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModeSetup)),
		Customer:           stripeapi.String(req.ProviderCustomerID),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
	}
	if req.SuccessURL != "" {
		params.SuccessURL = stripeapi.String(req.SuccessURL)
	}
	if req.CancelURL != "" {
		params.CancelURL = stripeapi.String(req.CancelURL)
	}
	params.Context = ctx

	session, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, a.providerError(providers.OpCreateSetupSession, err)
	}
	return &providers.SetupSession{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func (a *Adapter) SetDefaultPaymentMethod(ctx context.Context, providerCustomerID string) (string, error) {
	op := providers.OpSetDefaultMethod

	pm, err := a.firstCard(ctx, op, providerCustomerID)
	if err != nil {
		return "", err
	}
	if pm == nil {
		return "", domainErrors.NewPreconditionError(a.key, string(op), fmt.Sprintf("customer %s has no stored card", providerCustomerID))
	}

	params := &stripeapi.CustomerParams{
		InvoiceSettings: &stripeapi.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripeapi.String(pm.ID),
		},
	}
	params.Context = ctx
	if _, err := a.api.Customers.Update(providerCustomerID, params); err != nil {
		return "", a.providerError(op, err)
	}
	return pm.ID, nil
}

// CreateProductAndPrice creates a product and one price for it. The price
// is recurring when an interval is given.
func (a *Adapter) CreateProductAndPrice(ctx context.Context, req providers.ProductRequest) (*providers.ProductResult, error) {
	op := providers.OpCreateProduct

	prod, err := a.newProduct(ctx, op, req.Name, req.Description)
	if err != nil {
		return nil, err
	}
	pr, err := a.newPrice(ctx, op, prod.ID, req.Amount, req.Interval)
	if err != nil {
		return nil, err
	}
	return &providers.ProductResult{ProductID: prod.ID, PriceID: pr.ID}, nil
}
