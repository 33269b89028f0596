package paypal

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/providers"
)

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount      orderAmount `json:"amount"`
	Description string      `json:"description,omitempty"`
	CustomID    string      `json:"custom_id,omitempty"`
}

type applicationContext struct {
	BrandName  string `json:"brand_name,omitempty"`
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

type orderPayer struct {
	EmailAddress string `json:"email_address,omitempty"`
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	Payer              *orderPayer         `json:"payer,omitempty"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []link         `json:"links"`
	CreateTime    string         `json:"create_time"`
	UpdateTime    string         `json:"update_time"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Payer         *orderPayer    `json:"payer"`
}

// CreatePayment creates a CAPTURE order and returns its approval link.
func (a *Adapter) CreatePayment(ctx context.Context, req providers.PaymentRequest) (*providers.Result, error) {
	op := providers.OpCreatePayment

	unit := purchaseUnit{
		Amount: orderAmount{
			CurrencyCode: strings.ToUpper(req.Amount.Currency),
			Value:        req.Amount.Decimal(),
		},
		Description: req.Description,
	}
	if len(req.Metadata) > 0 {
		if raw, err := json.Marshal(req.Metadata); err == nil && len(raw) <= 127 {
			unit.CustomID = string(raw)
		}
	}

	body := createOrderRequest{
		Intent:        "CAPTURE",
		PurchaseUnits: []purchaseUnit{unit},
		ApplicationContext: &applicationContext{
			BrandName:  stringDetail(req.PaymentDetails, "brand_name"),
			ReturnURL:  req.SuccessURL,
			CancelURL:  req.CancelURL,
			UserAction: "PAY_NOW",
		},
	}
	if email := stringDetail(req.PaymentDetails, "payer_email"); email != "" {
		body.Payer = &orderPayer{EmailAddress: email}
	}

	var o order
	if err := a.client.PostJSON(ctx, string(op), "/v2/checkout/orders", body, &o); err != nil {
		return nil, err
	}

	approve := approvalLink(o.Links)
	if approve == "" {
		return nil, domainErrors.NewProviderError(a.key, string(op), domainErrors.ErrProviderRejected, "order "+o.ID+" has no approval link", nil)
	}

	st := orderStatuses.Map(o.Status)
	if st == status.Unknown {
		st = status.Pending
	}
	return &providers.Result{
		ProviderTransactionID: o.ID,
		Status:                st,
		ProviderStatus:        o.Status,
		CheckoutURL:           approve,
		Metadata:              map[string]any{"paypal_status": o.Status},
	}, nil
}

func (a *Adapter) CheckPaymentStatus(ctx context.Context, providerTransactionID string) (*providers.StatusResult, error) {
	var o order
	if err := a.client.Get(ctx, string(providers.OpCheckPaymentStatus), "/v2/checkout/orders/"+url.PathEscape(providerTransactionID), nil, &o); err != nil {
		return nil, err
	}

	details := map[string]any{
		"id":          o.ID,
		"create_time": o.CreateTime,
		"update_time": o.UpdateTime,
	}
	if len(o.PurchaseUnits) > 0 {
		details["amount"] = o.PurchaseUnits[0].Amount.Value
		details["currency"] = o.PurchaseUnits[0].Amount.CurrencyCode
	}
	if o.Payer != nil {
		details["payer_email"] = o.Payer.EmailAddress
	}

	return &providers.StatusResult{
		Status:         orderStatuses.Map(o.Status),
		ProviderStatus: o.Status,
		Details:        details,
	}, nil
}
