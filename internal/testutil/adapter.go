package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/providers"
)

// MockAdapter is a scriptable providers.Adapter. Unset funcs fall back to
// canned PENDING answers. It also implements every optional capability.
type MockAdapter struct {
	KindValue providers.Kind
	Schemas   map[providers.Operation]string

	CreatePaymentFunc      func(ctx context.Context, req providers.PaymentRequest) (*providers.Result, error)
	CheckPaymentStatusFunc func(ctx context.Context, ref string) (*providers.StatusResult, error)
	ProcessWebhookFunc     func(payload []byte) (*providers.WebhookEvent, error)
	VerifyWebhookFunc      func(payload []byte, header http.Header) error
	CreateSubscriptionFunc func(ctx context.Context, req providers.SubscriptionRequest) (*providers.Result, error)
	CancelSubscriptionFunc func(ctx context.Context, ref string) (*providers.Result, error)
	UpdateSubscriptionFunc func(ctx context.Context, ref string, plan providers.PlanChange) (*providers.Result, error)

	CreateCustomerFunc          func(ctx context.Context, req providers.CustomerRequest) (*providers.CustomerResult, error)
	HasPaymentMethodFunc        func(ctx context.Context, ref string) (bool, error)
	CreateSetupSessionFunc      func(ctx context.Context, req providers.SetupSessionRequest) (*providers.SetupSession, error)
	SetDefaultPaymentMethodFunc func(ctx context.Context, ref string) (string, error)
	CreateProductAndPriceFunc   func(ctx context.Context, req providers.ProductRequest) (*providers.ProductResult, error)

	mu    sync.Mutex
	calls map[providers.Operation]int
	seq   int
}

var (
	_ providers.Adapter         = (*MockAdapter)(nil)
	_ providers.CustomerManager = (*MockAdapter)(nil)
	_ providers.ProductManager  = (*MockAdapter)(nil)
	_ providers.WebhookVerifier = (*MockAdapter)(nil)
)

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{KindValue: providers.KindCard}
}

func (m *MockAdapter) record(op providers.Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[providers.Operation]int)
	}
	m.calls[op]++
	m.seq++
	return m.seq
}

// Calls returns how often op was invoked.
func (m *MockAdapter) Calls(op providers.Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls counts every invocation, webhooks included.
func (m *MockAdapter) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockAdapter) Kind() providers.Kind { return m.KindValue }

func (m *MockAdapter) DetailsSchema(op providers.Operation) string { return m.Schemas[op] }

func (m *MockAdapter) CreatePayment(ctx context.Context, req providers.PaymentRequest) (*providers.Result, error) {
	n := m.record(providers.OpCreatePayment)
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	return &providers.Result{
		ProviderTransactionID: fmt.Sprintf("mock_txn_%d", n),
		Status:                status.Pending,
		ProviderStatus:        "created",
		CheckoutURL:           fmt.Sprintf("https://mock.example/checkout/%d", n),
	}, nil
}

func (m *MockAdapter) CheckPaymentStatus(ctx context.Context, ref string) (*providers.StatusResult, error) {
	m.record(providers.OpCheckPaymentStatus)
	if m.CheckPaymentStatusFunc != nil {
		return m.CheckPaymentStatusFunc(ctx, ref)
	}
	return &providers.StatusResult{Status: status.Pending, ProviderStatus: "created"}, nil
}

// mockEvent is the payload the default ProcessWebhook understands.
type mockEvent struct {
	Record       providers.RecordType `json:"record"`
	Reference    string               `json:"reference"`
	Status       string               `json:"status"`
	EventType    string               `json:"event_type"`
	RequiresPoll bool                 `json:"requires_poll"`
}

// WebhookPayload renders a payload the default ProcessWebhook decodes.
func WebhookPayload(record providers.RecordType, ref string, st status.Status) []byte {
	raw, _ := json.Marshal(mockEvent{Record: record, Reference: ref, Status: string(st), EventType: "mock.event"})
	return raw
}

// PollPayload renders a status-less notification for ref.
func PollPayload(ref string) []byte {
	raw, _ := json.Marshal(mockEvent{Record: providers.RecordTransaction, Reference: ref, EventType: "mock.ping", RequiresPoll: true})
	return raw
}

func (m *MockAdapter) ProcessWebhook(payload []byte) (*providers.WebhookEvent, error) {
	m.record(providers.OpProcessWebhook)
	if m.ProcessWebhookFunc != nil {
		return m.ProcessWebhookFunc(payload)
	}
	var ev mockEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domainErrors.NewValidationError("payload", "malformed JSON: "+err.Error())
	}
	if ev.Record == "" {
		return nil, domainErrors.NewUnsupportedEventError("mock", ev.EventType)
	}
	st := status.Unknown
	if ev.Status != "" {
		parsed, err := status.Parse(ev.Status)
		if err != nil {
			return nil, domainErrors.NewValidationError("status", err.Error())
		}
		st = parsed
	}
	return &providers.WebhookEvent{
		Record:       ev.Record,
		Reference:    ev.Reference,
		Status:       st,
		EventType:    ev.EventType,
		RequiresPoll: ev.RequiresPoll,
	}, nil
}

func (m *MockAdapter) VerifyWebhook(payload []byte, header http.Header) error {
	if m.VerifyWebhookFunc != nil {
		return m.VerifyWebhookFunc(payload, header)
	}
	return nil
}

func (m *MockAdapter) CreateSubscription(ctx context.Context, req providers.SubscriptionRequest) (*providers.Result, error) {
	n := m.record(providers.OpCreateSubscription)
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, req)
	}
	return &providers.Result{
		ProviderSubscriptionID: fmt.Sprintf("mock_sub_%d", n),
		Status:                 status.Pending,
		ProviderStatus:         "incomplete",
	}, nil
}

func (m *MockAdapter) CancelSubscription(ctx context.Context, ref string) (*providers.Result, error) {
	m.record(providers.OpCancelSubscription)
	if m.CancelSubscriptionFunc != nil {
		return m.CancelSubscriptionFunc(ctx, ref)
	}
	return &providers.Result{ProviderSubscriptionID: ref, Status: status.Cancelled, ProviderStatus: "canceled"}, nil
}

func (m *MockAdapter) UpdateSubscription(ctx context.Context, ref string, plan providers.PlanChange) (*providers.Result, error) {
	m.record(providers.OpUpdateSubscription)
	if m.UpdateSubscriptionFunc != nil {
		return m.UpdateSubscriptionFunc(ctx, ref, plan)
	}
	return &providers.Result{ProviderSubscriptionID: ref, Status: status.Processing, ProviderStatus: "active"}, nil
}

func (m *MockAdapter) CreateCustomer(ctx context.Context, req providers.CustomerRequest) (*providers.CustomerResult, error) {
	n := m.record(providers.OpCreateCustomer)
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, req)
	}
	return &providers.CustomerResult{ProviderCustomerID: fmt.Sprintf("mock_cus_%d", n), Email: req.Email, Name: req.Name}, nil
}

func (m *MockAdapter) HasPaymentMethod(ctx context.Context, ref string) (bool, error) {
	m.record(providers.OpHasPaymentMethod)
	if m.HasPaymentMethodFunc != nil {
		return m.HasPaymentMethodFunc(ctx, ref)
	}
	return false, nil
}

func (m *MockAdapter) CreateSetupSession(ctx context.Context, req providers.SetupSessionRequest) (*providers.SetupSession, error) {
	n := m.record(providers.OpCreateSetupSession)
	if m.CreateSetupSessionFunc != nil {
		return m.CreateSetupSessionFunc(ctx, req)
	}
	return &providers.SetupSession{
		SessionID:   fmt.Sprintf("mock_setup_%d", n),
		CheckoutURL: fmt.Sprintf("https://mock.example/setup/%d", n),
	}, nil
}

func (m *MockAdapter) SetDefaultPaymentMethod(ctx context.Context, ref string) (string, error) {
	m.record(providers.OpSetDefaultMethod)
	if m.SetDefaultPaymentMethodFunc != nil {
		return m.SetDefaultPaymentMethodFunc(ctx, ref)
	}
	return "mock_pm_1", nil
}

func (m *MockAdapter) CreateProductAndPrice(ctx context.Context, req providers.ProductRequest) (*providers.ProductResult, error) {
	n := m.record(providers.OpCreateProduct)
	if m.CreateProductAndPriceFunc != nil {
		return m.CreateProductAndPriceFunc(ctx, req)
	}
	return &providers.ProductResult{
		ProductID: fmt.Sprintf("mock_prod_%d", n),
		PriceID:   fmt.Sprintf("mock_price_%d", n),
	}, nil
}
