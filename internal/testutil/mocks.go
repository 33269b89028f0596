package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cassiomorais/paygate/internal/domain/customer"
	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/outbox"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/cassiomorais/paygate/internal/domain/subscription"
	"github.com/cassiomorais/paygate/internal/domain/transaction"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory transaction.Repository. Stored
// values are copies, so tests observe only what was persisted.
type MockTransactionRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]transaction.Transaction

	CreateFunc           func(ctx context.Context, tx *transaction.Transaction) error
	GetByIDFunc          func(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	GetByProviderRefFunc func(ctx context.Context, provider, ref string) (*transaction.Transaction, error)
	UpdateStatusFunc     func(ctx context.Context, tx *transaction.Transaction) error
	ListFunc             func(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error)

	Updates int
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{items: make(map[uuid.UUID]transaction.Transaction)}
}

// Add pre-populates the mock.
func (m *MockTransactionRepository) Add(tx *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[tx.ID] = *tx
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if tx.ProviderTransactionID != "" && existing.Provider == tx.Provider &&
			existing.ProviderTransactionID == tx.ProviderTransactionID {
			return domainErrors.ErrDuplicateProviderReference
		}
	}
	m.items[tx.ID] = *tx
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.items[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return &tx, nil
}

func (m *MockTransactionRepository) GetByProviderRef(ctx context.Context, provider, ref string) (*transaction.Transaction, error) {
	if m.GetByProviderRefFunc != nil {
		return m.GetByProviderRefFunc(ctx, provider, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.items {
		if tx.Provider == provider && tx.ProviderTransactionID == ref {
			return &tx, nil
		}
	}
	return nil, domainErrors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) UpdateStatus(ctx context.Context, tx *transaction.Transaction) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[tx.ID]
	if !ok {
		return domainErrors.ErrTransactionNotFound
	}
	stored.Status = tx.Status
	stored.UpdatedAt = tx.UpdatedAt
	m.items[tx.ID] = stored
	m.Updates++
	return nil
}

func (m *MockTransactionRepository) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*transaction.Transaction
	for _, tx := range m.items {
		if filter.Provider != nil && tx.Provider != *filter.Provider {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, tx) {
			continue
		}
		if filter.CreatedBefore != nil && !tx.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		if filter.CreatedAfter != nil && !tx.CreatedAt.After(*filter.CreatedAfter) {
			continue
		}
		tx := tx
		out = append(out, &tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(statuses []status.Status, tx transaction.Transaction) bool {
	for _, s := range statuses {
		if s == tx.Status {
			return true
		}
	}
	return false
}

// Count returns the number of stored transactions.
func (m *MockTransactionRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// --- Subscription Repository Mock ---

type MockSubscriptionRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]subscription.Subscription

	CreateFunc           func(ctx context.Context, sub *subscription.Subscription) error
	GetByIDFunc          func(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error)
	GetByProviderRefFunc func(ctx context.Context, provider, ref string) (*subscription.Subscription, error)
	UpdateFunc           func(ctx context.Context, sub *subscription.Subscription) error
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{items: make(map[uuid.UUID]subscription.Subscription)}
}

func (m *MockSubscriptionRepository) Add(sub *subscription.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sub.ID] = *sub
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sub.ID] = *sub
	return nil
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.items[id]
	if !ok {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (m *MockSubscriptionRepository) GetByProviderRef(ctx context.Context, provider, ref string) (*subscription.Subscription, error) {
	if m.GetByProviderRefFunc != nil {
		return m.GetByProviderRefFunc(ctx, provider, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *subscription.Subscription
	for _, sub := range m.items {
		if sub.Provider != provider || sub.ProviderSubscriptionID != ref {
			continue
		}
		if found == nil || sub.CreatedAt.After(found.CreatedAt) {
			sub := sub
			found = &sub
		}
	}
	if found == nil {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	return found, nil
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[sub.ID]; !ok {
		return domainErrors.ErrSubscriptionNotFound
	}
	m.items[sub.ID] = *sub
	return nil
}

func (m *MockSubscriptionRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// --- Customer Repository Mock ---

type MockCustomerRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]customer.Customer

	CreateFunc func(ctx context.Context, c *customer.Customer) error
}

func NewMockCustomerRepository() *MockCustomerRepository {
	return &MockCustomerRepository{items: make(map[uuid.UUID]customer.Customer)}
}

func (m *MockCustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Provider == c.Provider && existing.ProviderCustomerID == c.ProviderCustomerID {
			return domainErrors.ErrDuplicateProviderReference
		}
	}
	m.items[c.ID] = *c
	return nil
}

func (m *MockCustomerRepository) GetByID(_ context.Context, id uuid.UUID) (*customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, domainErrors.ErrCustomerNotFound
	}
	return &c, nil
}

func (m *MockCustomerRepository) GetByProviderRef(_ context.Context, provider, ref string) (*customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.Provider == provider && c.ProviderCustomerID == ref {
			return &c, nil
		}
	}
	return nil, domainErrors.ErrCustomerNotFound
}

// --- Outbox Repository Mock ---

type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(_ context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.RecordFailedAttempt()
		}
	}
	return nil
}

// Len returns the number of inserted entries.
func (m *MockOutboxRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs fn directly. It records how many
// transactions were opened.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error

	mu    sync.Mutex
	Calls int
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}
