package transaction

import (
	"time"

	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/google/uuid"
)

// Transaction is a one-time payment initiated through a provider.
type Transaction struct {
	ID                    uuid.UUID
	Amount                money.Amount
	Status                status.Status
	Provider              string
	ProviderTransactionID string
	CheckoutURL           *string
	Description           *string
	SuccessURL            string
	CancelURL             string
	Metadata              map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time

	// ClientSecret is handed back once at creation and never stored.
	ClientSecret *string
}

// New builds a transaction from the provider's creation result.
func New(provider, providerTxID string, amount money.Amount, st status.Status) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:                    uuid.New(),
		Amount:                amount,
		Status:                st,
		Provider:              provider,
		ProviderTransactionID: providerTxID,
		Metadata:              make(map[string]any),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// SetStatus overwrites the status. There is deliberately no transition
// table: any status may follow any other.
func (t *Transaction) SetStatus(st status.Status) (changed bool) {
	if t.Status == st {
		return false
	}
	t.Status = st
	t.UpdatedAt = time.Now().UTC()
	return true
}
