package subscription

import (
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/google/uuid"
)

// IntervalUnit is the billing period unit.
type IntervalUnit string

const (
	Day   IntervalUnit = "day"
	Week  IntervalUnit = "week"
	Month IntervalUnit = "month"
	Year  IntervalUnit = "year"
)

// Interval is a billing cadence such as "every 3 months".
type Interval struct {
	Unit  IntervalUnit
	Count int
}

// ParseInterval normalizes a unit string and count.
func ParseInterval(unit string, count int) (Interval, error) {
	u := IntervalUnit(strings.ToLower(strings.TrimSpace(unit)))
	switch u {
	case Day, Week, Month, Year:
	default:
		return Interval{}, domainErrors.NewValidationError("interval", fmt.Sprintf("unsupported unit %q", unit))
	}
	if count == 0 {
		count = 1
	}
	if count < 1 {
		return Interval{}, domainErrors.NewValidationError("interval_count", "must be at least 1")
	}
	return Interval{Unit: u, Count: count}, nil
}

func (i Interval) String() string {
	return fmt.Sprintf("%d %s", i.Count, i.Unit)
}

// Subscription is a recurring billing agreement held at a provider.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 string
	PlanID                 string
	Status                 status.Status
	Amount                 money.Amount
	Interval               Interval
	StartDate              time.Time
	EndDate                *time.Time
	Provider               string
	ProviderSubscriptionID string
	TransactionID          *uuid.UUID
	CheckoutURL            *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// New builds a subscription from the provider's creation result.
func New(userID, planID, provider, providerSubID string, amount money.Amount, interval Interval, st status.Status) *Subscription {
	now := time.Now().UTC()
	return &Subscription{
		ID:                     uuid.New(),
		UserID:                 userID,
		PlanID:                 planID,
		Status:                 st,
		Amount:                 amount,
		Interval:               interval,
		StartDate:              now,
		Provider:               provider,
		ProviderSubscriptionID: providerSubID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// SetStatus overwrites the status and stamps EndDate the first time a
// terminal status is reached.
func (s *Subscription) SetStatus(st status.Status) (changed bool) {
	if s.Status == st {
		return false
	}
	now := time.Now().UTC()
	s.Status = st
	s.UpdatedAt = now
	if st.IsTerminal() && s.EndDate == nil {
		s.EndDate = &now
	}
	return true
}

// Replace points the record at a newly created provider subscription after a
// cancel-then-recreate plan change.
func (s *Subscription) Replace(providerSubID, planID string, amount money.Amount, interval Interval, st status.Status) {
	now := time.Now().UTC()
	s.ProviderSubscriptionID = providerSubID
	if planID != "" {
		s.PlanID = planID
	}
	if !amount.IsZero() {
		s.Amount = amount
	}
	if interval.Count > 0 {
		s.Interval = interval
	}
	s.Status = st
	s.StartDate = now
	s.EndDate = nil
	s.UpdatedAt = now
}
