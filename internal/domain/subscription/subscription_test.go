package subscription

import (
	"testing"

	"github.com/cassiomorais/paygate/internal/domain/money"
	"github.com/cassiomorais/paygate/internal/domain/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		name    string
		unit    string
		count   int
		want    Interval
		wantErr bool
	}{
		{"month", "month", 1, Interval{Unit: Month, Count: 1}, false},
		{"upper case", "YEAR", 2, Interval{Unit: Year, Count: 2}, false},
		{"zero count defaults to one", "week", 0, Interval{Unit: Week, Count: 1}, false},
		{"negative count", "day", -1, Interval{}, true},
		{"bad unit", "fortnight", 1, Interval{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInterval(tt.unit, tt.count)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubscription_SetStatus_StampsEndDate(t *testing.T) {
	sub := New("user-1", "plan-basic", "stripe", "sub_123", money.Amount{Minor: 999, Currency: "USD"}, Interval{Unit: Month, Count: 1}, status.Processing)
	assert.Nil(t, sub.EndDate)

	assert.False(t, sub.SetStatus(status.Processing))
	assert.True(t, sub.SetStatus(status.Cancelled))
	require.NotNil(t, sub.EndDate)
	first := *sub.EndDate

	sub.SetStatus(status.Failed)
	assert.Equal(t, first, *sub.EndDate, "end date is set only once")
}

func TestSubscription_Replace(t *testing.T) {
	sub := New("user-1", "plan-basic", "paypal", "I-OLD", money.Amount{Minor: 500, Currency: "USD"}, Interval{Unit: Month, Count: 1}, status.Processing)
	sub.SetStatus(status.Cancelled)

	sub.Replace("I-NEW", "plan-pro", money.Amount{Minor: 1500, Currency: "USD"}, Interval{Unit: Year, Count: 1}, status.Pending)

	assert.Equal(t, "I-NEW", sub.ProviderSubscriptionID)
	assert.Equal(t, "plan-pro", sub.PlanID)
	assert.Equal(t, int64(1500), sub.Amount.Minor)
	assert.Equal(t, Year, sub.Interval.Unit)
	assert.Equal(t, status.Pending, sub.Status)
	assert.Nil(t, sub.EndDate)
}
