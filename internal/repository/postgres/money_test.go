package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/paygate/internal/domain/money"
)

func TestNumericToAmount(t *testing.T) {
	tests := []struct {
		name     string
		numeric  string
		currency string
		want     int64
	}{
		{"two decimals", "100.00", "EUR", 10000},
		{"numeric scale padding", "100.5000", "EUR", 10050},
		{"cents only", "0.9900", "USD", 99},
		{"zero decimal currency", "1500.0000", "JPY", 1500},
		{"three decimal currency", "1.2340", "KWD", 1234},
		{"large amount", "99999999.99", "USD", 9999999999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := numericToAmount(tt.numeric, tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Minor)
			assert.Equal(t, tt.currency, a.Currency)
		})
	}
}

func TestNumericToAmount_Errors(t *testing.T) {
	for _, tc := range []struct{ numeric, currency string }{
		{"", "EUR"},
		{"abc", "EUR"},
		{"10.5.5", "EUR"},
		{"1.005", "EUR"},
		{"10.00", "EURO"},
	} {
		_, err := numericToAmount(tc.numeric, tc.currency)
		assert.Error(t, err, "%q %q", tc.numeric, tc.currency)
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, a := range []money.Amount{
		{Minor: 1, Currency: "EUR"},
		{Minor: 10000, Currency: "EUR"},
		{Minor: 12345, Currency: "USD"},
		{Minor: 500, Currency: "JPY"},
		{Minor: 1001, Currency: "BHD"},
		{Minor: 999999999999, Currency: "USD"},
	} {
		back, err := numericToAmount(amountToNumeric(a), a.Currency)
		require.NoError(t, err)
		assert.Equal(t, a, back)
	}
}
