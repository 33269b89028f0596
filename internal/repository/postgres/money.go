package postgres

import (
	"fmt"

	"github.com/cassiomorais/paygate/internal/domain/money"
)

// Amounts are stored as NUMERIC in major units next to their currency, and
// read back as text so no value passes through a float.

func amountToNumeric(a money.Amount) string {
	return a.Decimal()
}

func numericToAmount(numeric, currency string) (money.Amount, error) {
	a, err := money.Parse(numeric, currency)
	if err != nil {
		return money.Amount{}, fmt.Errorf("parse stored amount %q %s: %w", numeric, currency, err)
	}
	return a, nil
}
