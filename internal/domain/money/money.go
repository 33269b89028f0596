package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
)

// Amount is a monetary value in the currency's minor unit.
type Amount struct {
	Minor    int64
	Currency string
}

var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true,
	"VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

var threeDecimal = map[string]bool{
	"BHD": true, "IQD": true, "JOD": true, "KWD": true, "LYD": true, "OMR": true, "TND": true,
}

// Exponent returns the number of minor-unit digits for an ISO 4217 code.
func Exponent(currency string) int {
	c := strings.ToUpper(currency)
	switch {
	case zeroDecimal[c]:
		return 0
	case threeDecimal[c]:
		return 3
	default:
		return 2
	}
}

// NormalizeCurrency upper-cases and checks an ISO 4217 alphabetic code.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", domainErrors.NewValidationError("currency", "must be a 3-letter ISO 4217 code")
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", domainErrors.NewValidationError("currency", "must be a 3-letter ISO 4217 code")
		}
	}
	return c, nil
}

// Parse reads a decimal string such as "100.00" into an Amount without going
// through floating point. More fractional digits than the currency allows is
// an error, not a rounding.
func Parse(value, currency string) (Amount, error) {
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return Amount{}, err
	}

	s := strings.TrimSpace(value)
	if s == "" {
		return Amount{}, domainErrors.NewValidationError("amount", "is required")
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Amount{}, domainErrors.NewValidationError("amount", fmt.Sprintf("%q is not a decimal number", value))
	}
	if hasDot && frac == "" {
		return Amount{}, domainErrors.NewValidationError("amount", fmt.Sprintf("%q is not a decimal number", value))
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return Amount{}, domainErrors.NewValidationError("amount", fmt.Sprintf("%q is not a decimal number", value))
	}

	exp := Exponent(cur)
	frac = strings.TrimRight(frac, "0")
	if len(frac) > exp {
		return Amount{}, domainErrors.NewValidationError("amount", fmt.Sprintf("%s allows at most %d decimal places", cur, exp))
	}
	frac += strings.Repeat("0", exp-len(frac))

	if whole == "" {
		whole = "0"
	}
	minor, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Amount{}, domainErrors.NewValidationError("amount", "out of range")
	}
	if neg {
		minor = -minor
	}
	return Amount{Minor: minor, Currency: cur}, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Decimal renders the amount in major units, e.g. "100.00".
func (a Amount) Decimal() string {
	exp := Exponent(a.Currency)
	minor := a.Minor
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if exp == 0 {
		return sign + strconv.FormatInt(minor, 10)
	}
	pow := int64(math.Pow10(exp))
	return fmt.Sprintf("%s%d.%0*d", sign, minor/pow, exp, minor%pow)
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	return a.Decimal() + " " + a.Currency
}

// Validate checks that the amount is positive and carries a currency.
func (a Amount) Validate() error {
	if a.Minor <= 0 {
		return domainErrors.NewValidationError("amount", "must be positive")
	}
	if _, err := NormalizeCurrency(a.Currency); err != nil {
		return err
	}
	return nil
}

func (a Amount) IsZero() bool {
	return a.Minor == 0 && a.Currency == ""
}
