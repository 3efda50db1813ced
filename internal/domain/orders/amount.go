package orders

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Amount limits mirror the processed_orders.amount column, NUMERIC(18,2).
const (
	AmountScale         = 2
	AmountIntegerDigits = 16
	// MaxAmountLiteral bounds the textual form before it is parsed.
	MaxAmountLiteral = 64
)

var (
	ErrAmountNotPositive = errors.New("amount must be positive")
	ErrAmountTooLarge    = errors.New("amount exceeds 16 integer digits")
	ErrAmountScale       = errors.New("amount has more than 2 decimal places")
	ErrAmountLiteral     = errors.New("amount literal is too long")
)

// ParseAmount parses a decimal literal and checks it with ValidateAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	if len(s) > MaxAmountLiteral {
		return decimal.Zero, ErrAmountLiteral
	}
	a, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateAmount(a); err != nil {
		return decimal.Zero, err
	}
	return a, nil
}

// ValidateAmount accepts positive amounts with at most 2 decimal places and 16
// integer digits. Only the exponent and digit count are inspected before any
// rescaling, so an extreme exponent such as 1e50000000 is rejected cheaply.
func ValidateAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return ErrAmountNotPositive
	}

	exp := int64(a.Exponent())
	digits := int64(a.NumDigits())

	if digits+exp > AmountIntegerDigits {
		return ErrAmountTooLarge
	}
	if exp < -AmountScale {
		// trailing zeros are fine ("1.000"); anything that needs them is not
		if digits+exp < -AmountScale || !a.Equal(a.Truncate(AmountScale)) {
			return ErrAmountScale
		}
	}
	return nil
}
