package domain

import (
	"github.com/shopspring/decimal"
)

var minorUnitsPerMajor = decimal.NewFromInt(100)

// FromMinorUnits converts a processor amount in cents to a 2-digit decimal.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(minorUnitsPerMajor).Round(2)
}

// ToMinorUnits converts a decimal amount to cents. Amounts with more than two
// fraction digits are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	cents := amount.Mul(minorUnitsPerMajor)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// FormatAmount renders an amount with exactly two fraction digits.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
