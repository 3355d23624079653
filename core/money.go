package core

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal helpers shared by every package
// =============================================================================
// Intermediate sums are never rounded. Round only when presenting.

var hundred = decimal.NewFromInt(100)

// DefaultCurrencyDecimals is the minor-unit convention used when a station
// does not specify one.
const DefaultCurrencyDecimals int32 = 2

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Percent returns part/whole*100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// RoundMoney rounds half away from zero to the given minor-unit places.
func RoundMoney(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
