package report

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// VARIANCE CLASSIFICATION
// =============================================================================

type VarianceStatus string

const (
	VarianceNormal     VarianceStatus = "NORMAL"
	VarianceSuspicious VarianceStatus = "SUSPICIOUS"
)

// VariancePolicy decides when a sales/declared gap is worth a look.
// Tolerance = max(sales * Percent / 100, Flat).
type VariancePolicy struct {
	Percent decimal.Decimal
	Flat    decimal.Decimal
}

// DefaultVariancePolicy is 0.3% of sales with a floor of 200.
func DefaultVariancePolicy() VariancePolicy {
	return VariancePolicy{
		Percent: decimal.RequireFromString("0.3"),
		Flat:    decimal.NewFromInt(200),
	}
}

// Tolerance returns the allowed absolute variance for the given sales.
func (p VariancePolicy) Tolerance(sales decimal.Decimal) decimal.Decimal {
	pct := sales.Abs().Mul(p.Percent).Div(decimal.NewFromInt(100))
	return decimal.Max(pct, p.Flat)
}

// Classify compares |variance| against the tolerance for sales.
func (p VariancePolicy) Classify(variance, sales decimal.Decimal) (VarianceStatus, decimal.Decimal) {
	tol := p.Tolerance(sales)
	if variance.Abs().GreaterThan(tol) {
		return VarianceSuspicious, tol
	}
	return VarianceNormal, tol
}
