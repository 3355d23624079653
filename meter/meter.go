/*
Package meter converts dispenser meter readings into liters sold and sale amounts.

PURPOSE:
  A nozzle's meter is a cumulative odometer. A shift assignment records the
  reading when the pumper took the nozzle and when they handed it back; the
  difference is what was sold. The meter wraps at a fixed maximum (99999 on
  the dispensers seen in the field), which is the one tricky case.

ROLLOVER RULE:
  end >= start                           -> end - start
  end <  start, start > 90% of max and
                end   < 10% of max       -> (max - start) + end   (one wrap)
  anything else negative                 -> invalid, excluded
  result <= 0                            -> empty, excluded

  The 90%/10% thresholds are a heuristic. They are parameters of Meter,
  not hard-coded, so they can be tightened once dispenser specs are known.

EXCLUSION POLICY:
  Bad readings are skipped and reported, never zeroed or counted negative.
  Zeroing would hide meter-entry mistakes from the operator.

SEE ALSO:
  - engine.go: Applies this to every shift assignment and prices the liters
  - station/price.go: Price resolution
*/
package meter

import (
	"github.com/shopspring/decimal"
)

// DefaultMax is the largest value the observed dispensers display.
const DefaultMax = 99999

// Outcome classifies a pair of readings.
type Outcome string

const (
	OutcomeNormal   Outcome = "normal"
	OutcomeRollover Outcome = "rollover"
	OutcomeInvalid  Outcome = "invalid"  // negative and not a plausible wrap
	OutcomeEmpty    Outcome = "empty"    // zero liters
	OutcomeOpen     Outcome = "open"     // assignment not closed or end reading missing
	OutcomeTopology Outcome = "topology" // nozzle, tank or fuel could not be resolved
)

// Included reports whether the outcome contributes to sales.
func (o Outcome) Included() bool {
	return o == OutcomeNormal || o == OutcomeRollover
}

// Meter holds the wrap parameters for one dispenser model.
type Meter struct {
	Max decimal.Decimal
	// HighWater: start must exceed Max*HighWater for a wrap to be plausible.
	HighWater decimal.Decimal
	// LowWater: end must be below Max*LowWater for a wrap to be plausible.
	LowWater decimal.Decimal
}

// New returns a meter with the default 90%/10% wrap thresholds.
func New(max int64) Meter {
	if max <= 0 {
		max = DefaultMax
	}
	return Meter{
		Max:       decimal.NewFromInt(max),
		HighWater: decimal.RequireFromString("0.9"),
		LowWater:  decimal.RequireFromString("0.1"),
	}
}

// LitersSold computes the quantity dispensed between two readings.
// Liters are only meaningful when the outcome is Included.
func (m Meter) LitersSold(start, end decimal.Decimal) (decimal.Decimal, Outcome) {
	liters := end.Sub(start)
	outcome := OutcomeNormal

	if liters.IsNegative() {
		if !m.isWrap(start, end) {
			return liters, OutcomeInvalid
		}
		liters = m.Max.Sub(start).Add(end)
		outcome = OutcomeRollover
	}

	if !liters.IsPositive() {
		return liters, OutcomeEmpty
	}
	return liters, outcome
}

func (m Meter) isWrap(start, end decimal.Decimal) bool {
	return start.GreaterThan(m.Max.Mul(m.HighWater)) &&
		end.LessThan(m.Max.Mul(m.LowWater))
}

// LitersSold is the package-level form with the default thresholds.
func LitersSold(start, end decimal.Decimal, max int64) (decimal.Decimal, Outcome) {
	return New(max).LitersSold(start, end)
}
