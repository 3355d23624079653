package meter

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/station"
)

// =============================================================================
// ENGINE - Shift assignments -> per-fuel sale totals
// =============================================================================

// PriceResolver is satisfied by *station.Resolver.
type PriceResolver interface {
	Resolve(ctx context.Context, fuelID, stationID string, asOf time.Time) (decimal.Decimal, bool, error)
}

// FuelTotal accumulates one fuel's sales over every included assignment.
type FuelTotal struct {
	FuelID   string
	FuelName string
	Category station.FuelCategory
	Liters   decimal.Decimal
	Amount   decimal.Decimal
	// UnpricedLiters were sold while no price was in force; counted at zero.
	UnpricedLiters decimal.Decimal
}

// Exclusion records an assignment left out of the totals and why.
type Exclusion struct {
	ShiftID      string
	AssignmentID string
	NozzleID     string
	Start        decimal.Decimal
	End          *decimal.Decimal
	Outcome      Outcome
	Detail       string
}

// Line is one priced assignment.
type Line struct {
	ShiftID      string
	AssignmentID string
	NozzleID     string
	FuelID       string
	Liters       decimal.Decimal
	UnitPrice    decimal.Decimal
	Priced       bool
	Amount       decimal.Decimal
	Outcome      Outcome
}

// Result is the output of one engine run.
type Result struct {
	Fuels       []FuelTotal // sorted by FuelID
	Lines       []Line
	Exclusions  []Exclusion
	TotalLiters decimal.Decimal
	TotalAmount decimal.Decimal
}

// ByCategory sums amounts of every fuel in the category.
func (r Result) ByCategory(c station.FuelCategory) decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.Fuels {
		if f.Category == c {
			total = total.Add(f.Amount)
		}
	}
	return total
}

// Engine prices shift assignments.
type Engine struct {
	meter   Meter
	catalog station.Catalog
}

func NewEngine(m Meter, catalog station.Catalog) *Engine {
	return &Engine{meter: m, catalog: catalog}
}

// Compute runs every assignment of every shift through LitersSold and the
// resolver. Bad data is excluded and logged; only context cancellation is
// returned as an error.
func (e *Engine) Compute(ctx context.Context, stationID string, shifts []station.Shift, prices PriceResolver) (Result, error) {
	res := Result{TotalLiters: decimal.Zero, TotalAmount: decimal.Zero}
	fuels := make(map[string]*FuelTotal)
	topo := newTopologyCache(e.catalog)

	for _, shift := range shifts {
		for _, a := range shift.Assignments {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}

			if !a.Reconcilable() {
				res.Exclusions = append(res.Exclusions, exclusion(shift, a, OutcomeOpen, "assignment not closed or end reading missing"))
				continue
			}

			liters, outcome := e.meter.LitersSold(a.StartMeterReading, *a.EndMeterReading)
			if !outcome.Included() {
				log.Printf("[Meter] Excluding assignment %s (shift %s): %s -> %s is %s",
					a.ID, shift.ID, a.StartMeterReading, *a.EndMeterReading, outcome)
				res.Exclusions = append(res.Exclusions, exclusion(shift, a, outcome, "liters "+liters.String()))
				continue
			}
			if outcome == OutcomeRollover {
				log.Printf("[Meter] Rollover on assignment %s: %s -> %s = %s L",
					a.ID, a.StartMeterReading, *a.EndMeterReading, liters)
			}

			fuel, err := topo.fuelFor(ctx, a.NozzleID)
			if err != nil {
				log.Printf("[Meter] Excluding assignment %s: %v", a.ID, err)
				res.Exclusions = append(res.Exclusions, exclusion(shift, a, OutcomeTopology, err.Error()))
				continue
			}

			unit, priced, err := prices.Resolve(ctx, fuel.ID, stationID, shift.PricingTime())
			if err != nil {
				log.Printf("[Meter] Price lookup failed for fuel %s: %v (counting at zero)", fuel.ID, err)
				unit, priced = decimal.Zero, false
			}
			if !priced {
				log.Printf("[Meter] No price for fuel %s at station %s before %s",
					fuel.ID, stationID, shift.PricingTime().Format(time.RFC3339))
			}
			amount := liters.Mul(unit)

			ft, ok := fuels[fuel.ID]
			if !ok {
				ft = &FuelTotal{
					FuelID: fuel.ID, FuelName: fuel.Name, Category: fuel.Category,
					Liters: decimal.Zero, Amount: decimal.Zero, UnpricedLiters: decimal.Zero,
				}
				fuels[fuel.ID] = ft
			}
			ft.Liters = ft.Liters.Add(liters)
			ft.Amount = ft.Amount.Add(amount)
			if !priced {
				ft.UnpricedLiters = ft.UnpricedLiters.Add(liters)
			}

			res.TotalLiters = res.TotalLiters.Add(liters)
			res.TotalAmount = res.TotalAmount.Add(amount)
			res.Lines = append(res.Lines, Line{
				ShiftID: shift.ID, AssignmentID: a.ID, NozzleID: a.NozzleID, FuelID: fuel.ID,
				Liters: liters, UnitPrice: unit, Priced: priced, Amount: amount, Outcome: outcome,
			})
		}
	}

	res.Fuels = make([]FuelTotal, 0, len(fuels))
	for _, ft := range fuels {
		res.Fuels = append(res.Fuels, *ft)
	}
	sort.Slice(res.Fuels, func(i, j int) bool { return res.Fuels[i].FuelID < res.Fuels[j].FuelID })
	return res, nil
}

func exclusion(s station.Shift, a station.ShiftAssignment, o Outcome, detail string) Exclusion {
	return Exclusion{
		ShiftID: s.ID, AssignmentID: a.ID, NozzleID: a.NozzleID,
		Start: a.StartMeterReading, End: a.EndMeterReading,
		Outcome: o, Detail: detail,
	}
}
