/*
Package report builds the consolidated daily or period statement of a station.

PURPOSE:
  One report merges meter-derived fuel sales, shop sales, declared tender,
  POS batches, credit activity, cheques, expenses, deposits and loans,
  and flags the difference between what the meters say was sold and what
  staff declared as collected.

DATA-DEPENDENCY ORDER (aggregator.go):
  1. Validate station and window. Bad input fails fast, nothing is computed.
  2. Load CLOSED shifts in the window.
  3. Run the meter engine over their assignments.
  4. Run every settlement query concurrently. A failing query degrades its
     section to zero and is listed in Report.Degraded.
  5. Sum declared tender.
  6. totalSales = fuelSales + shopSales, variance = totalSales - declared.
  7. netProfit = totalSales - expenses - deposits - loans.
  8. Round at the presentation boundary only (view.go).

FAILURE POLICY:
  Resolution gaps (no price, bad reading) are exclusions.
  Settlement query failures are degradations.
  Only validation, unknown station, and the shift query itself fail the report.

SEE ALSO:
  - meter/engine.go: Fuel sale computation
  - settlement/aggregate.go: Section reducers
  - cache.go: Short-TTL cache of presented reports
*/
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/meter"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/station"
)

// Section names used in Report.Degraded.
const (
	SectionPOS          = "pos"
	SectionCredit       = "credit"
	SectionCheques      = "cheques"
	SectionExpenses     = "expenses"
	SectionDeposits     = "deposits"
	SectionLoans        = "loans"
	SectionCashPosition = "cashPosition"
)

// Tender is one amount per declared tender kind.
type Tender struct {
	Cash   decimal.Decimal
	Card   decimal.Decimal
	Credit decimal.Decimal
	Cheque decimal.Decimal
}

// Report is the unrounded result of one run.
type Report struct {
	StationID   string
	StationName string
	Decimals    int32
	Window      core.Window
	GeneratedAt time.Time

	Fuel             meter.Result
	PetrolSales      decimal.Decimal
	DieselSales      decimal.Decimal
	SuperDieselSales decimal.Decimal
	KeroseneSales    decimal.Decimal
	OilSales         decimal.Decimal
	TotalFuelSales   decimal.Decimal
	ShopSales        decimal.Decimal
	TotalSales       decimal.Decimal

	Declared         Tender
	DeclaredTotal    decimal.Decimal
	TenderPercentage Tender // share of TotalSales, 0..100

	POS      settlement.POSSummary
	Credit   settlement.CreditSummary
	Cheques  settlement.ChequeSummary
	Expenses settlement.CategoryTotals
	Deposits settlement.CategoryTotals
	Loans    settlement.CategoryTotals

	NetProfit          decimal.Decimal
	TotalVariance      decimal.Decimal
	VariancePercentage decimal.Decimal
	VarianceStatus     VarianceStatus
	VarianceTolerance  decimal.Decimal

	ShiftCount         int
	TransactionCount   int
	AverageTransaction decimal.Decimal

	// CashPosition is the safe balance at the end of the window; nil when
	// the station has no safe or the lookup failed.
	CashPosition *decimal.Decimal

	Degraded []string
}

// IsDegraded reports whether section was zeroed because its query failed.
func (r *Report) IsDegraded(section string) bool {
	for _, s := range r.Degraded {
		if s == section {
			return true
		}
	}
	return false
}

// declaredTender sums what staff reported across shifts.
func declaredTender(shifts []station.Shift) (Tender, decimal.Decimal) {
	t := Tender{Cash: decimal.Zero, Card: decimal.Zero, Credit: decimal.Zero, Cheque: decimal.Zero}
	for _, s := range shifts {
		t.Cash = t.Cash.Add(s.Declared.Cash)
		t.Card = t.Card.Add(s.Declared.Card)
		t.Credit = t.Credit.Add(s.Declared.Credit)
		t.Cheque = t.Cheque.Add(s.Declared.Cheque)
	}
	return t, core.Sum(t.Cash, t.Card, t.Credit, t.Cheque)
}

// transactionCount uses the declared count of each shift, falling back to
// its number of assignments, open ones included.
func transactionCount(shifts []station.Shift) int {
	n := 0
	for _, s := range shifts {
		if s.Declared.TransactionCount > 0 {
			n += s.Declared.TransactionCount
			continue
		}
		n += len(s.Assignments)
	}
	return n
}
