package settlement

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POS
// =============================================================================

type TerminalTotal struct {
	TerminalID       string
	TerminalName     string
	BankName         string
	Visa             decimal.Decimal
	Master           decimal.Decimal
	Amex             decimal.Decimal
	QR               decimal.Decimal
	Total            decimal.Decimal
	TransactionCount int
}

type POSSummary struct {
	Terminals        []TerminalTotal // sorted by TerminalID
	Total            decimal.Decimal
	TransactionCount int
}

// AggregatePOS sums every entry per terminal.
func AggregatePOS(batches []PosBatch) POSSummary {
	byID := make(map[string]*TerminalTotal)
	sum := POSSummary{Total: decimal.Zero}

	for _, b := range batches {
		for _, e := range b.Entries {
			t, ok := byID[e.TerminalID]
			if !ok {
				t = &TerminalTotal{
					TerminalID: e.TerminalID, TerminalName: e.TerminalName, BankName: e.BankName,
					Visa: decimal.Zero, Master: decimal.Zero, Amex: decimal.Zero, QR: decimal.Zero, Total: decimal.Zero,
				}
				byID[e.TerminalID] = t
			}
			t.Visa = t.Visa.Add(e.Visa)
			t.Master = t.Master.Add(e.Master)
			t.Amex = t.Amex.Add(e.Amex)
			t.QR = t.QR.Add(e.QR)
			t.Total = t.Total.Add(e.Total())
			t.TransactionCount += e.TransactionCount

			sum.Total = sum.Total.Add(e.Total())
			sum.TransactionCount += e.TransactionCount
		}
	}

	sum.Terminals = make([]TerminalTotal, 0, len(byID))
	for _, t := range byID {
		sum.Terminals = append(sum.Terminals, *t)
	}
	sort.Slice(sum.Terminals, func(i, j int) bool {
		return sum.Terminals[i].TerminalID < sum.Terminals[j].TerminalID
	})
	return sum
}

// =============================================================================
// CREDIT
// =============================================================================

type CustomerActivity struct {
	CustomerID         string
	Name               string
	TotalSales         decimal.Decimal
	TransactionCount   int
	PaymentReceived    decimal.Decimal
	AverageTransaction decimal.Decimal
}

type CreditSummary struct {
	Customers     []CustomerActivity // sorted by TotalSales descending, then ID
	TotalSales    decimal.Decimal
	TotalPayments decimal.Decimal
}

// AggregateCredit overlays payments onto per-customer sale totals. names
// maps customer ID to display name and may be nil. A customer appears only
// if it had at least one sale in the input; payments from customers with no
// sale are left out of both the rows and TotalPayments.
func AggregateCredit(sales []CreditSale, payments []CreditPayment, names map[string]string) CreditSummary {
	byID := make(map[string]*CustomerActivity)
	get := func(id string) *CustomerActivity {
		c, ok := byID[id]
		if !ok {
			c = &CustomerActivity{CustomerID: id, Name: names[id],
				TotalSales: decimal.Zero, PaymentReceived: decimal.Zero, AverageTransaction: decimal.Zero}
			byID[id] = c
		}
		return c
	}

	sum := CreditSummary{TotalSales: decimal.Zero, TotalPayments: decimal.Zero}
	for _, s := range sales {
		c := get(s.CustomerID)
		c.TotalSales = c.TotalSales.Add(s.Amount)
		c.TransactionCount++
		sum.TotalSales = sum.TotalSales.Add(s.Amount)
	}
	for _, p := range payments {
		c, ok := byID[p.CustomerID]
		if !ok {
			continue
		}
		c.PaymentReceived = c.PaymentReceived.Add(p.Amount)
		sum.TotalPayments = sum.TotalPayments.Add(p.Amount)
	}

	sum.Customers = make([]CustomerActivity, 0, len(byID))
	for _, c := range byID {
		if c.TransactionCount > 0 {
			c.AverageTransaction = c.TotalSales.Div(decimal.NewFromInt(int64(c.TransactionCount)))
		}
		sum.Customers = append(sum.Customers, *c)
	}
	sort.Slice(sum.Customers, func(i, j int) bool {
		a, b := sum.Customers[i], sum.Customers[j]
		if !a.TotalSales.Equal(b.TotalSales) {
			return a.TotalSales.GreaterThan(b.TotalSales)
		}
		return a.CustomerID < b.CustomerID
	})
	return sum
}

// =============================================================================
// CHEQUES
// =============================================================================

type ChequeLine struct {
	ID        string
	Number    string
	BankName  string
	PartyName string
	Amount    decimal.Decimal
	Status    ChequeStatus
}

type ChequeSummary struct {
	Cheques  []ChequeLine
	Total    decimal.Decimal
	ByStatus map[ChequeStatus]decimal.Decimal
}

func AggregateCheques(cheques []Cheque) ChequeSummary {
	sum := ChequeSummary{
		Cheques:  make([]ChequeLine, 0, len(cheques)),
		Total:    decimal.Zero,
		ByStatus: make(map[ChequeStatus]decimal.Decimal),
	}
	for _, c := range cheques {
		sum.Cheques = append(sum.Cheques, ChequeLine{
			ID: c.ID, Number: c.Number, BankName: c.BankName, PartyName: c.PartyName,
			Amount: c.Amount, Status: c.Status,
		})
		sum.Total = sum.Total.Add(c.Amount)
		sum.ByStatus[c.Status] = sum.ByStatus[c.Status].Add(c.Amount)
	}
	return sum
}

// =============================================================================
// EXPENSES, DEPOSITS, LOANS
// =============================================================================

// CategoryTotals is a total plus a breakdown by a string key.
type CategoryTotals struct {
	Total      decimal.Decimal
	Count      int
	ByCategory map[string]decimal.Decimal
}

func newCategoryTotals() CategoryTotals {
	return CategoryTotals{Total: decimal.Zero, ByCategory: make(map[string]decimal.Decimal)}
}

func (c *CategoryTotals) add(category string, amount decimal.Decimal) {
	c.Total = c.Total.Add(amount)
	c.Count++
	c.ByCategory[category] = c.ByCategory[category].Add(amount)
}

// Categories returns the breakdown keys in sorted order.
func (c CategoryTotals) Categories() []string {
	keys := make([]string, 0, len(c.ByCategory))
	for k := range c.ByCategory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AggregateExpenses totals by expense category. Blank categories become "OTHER".
func AggregateExpenses(expenses []Expense) CategoryTotals {
	sum := newCategoryTotals()
	for _, e := range expenses {
		cat := e.Category
		if cat == "" {
			cat = "OTHER"
		}
		sum.add(cat, e.Amount)
	}
	return sum
}

// AggregateDeposits totals by bank.
func AggregateDeposits(deposits []Deposit) CategoryTotals {
	sum := newCategoryTotals()
	for _, d := range deposits {
		sum.add(d.BankName, d.Amount)
	}
	return sum
}

// AggregateLoans totals by loan kind.
func AggregateLoans(loans []Loan) CategoryTotals {
	sum := newCategoryTotals()
	for _, l := range loans {
		sum.add(string(l.Kind), l.Amount)
	}
	return sum
}
