package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregatePOS_SumsPerTerminal(t *testing.T) {
	// GIVEN: two batches touching terminal T2 twice
	batches := []PosBatch{
		{ID: "b1", Entries: []PosTerminalEntry{
			{TerminalID: "T2", TerminalName: "Forecourt", BankName: "BOC", Visa: d("1000"), Master: d("500"), TransactionCount: 3},
			{TerminalID: "T1", TerminalName: "Shop", BankName: "HNB", QR: d("250.50"), TransactionCount: 1},
		}},
		{ID: "b2", Entries: []PosTerminalEntry{
			{TerminalID: "T2", Amex: d("300"), TransactionCount: 2},
		}},
	}

	// WHEN
	sum := AggregatePOS(batches)

	// THEN
	require.Len(t, sum.Terminals, 2)
	assert.Equal(t, "T1", sum.Terminals[0].TerminalID, "sorted by terminal ID")
	t2 := sum.Terminals[1]
	assert.Equal(t, "Forecourt", t2.TerminalName)
	assert.True(t, t2.Total.Equal(d("1800")))
	assert.True(t, t2.Amex.Equal(d("300")))
	assert.Equal(t, 5, t2.TransactionCount)
	assert.True(t, sum.Total.Equal(d("2050.50")))
	assert.Equal(t, 6, sum.TransactionCount)
}

func TestAggregatePOS_Empty(t *testing.T) {
	sum := AggregatePOS(nil)
	assert.Empty(t, sum.Terminals)
	assert.True(t, sum.Total.IsZero())
}

func TestAggregateCredit_OverlaysPayments(t *testing.T) {
	sales := []CreditSale{
		{CustomerID: "c1", Amount: d("3000")},
		{CustomerID: "c1", Amount: d("1000")},
		{CustomerID: "c2", Amount: d("5000")},
	}
	payments := []CreditPayment{
		{CustomerID: "c1", Amount: d("2500")},
		{CustomerID: "c2", Amount: d("100")},
	}

	sum := AggregateCredit(sales, payments, map[string]string{"c1": "Lanka Transport"})

	require.Len(t, sum.Customers, 2)
	assert.Equal(t, "c2", sum.Customers[0].CustomerID, "largest sales first")
	assert.Equal(t, "c1", sum.Customers[1].CustomerID)

	c1 := sum.Customers[1]
	assert.Equal(t, "Lanka Transport", c1.Name)
	assert.Equal(t, 2, c1.TransactionCount)
	assert.True(t, c1.AverageTransaction.Equal(d("2000")))
	assert.True(t, c1.PaymentReceived.Equal(d("2500")))

	c2 := sum.Customers[0]
	assert.Empty(t, c2.Name)
	assert.True(t, c2.PaymentReceived.Equal(d("100")))

	assert.True(t, sum.TotalSales.Equal(d("9000")))
	assert.True(t, sum.TotalPayments.Equal(d("2600")))
}

func TestAggregateCredit_PaymentOnlyCustomerIsOmitted(t *testing.T) {
	// GIVEN: c-pay-only settled an older balance but bought nothing today
	sales := []CreditSale{{CustomerID: "c1", Amount: d("4000")}}
	payments := []CreditPayment{
		{CustomerID: "c-pay-only", Amount: d("5000")},
		{CustomerID: "c1", Amount: d("1000")},
	}

	// WHEN
	sum := AggregateCredit(sales, payments, nil)
	none := AggregateCredit(nil, payments[:1], nil)

	// THEN
	require.Len(t, sum.Customers, 1)
	assert.Equal(t, "c1", sum.Customers[0].CustomerID)
	assert.True(t, sum.TotalPayments.Equal(d("1000")), "totals match the listed rows")

	assert.Empty(t, none.Customers)
	assert.True(t, none.TotalPayments.IsZero())
}

func TestAggregateCheques_ByStatus(t *testing.T) {
	sum := AggregateCheques([]Cheque{
		{ID: "q1", Amount: d("100"), Status: ChequePending},
		{ID: "q2", Amount: d("250"), Status: ChequeCleared},
		{ID: "q3", Amount: d("50"), Status: ChequePending},
	})
	assert.Len(t, sum.Cheques, 3)
	assert.True(t, sum.Total.Equal(d("400")))
	assert.True(t, sum.ByStatus[ChequePending].Equal(d("150")))
	assert.True(t, sum.ByStatus[ChequeCleared].Equal(d("250")))
	_, bounced := sum.ByStatus[ChequeBounced]
	assert.False(t, bounced)
}

func TestAggregateExpensesDepositsLoans(t *testing.T) {
	exp := AggregateExpenses([]Expense{
		{Category: "UTILITIES", Amount: d("1200")},
		{Category: "", Amount: d("300")},
		{Category: "UTILITIES", Amount: d("800")},
	})
	assert.True(t, exp.Total.Equal(d("2300")))
	assert.Equal(t, 3, exp.Count)
	assert.Equal(t, []string{"OTHER", "UTILITIES"}, exp.Categories())
	assert.True(t, exp.ByCategory["UTILITIES"].Equal(d("2000")))

	dep := AggregateDeposits([]Deposit{
		{BankName: "BOC", Amount: d("50000")},
		{BankName: "HNB", Amount: d("10000")},
		{BankName: "BOC", Amount: d("5000")},
	})
	assert.True(t, dep.ByCategory["BOC"].Equal(d("55000")))
	assert.True(t, dep.Total.Equal(d("65000")))

	loans := AggregateLoans([]Loan{
		{Kind: LoanStaff, Amount: d("2000")},
		{Kind: LoanExternal, Amount: d("10000")},
	})
	assert.True(t, loans.ByCategory[string(LoanStaff)].Equal(d("2000")))
	assert.True(t, loans.Total.Equal(d("12000")))
}

func TestPosBatchTotal(t *testing.T) {
	b := PosBatch{Entries: []PosTerminalEntry{
		{Visa: d("1.10"), Master: d("2.20"), Amex: d("3.30"), QR: d("4.40")},
		{Visa: d("10")},
	}}
	assert.True(t, b.Total().Equal(d("21")))
}
