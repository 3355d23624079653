package sqldb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/report"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/station"
)

// =============================================================================
// FIXTURE
// =============================================================================

var businessDay = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal { v := d(s); return &v }

func tp(t time.Time) *time.Time { return &t }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTopology(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveStation(ctx, station.Station{ID: "st-1", Name: "Kandy Road", Active: true, CreatedAt: businessDay}))
	require.NoError(t, s.SaveFuel(ctx, station.Fuel{ID: "p92", Name: "Petrol 92", Category: station.FuelPetrol}))
	require.NoError(t, s.SaveTank(ctx, station.Tank{ID: "tk-1", StationID: "st-1", FuelID: "p92", Capacity: d("13500"), CurrentLevel: d("8000")}))
	require.NoError(t, s.SavePump(ctx, station.Pump{ID: "pm-1", StationID: "st-1", Number: "1"}))
	require.NoError(t, s.SaveNozzle(ctx, station.Nozzle{ID: "nz-1", PumpID: "pm-1", TankID: "tk-1"}))
	require.NoError(t, s.AddPrice(ctx, station.Price{
		ID: "pr-1", StationID: "st-1", FuelID: "p92", Price: d("385"),
		EffectiveDate: businessDay.AddDate(0, 0, -3), IsActive: true, CreatedAt: businessDay.AddDate(0, 0, -3),
	}))
}

// =============================================================================
// PLUMBING
// =============================================================================

func TestRebind(t *testing.T) {
	pg := conn{dialect: Postgres}
	lite := conn{dialect: SQLite}

	q := `SELECT id FROM safes WHERE id = ? AND station_id = ?`
	assert.Equal(t, `SELECT id FROM safes WHERE id = $1 AND station_id = $2`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))

	assert.Equal(t, q+" FOR UPDATE", pg.forUpdate(q))
	assert.Equal(t, q, lite.forUpdate(q))
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	early := formatTime(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	late := formatTime(time.Date(2025, 3, 10, 10, 0, 0, 5, time.UTC))
	fromOtherZone := formatTime(time.Date(2025, 3, 10, 14, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)))

	assert.Len(t, early, len(late))
	assert.Less(t, early, late)
	assert.Less(t, fromOtherZone, early, "14:00 +05:30 is 08:30 UTC")
}

// =============================================================================
// CATALOG
// =============================================================================

func TestCatalog_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedTopology(t, s)
	ctx := context.Background()

	st, err := s.GetStation(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, "Kandy Road", st.Name)
	assert.Equal(t, int32(2), st.Decimals())

	tank, err := s.GetTank(ctx, "tk-1")
	require.NoError(t, err)
	assert.True(t, tank.Capacity.Equal(d("13500")))

	// Upsert replaces
	require.NoError(t, s.SaveTank(ctx, station.Tank{ID: "tk-1", StationID: "st-1", FuelID: "p92", Capacity: d("13500"), CurrentLevel: d("4200")}))
	tank, err = s.GetTank(ctx, "tk-1")
	require.NoError(t, err)
	assert.True(t, tank.CurrentLevel.Equal(d("4200")))

	_, err = s.GetNozzle(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPriceHistory_OrderedAndAppendOnly(t *testing.T) {
	s := newTestStore(t)
	seedTopology(t, s)
	ctx := context.Background()

	// GIVEN: a later price inserted before an earlier one
	require.NoError(t, s.AddPrice(ctx, station.Price{ID: "pr-3", StationID: "st-1", FuelID: "p92", Price: d("399"), EffectiveDate: businessDay.Add(12 * time.Hour), CreatedAt: businessDay}))
	require.NoError(t, s.AddPrice(ctx, station.Price{ID: "pr-2", StationID: "st-1", FuelID: "p92", Price: d("390"), EffectiveDate: businessDay.AddDate(0, 0, -1), CreatedAt: businessDay}))

	// WHEN
	history, err := s.PriceHistory(ctx, "st-1", "p92")

	// THEN
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"pr-1", "pr-2", "pr-3"}, []string{history[0].ID, history[1].ID, history[2].ID})

	err = s.AddPrice(ctx, station.Price{ID: "pr-2", StationID: "st-1", FuelID: "p92", Price: d("1"), EffectiveDate: businessDay})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	price, ok, err := station.NewResolver(s).Resolve(ctx, "p92", "st-1", businessDay.Add(11*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(d("390")))
}

func TestClosedShifts_WithAssignments(t *testing.T) {
	s := newTestStore(t)
	seedTopology(t, s)
	ctx := context.Background()

	end := businessDay.Add(18 * time.Hour)
	require.NoError(t, s.SaveShift(ctx, station.Shift{
		ID: "sh-1", StationID: "st-1", StartTime: businessDay.Add(10 * time.Hour), EndTime: tp(end),
		Status: station.ShiftClosed,
		Declared: station.DeclaredTender{Cash: d("96250"), Card: decimal.Zero, Credit: decimal.Zero, Cheque: decimal.Zero, TransactionCount: 12},
		ShopSales: d("0"),
		Assignments: []station.ShiftAssignment{
			{ID: "a-1", ShiftID: "sh-1", NozzleID: "nz-1", PumperID: "p-7", StartMeterReading: d("1000"), EndMeterReading: dp("1250"), Status: station.AssignmentClosed},
			{ID: "a-2", ShiftID: "sh-1", NozzleID: "nz-1", StartMeterReading: d("1250"), Status: station.AssignmentActive},
		},
	}))
	require.NoError(t, s.SaveShift(ctx, station.Shift{
		ID: "sh-open", StationID: "st-1", StartTime: businessDay.Add(19 * time.Hour),
		Status: station.ShiftOpen, Declared: station.DeclaredTender{Cash: decimal.Zero, Card: decimal.Zero, Credit: decimal.Zero, Cheque: decimal.Zero}, ShopSales: decimal.Zero,
	}))
	require.NoError(t, s.SaveShift(ctx, station.Shift{
		ID: "sh-prev", StationID: "st-1", StartTime: businessDay.Add(-10 * time.Hour), EndTime: tp(businessDay.Add(-2 * time.Hour)),
		Status: station.ShiftClosed, Declared: station.DeclaredTender{Cash: decimal.Zero, Card: decimal.Zero, Credit: decimal.Zero, Cheque: decimal.Zero}, ShopSales: decimal.Zero,
	}))

	shifts, err := s.ClosedShifts(ctx, "st-1", core.Day(businessDay))

	require.NoError(t, err)
	require.Len(t, shifts, 1, "open shift and previous day are excluded")
	sh := shifts[0]
	assert.Equal(t, "sh-1", sh.ID)
	require.NotNil(t, sh.EndTime)
	assert.True(t, sh.EndTime.Equal(end))
	assert.Equal(t, 12, sh.Declared.TransactionCount)
	require.Len(t, sh.Assignments, 2)
	assert.True(t, sh.Assignments[0].Reconcilable())
	assert.Equal(t, "p-7", sh.Assignments[0].PumperID)
	assert.Nil(t, sh.Assignments[1].EndMeterReading)

	// Re-saving replaces the assignment set.
	sh.Assignments = sh.Assignments[:1]
	require.NoError(t, s.SaveShift(ctx, sh))
	shifts, err = s.ClosedShifts(ctx, "st-1", core.Day(businessDay))
	require.NoError(t, err)
	assert.Len(t, shifts[0].Assignments, 1)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_PostsAndReplays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ledger := safe.NewLedger(s)

	sf, err := ledger.Open(ctx, "st-1", d("10000"))
	require.NoError(t, err)

	_, err = ledger.Open(ctx, "st-1", d("1"))
	assert.ErrorIs(t, err, core.ErrAlreadyExists, "one safe per station")

	post := func(typ safe.TransactionType, amount string, at time.Time, key string) (safe.Transaction, error) {
		return ledger.Post(ctx, safe.PostRequest{
			SafeID: sf.ID, Type: typ, Amount: d(amount), Timestamp: at, IdempotencyKey: key,
			Links: []safe.Link{{Kind: "shift", ID: "sh-1"}},
		})
	}

	_, err = post(safe.TxCashFuelSales, "96250", businessDay.Add(18*time.Hour), "sh-1-cash")
	require.NoError(t, err)
	_, err = post(safe.TxExpense, "1500", businessDay.Add(19*time.Hour), "")
	require.NoError(t, err)
	_, err = post(safe.TxBankDeposit, "50000", businessDay.Add(20*time.Hour), "")
	require.NoError(t, err)

	_, err = post(safe.TxCashFuelSales, "96250", businessDay.Add(18*time.Hour), "sh-1-cash")
	assert.ErrorIs(t, err, core.ErrDuplicateIdempotencyKey)

	got, err := s.GetSafe(ctx, sf.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(d("54750")))

	txs, err := ledger.Transactions(ctx, sf.ID, core.Day(businessDay))
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{txs[0].Seq, txs[1].Seq, txs[2].Seq})
	assert.Equal(t, []safe.Link{{Kind: "shift", ID: "sh-1"}}, txs[0].Links)
	assert.True(t, txs[1].BalanceBefore.Equal(d("106250")))

	asOf, err := ledger.BalanceAsOf(ctx, sf.ID, businessDay.Add(19*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.True(t, asOf.Equal(d("104750")))

	audit, err := ledger.Audit(ctx, sf.ID)
	require.NoError(t, err)
	assert.Empty(t, audit.Drifts)
	assert.Empty(t, audit.ArithmeticErrors)
	assert.True(t, audit.ReplayedBalance.Equal(d("54750")))
}

func TestLedger_ConcurrentPostsSerialize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ledger := safe.NewLedger(s)
	sf, err := ledger.Open(ctx, "st-1", decimal.Zero)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Post(ctx, safe.PostRequest{SafeID: sf.ID, Type: safe.TxOtherIncome, Amount: d("5")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetSafe(ctx, sf.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(d("100")))

	audit, err := ledger.Audit(ctx, sf.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, audit.Entries)
	assert.Empty(t, audit.Drifts)
}

// =============================================================================
// SETTLEMENT AND CREDIT
// =============================================================================

func TestSettlementRecords_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ledger := safe.NewLedger(s)
	_, err := ledger.Open(ctx, "st-1", d("10000"))
	require.NoError(t, err)
	rec := settlement.NewRecorder(ledger)
	at := businessDay.Add(15 * time.Hour)

	_, err = rec.RecordPOSBatch(ctx, settlement.PosBatch{StationID: "st-1", Timestamp: at, Entries: []settlement.PosTerminalEntry{
		{TerminalID: "T1", BankName: "HNB", Visa: d("1000"), Master: d("250.50"), TransactionCount: 4},
		{TerminalID: "T2", QR: d("300"), TransactionCount: 1},
	}}, settlement.PostOptions{PostToSafe: true})
	require.NoError(t, err)
	_, err = rec.RecordCheque(ctx, settlement.Cheque{StationID: "st-1", Number: "004512", Amount: d("3000"), ReceivedDate: at}, settlement.PostOptions{})
	require.NoError(t, err)
	_, err = rec.RecordExpense(ctx, settlement.Expense{StationID: "st-1", Category: "UTILITIES", Amount: d("1500"), Timestamp: at, PaidBy: "manager"}, settlement.PostOptions{PostToSafe: true})
	require.NoError(t, err)
	_, err = rec.RecordDeposit(ctx, settlement.Deposit{StationID: "st-1", BankName: "BOC", Amount: d("5000"), Timestamp: at}, settlement.PostOptions{})
	require.NoError(t, err)
	due := at.AddDate(0, 1, 0)
	_, err = rec.RecordLoan(ctx, settlement.Loan{StationID: "st-1", Kind: settlement.LoanStaff, Borrower: "attendant", Amount: d("2000"), Timestamp: at, DueDate: &due}, settlement.PostOptions{})
	require.NoError(t, err)

	w := core.Day(businessDay)
	batches, err := s.PosBatches(ctx, "st-1", w)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Entries, 2)
	assert.Equal(t, "T1", batches[0].Entries[0].TerminalID)
	assert.Equal(t, "HNB", batches[0].Entries[0].BankName)
	assert.True(t, batches[0].Total().Equal(d("1550.50")))

	cheques, err := s.Cheques(ctx, "st-1", w)
	require.NoError(t, err)
	require.Len(t, cheques, 1)
	assert.Equal(t, settlement.ChequePending, cheques[0].Status)

	expenses, err := s.Expenses(ctx, "st-1", w)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "manager", expenses[0].PaidBy)

	deposits, err := s.Deposits(ctx, "st-1", w)
	require.NoError(t, err)
	assert.Len(t, deposits, 1)

	loans, err := s.Loans(ctx, "st-1", w)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	require.NotNil(t, loans[0].DueDate)
	assert.True(t, loans[0].DueDate.Equal(due))

	sf, err := s.SafeByStation(ctx, "st-1")
	require.NoError(t, err)
	assert.True(t, sf.CurrentBalance.Equal(d("10050.50")), "10000 + 1550.50 - 1500")

	// Outside the window
	empty, err := s.Expenses(ctx, "st-1", core.Day(businessDay.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCredit_SaleAndPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ledger := safe.NewLedger(s)
	_, err := ledger.Open(ctx, "st-1", d("1000"))
	require.NoError(t, err)
	svc := credit.NewService(s, ledger)

	cust, err := svc.CreateCustomer(ctx, credit.Customer{StationID: "st-1", Name: "Lanka Transport", Phone: "0771234567", CreditLimit: d("10000")})
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, settlement.CreditSale{CustomerID: cust.ID, FuelID: "p92", Liters: d("20"), Amount: d("7700"), Timestamp: businessDay.Add(9 * time.Hour)})
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, settlement.CreditSale{CustomerID: cust.ID, Liters: d("10"), Amount: d("3850")})
	assert.ErrorIs(t, err, core.ErrCreditLimitExceeded)

	updated, entry, err := svc.RecordPayment(ctx, settlement.CreditPayment{CustomerID: cust.ID, Amount: d("2000"), Timestamp: businessDay.Add(10 * time.Hour)},
		credit.PaymentOptions{PostToSafe: true})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, updated.CurrentBalance.Equal(d("5700")))
	assert.True(t, entry.BalanceAfter.Equal(d("3000")))

	stored, err := s.GetCustomer(ctx, cust.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentBalance.Equal(d("5700")))
	assert.Equal(t, "0771234567", stored.Phone)
	assert.True(t, stored.Active)

	sales, err := s.CreditSales(ctx, "st-1", core.Day(businessDay))
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.True(t, sales[0].Liters.Equal(d("20")))

	payments, err := s.CreditPayments(ctx, "st-1", core.Day(businessDay))
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, settlement.PaymentCash, payments[0].Method)

	_, err = svc.CreateCustomer(ctx, credit.Customer{ID: cust.ID, StationID: "st-1", Name: "Again"})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	list, err := s.ListCustomers(ctx, "st-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx safe.Tx) error {
		w := tx.(settlement.Writer)
		require.NoError(t, w.InsertExpense(ctx, settlement.Expense{ID: "e-1", StationID: "st-1", Category: "OTHER", Amount: d("10"), Timestamp: businessDay, CreatedAt: businessDay}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	expenses, err := s.Expenses(ctx, "st-1", core.Day(businessDay))
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

// =============================================================================
// END TO END
// =============================================================================

func TestReport_OverSQLite(t *testing.T) {
	// GIVEN: one closed shift selling 250 L at 385, declared 1000 short
	s := newTestStore(t)
	seedTopology(t, s)
	ctx := context.Background()
	ledger := safe.NewLedger(s)
	_, err := ledger.Open(ctx, "st-1", d("5000"))
	require.NoError(t, err)

	require.NoError(t, s.SaveShift(ctx, station.Shift{
		ID: "sh-1", StationID: "st-1", StartTime: businessDay.Add(10 * time.Hour), EndTime: tp(businessDay.Add(18 * time.Hour)),
		Status:    station.ShiftClosed,
		Declared:  station.DeclaredTender{Cash: d("95250"), Card: decimal.Zero, Credit: decimal.Zero, Cheque: decimal.Zero},
		ShopSales: decimal.Zero,
		Assignments: []station.ShiftAssignment{
			{ID: "a-1", ShiftID: "sh-1", NozzleID: "nz-1", StartMeterReading: d("1000"), EndMeterReading: dp("1250"), Status: station.AssignmentClosed},
		},
	}))

	agg := report.NewAggregator(report.Deps{
		Catalog:     s,
		Shifts:      s,
		Prices:      s,
		Settlements: s,
		Customers:   credit.NewService(s, ledger),
		Cash:        ledger,
	})

	// WHEN
	r, err := agg.Generate(ctx, "st-1", core.Day(businessDay))

	// THEN
	require.NoError(t, err)
	assert.Empty(t, r.Degraded)
	assert.True(t, r.PetrolSales.Equal(d("96250")))
	assert.True(t, r.TotalVariance.Equal(d("1000")))
	assert.Equal(t, report.VarianceSuspicious, r.VarianceStatus)
	require.NotNil(t, r.CashPosition)
}
