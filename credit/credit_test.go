package credit_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/store/memory"
)

var at = time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	store   *memory.Store
	ledger  *safe.Ledger
	svc     *credit.Service
	safe    *safe.Safe
	fleetID string
}

func setup(t *testing.T, limit int64) fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	ledger := safe.NewLedger(st)
	s, err := ledger.Open(ctx, "st-1", amt(1000))
	require.NoError(t, err)

	svc := credit.NewService(st, ledger)
	c, err := svc.CreateCustomer(ctx, credit.Customer{StationID: "st-1", Name: "Lanka Transport", CreditLimit: amt(limit)})
	require.NoError(t, err)
	return fixture{store: st, ledger: ledger, svc: svc, safe: s, fleetID: c.ID}
}

func TestCreateCustomer(t *testing.T) {
	f := setup(t, 50000)
	ctx := context.Background()

	c, err := f.svc.GetCustomer(ctx, f.fleetID)
	require.NoError(t, err)
	assert.True(t, c.Active)
	assert.True(t, c.CurrentBalance.IsZero())

	_, err = f.svc.CreateCustomer(ctx, credit.Customer{StationID: "st-1"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.svc.CreateCustomer(ctx, credit.Customer{StationID: "st-1", Name: "x", CreditLimit: amt(-1)})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	names, err := f.svc.CustomerNames(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{f.fleetID: "Lanka Transport"}, names)
}

func TestRecordSale_RaisesBalance(t *testing.T) {
	// GIVEN: a customer with a 50,000 limit
	f := setup(t, 50000)
	ctx := context.Background()

	// WHEN
	c, err := f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: f.fleetID, Amount: amt(12000), Timestamp: at})

	// THEN
	require.NoError(t, err)
	assert.True(t, c.CurrentBalance.Equal(amt(12000)))
	avail, limited := c.Available()
	assert.True(t, limited)
	assert.True(t, avail.Equal(amt(38000)))

	sales, err := f.store.CreditSales(ctx, "st-1", core.Day(at))
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "st-1", sales[0].StationID, "station taken from the customer")
}

func TestRecordSale_LimitExceeded(t *testing.T) {
	f := setup(t, 10000)
	ctx := context.Background()

	_, err := f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: f.fleetID, Amount: amt(8000), Timestamp: at})
	require.NoError(t, err)

	_, err = f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: f.fleetID, Amount: amt(2001), Timestamp: at})
	assert.ErrorIs(t, err, core.ErrCreditLimitExceeded)

	c, _ := f.svc.GetCustomer(ctx, f.fleetID)
	assert.True(t, c.CurrentBalance.Equal(amt(8000)), "rejected sale left no trace")
	sales, _ := f.store.CreditSales(ctx, "st-1", core.Day(at))
	assert.Len(t, sales, 1)
}

func TestRecordSale_ZeroLimitIsUnlimited(t *testing.T) {
	f := setup(t, 0)
	c, err := f.svc.RecordSale(context.Background(), settlement.CreditSale{CustomerID: f.fleetID, Amount: amt(1_000_000)})
	require.NoError(t, err)
	_, limited := c.Available()
	assert.False(t, limited)
}

func TestRecordSale_Validation(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	_, err := f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: f.fleetID, Amount: amt(0)})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: "ghost", Amount: amt(10)})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecordSale_InactiveCustomer(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	err := f.store.WithTx(ctx, func(tx safe.Tx) error {
		return tx.(credit.Writer).CreateCustomer(ctx, credit.Customer{ID: "old", StationID: "st-1", Name: "Closed Account"})
	})
	require.NoError(t, err)

	_, err = f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: "old", Amount: amt(10)})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRecordPayment_CashPostsToSafe(t *testing.T) {
	// GIVEN: a customer owing 12,000
	f := setup(t, 0)
	ctx := context.Background()
	_, err := f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: f.fleetID, Amount: amt(12000), Timestamp: at})
	require.NoError(t, err)

	// WHEN: 5,000 is paid in cash
	c, tx, err := f.svc.RecordPayment(ctx, settlement.CreditPayment{
		CustomerID: f.fleetID, Amount: amt(5000), Timestamp: at, ReceivedBy: "cashier",
	}, credit.PaymentOptions{PostToSafe: true})

	// THEN: the balance drops and the safe gains a CREDIT_PAYMENT
	require.NoError(t, err)
	assert.True(t, c.CurrentBalance.Equal(amt(7000)))
	require.NotNil(t, tx)
	assert.Equal(t, safe.TxCreditPayment, tx.Type)
	assert.Equal(t, "credit_payment", tx.Links[0].Kind)
	assert.True(t, tx.BalanceAfter.Equal(amt(6000)))

	payments, _ := f.store.CreditPayments(ctx, "st-1", core.Day(at))
	require.Len(t, payments, 1)
	assert.Equal(t, settlement.PaymentCash, payments[0].Method)
	assert.Equal(t, tx.Links[0].ID, payments[0].ID)
}

func TestRecordPayment_BankTransferSkipsSafe(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	c, tx, err := f.svc.RecordPayment(ctx, settlement.CreditPayment{
		CustomerID: f.fleetID, Amount: amt(300), Method: settlement.PaymentBankTransfer, Timestamp: at,
	}, credit.PaymentOptions{PostToSafe: true})

	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.True(t, c.CurrentBalance.Equal(amt(-300)), "overpayment is allowed")

	s, _ := f.ledger.GetSafe(ctx, f.safe.ID)
	assert.True(t, s.CurrentBalance.Equal(amt(1000)))
}

func TestRecordPayment_DuplicateKeyLeavesBalance(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	opts := credit.PaymentOptions{PostToSafe: true, IdempotencyKey: "pay-1"}
	p := settlement.CreditPayment{CustomerID: f.fleetID, Amount: amt(100), Timestamp: at}

	_, _, err := f.svc.RecordPayment(ctx, p, opts)
	require.NoError(t, err)
	_, _, err = f.svc.RecordPayment(ctx, p, opts)
	assert.ErrorIs(t, err, core.ErrDuplicateIdempotencyKey)

	c, _ := f.svc.GetCustomer(ctx, f.fleetID)
	assert.True(t, c.CurrentBalance.Equal(amt(-100)))
}

func TestRecordSaleAndPayment_RejectForeignStation(t *testing.T) {
	// GIVEN: a customer of st-1
	f := setup(t, 0)
	ctx := context.Background()

	// WHEN: both requests claim st-2
	_, saleErr := f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: f.fleetID, StationID: "st-2", Amount: amt(500), Timestamp: at})
	_, tx, payErr := f.svc.RecordPayment(ctx, settlement.CreditPayment{CustomerID: f.fleetID, StationID: "st-2", Amount: amt(500), Timestamp: at},
		credit.PaymentOptions{PostToSafe: true})

	// THEN: nothing is recorded anywhere
	var ve *core.ValidationError
	require.ErrorAs(t, saleErr, &ve)
	assert.Equal(t, "stationId", ve.Field)
	require.ErrorAs(t, payErr, &ve)
	assert.Equal(t, "stationId", ve.Field)
	assert.Nil(t, tx)

	c, _ := f.svc.GetCustomer(ctx, f.fleetID)
	assert.True(t, c.CurrentBalance.IsZero())
	for _, stationID := range []string{"st-1", "st-2"} {
		sales, _ := f.store.CreditSales(ctx, stationID, core.Day(at))
		payments, _ := f.store.CreditPayments(ctx, stationID, core.Day(at))
		assert.Empty(t, sales)
		assert.Empty(t, payments)
	}
	s, _ := f.ledger.GetSafe(ctx, f.safe.ID)
	assert.True(t, s.CurrentBalance.Equal(amt(1000)))

	// a matching station is accepted
	_, err := f.svc.RecordSale(ctx, settlement.CreditSale{CustomerID: f.fleetID, StationID: "st-1", Amount: amt(500), Timestamp: at})
	assert.NoError(t, err)
}
