/*
Package settlement holds the non-meter money records of a station and the
reducers that total them for a report window.

KEY CONCEPTS:
  - PosBatch: card-terminal settlement for a shift, one entry per terminal
  - CreditSale / CreditPayment: credit-customer activity
  - Cheque, Expense, Deposit, Loan: one struct per category, no loose maps

AGGREGATORS (aggregate.go):
  Pure functions over a slice of records. Empty input gives a zeroed
  summary, never an error or a nil-panic.

RECORDING (recorder.go):
  A record that moves cash is inserted together with its safe ledger entry
  in one store transaction.

SEE ALSO:
  - safe/ledger.go: PostWith
  - report/aggregator.go: Runs the Source queries concurrently
*/
package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
)

// =============================================================================
// POS
// =============================================================================

type PosTerminalEntry struct {
	TerminalID       string
	TerminalName     string
	BankName         string
	Visa             decimal.Decimal
	Master           decimal.Decimal
	Amex             decimal.Decimal
	QR               decimal.Decimal
	TransactionCount int
}

// Total is the sum over every card network.
func (e PosTerminalEntry) Total() decimal.Decimal {
	return core.Sum(e.Visa, e.Master, e.Amex, e.QR)
}

type PosBatch struct {
	ID        string
	StationID string
	ShiftID   string
	Timestamp time.Time
	Entries   []PosTerminalEntry
	CreatedAt time.Time
}

func (b PosBatch) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range b.Entries {
		total = total.Add(e.Total())
	}
	return total
}

// =============================================================================
// CREDIT
// =============================================================================

type CreditSale struct {
	ID         string
	StationID  string
	CustomerID string
	ShiftID    string
	FuelID     string
	Liters     decimal.Decimal
	Amount     decimal.Decimal
	Timestamp  time.Time
	Reference  string
	CreatedAt  time.Time
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentCheque       PaymentMethod = "CHEQUE"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

type CreditPayment struct {
	ID         string
	StationID  string
	CustomerID string
	Amount     decimal.Decimal
	Method     PaymentMethod
	Timestamp  time.Time
	Reference  string
	ReceivedBy string
	CreatedAt  time.Time
}

// =============================================================================
// CHEQUES, EXPENSES, DEPOSITS, LOANS
// =============================================================================

type ChequeStatus string

const (
	ChequePending ChequeStatus = "PENDING"
	ChequeCleared ChequeStatus = "CLEARED"
	ChequeBounced ChequeStatus = "BOUNCED"
)

type Cheque struct {
	ID           string
	StationID    string
	Number       string
	BankName     string
	PartyName    string
	CustomerID   string
	Amount       decimal.Decimal
	Status       ChequeStatus
	ReceivedDate time.Time
	CreatedAt    time.Time
}

type Expense struct {
	ID          string
	StationID   string
	Category    string
	Amount      decimal.Decimal
	Timestamp   time.Time
	Description string
	PaidBy      string
	CreatedAt   time.Time
}

type Deposit struct {
	ID            string
	StationID     string
	BankName      string
	AccountNumber string
	Amount        decimal.Decimal
	Timestamp     time.Time
	Reference     string
	DepositedBy   string
	CreatedAt     time.Time
}

type LoanKind string

const (
	LoanExternal LoanKind = "EXTERNAL"
	LoanStaff    LoanKind = "STAFF"
)

type Loan struct {
	ID          string
	StationID   string
	Kind        LoanKind
	Borrower    string
	Amount      decimal.Decimal
	Timestamp   time.Time
	DueDate     *time.Time
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// Source is the read side used by report generation. Every method returns
// the station's records whose timestamp falls in the window.
type Source interface {
	PosBatches(ctx context.Context, stationID string, w core.Window) ([]PosBatch, error)
	CreditSales(ctx context.Context, stationID string, w core.Window) ([]CreditSale, error)
	CreditPayments(ctx context.Context, stationID string, w core.Window) ([]CreditPayment, error)
	Cheques(ctx context.Context, stationID string, w core.Window) ([]Cheque, error)
	Expenses(ctx context.Context, stationID string, w core.Window) ([]Expense, error)
	Deposits(ctx context.Context, stationID string, w core.Window) ([]Deposit, error)
	Loans(ctx context.Context, stationID string, w core.Window) ([]Loan, error)
}

// Writer inserts settlement records. A safe.Tx that also implements Writer
// lets a record commit together with its ledger entry.
type Writer interface {
	InsertPosBatch(ctx context.Context, b PosBatch) error
	InsertCheque(ctx context.Context, c Cheque) error
	InsertExpense(ctx context.Context, e Expense) error
	InsertDeposit(ctx context.Context, d Deposit) error
	InsertLoan(ctx context.Context, l Loan) error
}
