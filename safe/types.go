/*
Package safe implements the station cash-drawer ledger.

PURPOSE:
  Every cash movement in or out of a station's safe is recorded as an
  immutable Transaction carrying the balance before and after it. The
  running balance at any instant is obtained by replaying the log.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Corrections are new offsetting entries.
  2. ARITHMETIC: BalanceAfter == Effect.Apply(BalanceBefore, Amount) for every entry
  3. ORDER: Entries are ordered by (Timestamp, Seq). Seq is the per-safe
     insertion counter and breaks timestamp ties.
  4. CACHE: Safe.CurrentBalance equals the BalanceAfter of the last entry in that order.

SIGN TABLE:
  The effect of a transaction type lives in one map (signTable below).
  Income types credit, outflow types debit, OPENING_BALANCE resets the
  running total, ADJUSTMENT takes its direction from the caller. A type
  missing from the table cannot be posted.

BACKDATING:
  A posting may carry a timestamp earlier than existing entries. Its own
  BalanceBefore reflects every entry at or before that instant, but the
  later entries keep the balances they were written with. Ledger.Audit
  reports the resulting drift instead of rewriting history.

SEE ALSO:
  - ledger.go: Post, BalanceAsOf, Audit
  - store.go: Persistence interfaces
*/
package safe

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
)

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TransactionType string

const (
	TxOpeningBalance TransactionType = "OPENING_BALANCE"

	// Income
	TxCashFuelSales  TransactionType = "CASH_FUEL_SALES"
	TxPOSCardPayment TransactionType = "POS_CARD_PAYMENT"
	TxCreditPayment  TransactionType = "CREDIT_PAYMENT"
	TxChequeReceived TransactionType = "CHEQUE_RECEIVED"
	TxLoanRepaid     TransactionType = "LOAN_REPAID"
	TxOtherIncome    TransactionType = "OTHER_INCOME"

	// Outflow
	TxExpense             TransactionType = "EXPENSE"
	TxBankDeposit         TransactionType = "BANK_DEPOSIT"
	TxCashHandover        TransactionType = "CASH_HANDOVER"
	TxLoanGiven           TransactionType = "LOAN_GIVEN"
	TxSalaryPayment       TransactionType = "SALARY_PAYMENT"
	TxFuelDeliveryPayment TransactionType = "FUEL_DELIVERY_PAYMENT"

	TxAdjustment TransactionType = "ADJUSTMENT"
)

// Effect is what a transaction does to the running balance.
type Effect string

const (
	EffectCredit        Effect = "CREDIT" // balance + amount
	EffectDebit         Effect = "DEBIT"  // balance - amount
	EffectReset         Effect = "RESET"  // balance = amount
	EffectCallerDecides Effect = "CALLER" // table-only; resolved to Credit or Debit at post time
)

var signTable = map[TransactionType]Effect{
	TxOpeningBalance: EffectReset,

	TxCashFuelSales:  EffectCredit,
	TxPOSCardPayment: EffectCredit,
	TxCreditPayment:  EffectCredit,
	TxChequeReceived: EffectCredit,
	TxLoanRepaid:     EffectCredit,
	TxOtherIncome:    EffectCredit,

	TxExpense:             EffectDebit,
	TxBankDeposit:         EffectDebit,
	TxCashHandover:        EffectDebit,
	TxLoanGiven:           EffectDebit,
	TxSalaryPayment:       EffectDebit,
	TxFuelDeliveryPayment: EffectDebit,

	TxAdjustment: EffectCallerDecides,
}

// AllTransactionTypes lists every type, in declaration order.
func AllTransactionTypes() []TransactionType {
	return []TransactionType{
		TxOpeningBalance,
		TxCashFuelSales, TxPOSCardPayment, TxCreditPayment, TxChequeReceived, TxLoanRepaid, TxOtherIncome,
		TxExpense, TxBankDeposit, TxCashHandover, TxLoanGiven, TxSalaryPayment, TxFuelDeliveryPayment,
		TxAdjustment,
	}
}

// EffectOf returns the table entry for t.
func EffectOf(t TransactionType) (Effect, bool) {
	e, ok := signTable[t]
	return e, ok
}

// IsIncome reports whether t always adds to the balance.
func (t TransactionType) IsIncome() bool {
	return signTable[t] == EffectCredit
}

// ResolveEffect returns the concrete effect of posting t. direction is
// required for ADJUSTMENT and must agree with the table otherwise.
func ResolveEffect(t TransactionType, direction Effect) (Effect, error) {
	e, ok := signTable[t]
	if !ok {
		return "", core.Invalid("type", "unknown transaction type %q", t)
	}
	if e == EffectCallerDecides {
		if direction != EffectCredit && direction != EffectDebit {
			return "", core.Invalid("direction", "%s requires direction CREDIT or DEBIT", t)
		}
		return direction, nil
	}
	if direction != "" && direction != e {
		return "", core.Invalid("direction", "%s is always %s", t, e)
	}
	return e, nil
}

// Apply returns the balance after applying amount with this effect.
func (e Effect) Apply(balance, amount decimal.Decimal) decimal.Decimal {
	switch e {
	case EffectCredit:
		return balance.Add(amount)
	case EffectDebit:
		return balance.Sub(amount)
	case EffectReset:
		return amount
	}
	return balance
}

// =============================================================================
// SAFE & TRANSACTION
// =============================================================================

// Safe is one station's cash drawer. OpeningBalance seeds every replay and
// never changes; CurrentBalance is a cached projection of the log.
type Safe struct {
	ID             string
	StationID      string
	OpeningBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Link ties a ledger entry to the record that caused it.
type Link struct {
	Kind string `json:"kind"` // shift, pos_batch, credit_payment, expense, deposit, loan, cheque
	ID   string `json:"id"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID             string
	SafeID         string
	Seq            int64
	Type           TransactionType
	Effect         Effect
	Amount         decimal.Decimal
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	Timestamp      time.Time
	Description    string
	PerformedBy    string
	Links          []Link
	IdempotencyKey string
	CreatedAt      time.Time
}

// Verify checks the arithmetic invariant of a single entry.
func (t Transaction) Verify() error {
	expected := t.Effect.Apply(t.BalanceBefore, t.Amount)
	if !expected.Equal(t.BalanceAfter) {
		return &core.InvariantError{
			TransactionID: t.ID,
			Expected:      expected.String(),
			Actual:        t.BalanceAfter.String(),
		}
	}
	return nil
}

// Before reports whether t sorts before o in ledger order.
func (t Transaction) Before(o Transaction) bool {
	if !t.Timestamp.Equal(o.Timestamp) {
		return t.Timestamp.Before(o.Timestamp)
	}
	return t.Seq < o.Seq
}

// SortTransactions orders txs by (Timestamp, Seq) in place.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Before(txs[j]) })
}

// Replay returns the balance at asOf: seed, then every entry with
// Timestamp <= asOf applied in ledger order. txs must already be sorted.
func Replay(seed decimal.Decimal, txs []Transaction, asOf time.Time) decimal.Decimal {
	balance := seed
	for _, tx := range txs {
		if tx.Timestamp.After(asOf) {
			break
		}
		balance = tx.Effect.Apply(balance, tx.Amount)
	}
	return balance
}

// =============================================================================
// REQUESTS & RESULTS
// =============================================================================

// PostRequest is the input of Ledger.Post.
type PostRequest struct {
	SafeID         string
	Type           TransactionType
	Amount         decimal.Decimal
	Direction      Effect    // ADJUSTMENT only
	Timestamp      time.Time // zero means now
	Description    string
	PerformedBy    string
	Links          []Link
	IdempotencyKey string
}

// Drift is an entry whose stored BalanceBefore no longer matches a replay
// of the entries ordered before it. Produced by backdated postings.
type Drift struct {
	TransactionID string
	Seq           int64
	Timestamp     time.Time
	Stored        decimal.Decimal
	Replayed      decimal.Decimal
}

// AuditResult summarizes a full walk of one safe's ledger.
type AuditResult struct {
	SafeID           string
	Entries          int
	Drifts           []Drift
	ArithmeticErrors []string // IDs of entries failing Verify
	CachedBalance    decimal.Decimal
	LatestStored     decimal.Decimal // BalanceAfter of the last entry
	ReplayedBalance  decimal.Decimal
}

// CacheConsistent reports whether Safe.CurrentBalance matches the last entry.
func (r AuditResult) CacheConsistent() bool {
	return r.CachedBalance.Equal(r.LatestStored)
}

// Clean reports whether nothing was found.
func (r AuditResult) Clean() bool {
	return len(r.Drifts) == 0 && len(r.ArithmeticErrors) == 0 && r.CacheConsistent()
}
