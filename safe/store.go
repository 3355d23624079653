package safe

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Persistence for safes and their ledgers (append-only)
// =============================================================================

// Store is the read side. Transactions are returned in ledger order.
type Store interface {
	GetSafe(ctx context.Context, safeID string) (*Safe, error)
	SafeByStation(ctx context.Context, stationID string) (*Safe, error)
	// ListSafes returns every safe ordered by station.
	ListSafes(ctx context.Context) ([]Safe, error)
	LoadTransactions(ctx context.Context, safeID string) ([]Transaction, error)
	// LoadTransactionsInRange returns entries with from <= Timestamp <= to.
	LoadTransactionsInRange(ctx context.Context, safeID string, from, to time.Time) ([]Transaction, error)
}

// Tx is the write side, only reachable inside WithTx. Implementations may
// also satisfy the writer interfaces of other packages (settlement.Writer,
// credit.Writer) so that a posting and its source record commit together.
type Tx interface {
	// LockSafe loads the safe and holds it for the rest of the transaction.
	// Returns core.ErrNotFound for an unknown safe.
	LockSafe(ctx context.Context, safeID string) (*Safe, error)
	LoadTransactions(ctx context.Context, safeID string) ([]Transaction, error)
	// Append inserts an entry. Returns core.ErrDuplicateIdempotencyKey when
	// the key is already taken.
	Append(ctx context.Context, tx Transaction) error
	SetCurrentBalance(ctx context.Context, safeID string, balance decimal.Decimal, at time.Time) error
	// CreateSafe returns core.ErrAlreadyExists when the station has a safe.
	CreateSafe(ctx context.Context, s Safe) error
}

// TxStore adds atomic writes. fn's error rolls everything back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Tx) error) error
}
