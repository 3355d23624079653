package safe

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger posts to and reads from safe ledgers.
//
// Postings for one safe are serialized twice: by an in-process keyed mutex
// and by the store's own lock (LockSafe), so two processes sharing a
// PostgreSQL database cannot interleave their read-then-write either.
type Ledger struct {
	store TxStore
	locks keyedMutex

	Now   func() time.Time
	NewID func() string
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{
		store: store,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Store returns the underlying store.
func (l *Ledger) Store() TxStore { return l.store }

// Open creates the safe for a station. A station has at most one safe.
func (l *Ledger) Open(ctx context.Context, stationID string, openingBalance decimal.Decimal) (*Safe, error) {
	if stationID == "" {
		return nil, core.Invalid("stationId", "required")
	}
	if openingBalance.IsNegative() {
		return nil, &core.ValidationError{Field: "openingBalance", Message: "must not be negative", Err: core.ErrInvalidAmount}
	}

	now := l.Now()
	s := Safe{
		ID:             l.NewID(),
		StationID:      stationID,
		OpeningBalance: openingBalance,
		CurrentBalance: openingBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := l.store.WithTx(ctx, func(tx Tx) error {
		return tx.CreateSafe(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Ledger] Opened safe %s for station %s with %s", s.ID, stationID, openingBalance)
	return &s, nil
}

// Post appends one entry to a safe's ledger and refreshes the cached balance.
func (l *Ledger) Post(ctx context.Context, req PostRequest) (Transaction, error) {
	return l.PostWith(ctx, req, nil)
}

// PostWith is Post plus a callback run inside the same store transaction.
// An error from also rolls back the posting. Used to insert the source
// record (credit payment, POS batch, expense...) together with its entry.
func (l *Ledger) PostWith(ctx context.Context, req PostRequest, also func(Tx, Transaction) error) (Transaction, error) {
	effect, err := validatePost(req)
	if err != nil {
		return Transaction{}, err
	}

	now := l.Now()
	ts := req.Timestamp
	if ts.IsZero() {
		ts = now
	}

	unlock := l.locks.lock(req.SafeID)
	defer unlock()

	var posted Transaction
	err = l.store.WithTx(ctx, func(tx Tx) error {
		s, err := tx.LockSafe(ctx, req.SafeID)
		if err != nil {
			return fmt.Errorf("safe %s: %w", req.SafeID, err)
		}

		history, err := tx.LoadTransactions(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("load ledger for safe %s: %w", s.ID, err)
		}
		SortTransactions(history)

		before := Replay(s.OpeningBalance, history, ts)
		entry := Transaction{
			ID:             l.NewID(),
			SafeID:         s.ID,
			Seq:            nextSeq(history),
			Type:           req.Type,
			Effect:         effect,
			Amount:         req.Amount,
			BalanceBefore:  before,
			BalanceAfter:   effect.Apply(before, req.Amount),
			Timestamp:      ts,
			Description:    req.Description,
			PerformedBy:    req.PerformedBy,
			Links:          req.Links,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      now,
		}
		if err := entry.Verify(); err != nil {
			log.Printf("[Ledger] REFUSING entry for safe %s: %v", s.ID, err)
			return err
		}

		if err := tx.Append(ctx, entry); err != nil {
			return err
		}

		latest := latestBalance(history, entry)
		if err := tx.SetCurrentBalance(ctx, s.ID, latest, now); err != nil {
			return fmt.Errorf("update current balance of safe %s: %w", s.ID, err)
		}

		if len(history) > 0 && entry.Before(history[len(history)-1]) {
			log.Printf("[Ledger] Backdated %s on safe %s at %s; later entries keep their balances",
				entry.Type, s.ID, ts.Format(time.RFC3339))
		}
		if entry.BalanceAfter.IsNegative() || latest.IsNegative() {
			log.Printf("[Ledger] WARNING: safe %s shortfall, balance after %s is %s (current %s)",
				s.ID, entry.ID, entry.BalanceAfter, latest)
		}

		if also != nil {
			if err := also(tx, entry); err != nil {
				return err
			}
		}
		posted = entry
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return posted, nil
}

func validatePost(req PostRequest) (Effect, error) {
	if req.SafeID == "" {
		return "", core.Invalid("safeId", "required")
	}
	if req.Amount.IsNegative() {
		return "", &core.ValidationError{Field: "amount", Message: "must not be negative", Err: core.ErrInvalidAmount}
	}
	return ResolveEffect(req.Type, req.Direction)
}

func nextSeq(history []Transaction) int64 {
	var max int64
	for _, tx := range history {
		if tx.Seq > max {
			max = tx.Seq
		}
	}
	return max + 1
}

// latestBalance is the BalanceAfter of whichever entry is last in ledger
// order once entry is added. history must be sorted.
func latestBalance(history []Transaction, entry Transaction) decimal.Decimal {
	if len(history) == 0 {
		return entry.BalanceAfter
	}
	last := history[len(history)-1]
	if last.Before(entry) {
		return entry.BalanceAfter
	}
	return last.BalanceAfter
}

// =============================================================================
// READ SIDE
// =============================================================================

// BalanceAsOf replays the ledger up to and including asOf. Read-only.
func (l *Ledger) BalanceAsOf(ctx context.Context, safeID string, asOf time.Time) (decimal.Decimal, error) {
	s, err := l.store.GetSafe(ctx, safeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("safe %s: %w", safeID, err)
	}
	txs, err := l.store.LoadTransactions(ctx, safeID)
	if err != nil {
		return decimal.Zero, err
	}
	SortTransactions(txs)
	return Replay(s.OpeningBalance, txs, asOf), nil
}

// Transactions returns the entries inside w in ledger order.
func (l *Ledger) Transactions(ctx context.Context, safeID string, w core.Window) ([]Transaction, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if _, err := l.store.GetSafe(ctx, safeID); err != nil {
		return nil, fmt.Errorf("safe %s: %w", safeID, err)
	}
	txs, err := l.store.LoadTransactionsInRange(ctx, safeID, w.From, w.To)
	if err != nil {
		return nil, err
	}
	SortTransactions(txs)
	return txs, nil
}

// GetSafe returns the safe with its cached balance.
func (l *Ledger) GetSafe(ctx context.Context, safeID string) (*Safe, error) {
	return l.store.GetSafe(ctx, safeID)
}

// SafeForStation returns the station's safe.
func (l *Ledger) SafeForStation(ctx context.Context, stationID string) (*Safe, error) {
	return l.store.SafeByStation(ctx, stationID)
}

// Safes lists every safe.
func (l *Ledger) Safes(ctx context.Context) ([]Safe, error) {
	return l.store.ListSafes(ctx)
}

// Audit walks the whole ledger and reports entries whose stored
// BalanceBefore differs from a fresh replay, entries failing the arithmetic
// check, and whether the cached balance matches the last entry.
func (l *Ledger) Audit(ctx context.Context, safeID string) (AuditResult, error) {
	s, err := l.store.GetSafe(ctx, safeID)
	if err != nil {
		return AuditResult{}, fmt.Errorf("safe %s: %w", safeID, err)
	}
	txs, err := l.store.LoadTransactions(ctx, safeID)
	if err != nil {
		return AuditResult{}, err
	}
	SortTransactions(txs)

	res := AuditResult{
		SafeID:        safeID,
		Entries:       len(txs),
		CachedBalance: s.CurrentBalance,
		LatestStored:  s.OpeningBalance,
	}
	running := s.OpeningBalance
	for _, tx := range txs {
		if !tx.BalanceBefore.Equal(running) {
			res.Drifts = append(res.Drifts, Drift{
				TransactionID: tx.ID, Seq: tx.Seq, Timestamp: tx.Timestamp,
				Stored: tx.BalanceBefore, Replayed: running,
			})
		}
		if err := tx.Verify(); err != nil {
			res.ArithmeticErrors = append(res.ArithmeticErrors, tx.ID)
		}
		running = tx.Effect.Apply(running, tx.Amount)
		res.LatestStored = tx.BalanceAfter
	}
	res.ReplayedBalance = running

	if !res.Clean() {
		log.Printf("[Ledger] Audit of safe %s: %d drifted, %d arithmetic errors, cache consistent=%v",
			safeID, len(res.Drifts), len(res.ArithmeticErrors), res.CacheConsistent())
	}
	return res, nil
}
