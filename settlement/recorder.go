package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/safe"
)

// =============================================================================
// RECORDER - Insert a settlement record, optionally with its safe entry
// =============================================================================

// Link kinds written on ledger entries created here.
const (
	LinkPosBatch = "pos_batch"
	LinkCheque   = "cheque"
	LinkExpense  = "expense"
	LinkDeposit  = "deposit"
	LinkLoan     = "loan"
)

// PostOptions controls the safe side of a recording.
type PostOptions struct {
	PostToSafe     bool
	PerformedBy    string
	IdempotencyKey string
}

// Recorder writes settlement records. When PostToSafe is set the record and
// its ledger entry commit together; otherwise only the record is written.
type Recorder struct {
	ledger *safe.Ledger

	Now   func() time.Time
	NewID func() string
}

func NewRecorder(ledger *safe.Ledger) *Recorder {
	return &Recorder{
		ledger: ledger,
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
	}
}

// Recorded is the outcome of one recording.
type Recorded struct {
	RecordID    string
	Transaction *safe.Transaction // nil when nothing was posted
}

// RecordPOSBatch stores a card batch; posts POS_CARD_PAYMENT for its total.
func (r *Recorder) RecordPOSBatch(ctx context.Context, b PosBatch, opts PostOptions) (Recorded, error) {
	if err := requireStation(b.StationID); err != nil {
		return Recorded{}, err
	}
	if len(b.Entries) == 0 {
		return Recorded{}, core.Invalid("entries", "at least one terminal entry is required")
	}
	for i, e := range b.Entries {
		if e.TerminalID == "" {
			return Recorded{}, core.Invalid(fmt.Sprintf("entries[%d].terminalId", i), "required")
		}
		for _, v := range []decimal.Decimal{e.Visa, e.Master, e.Amex, e.QR} {
			if err := nonNegative(fmt.Sprintf("entries[%d]", i), v); err != nil {
				return Recorded{}, err
			}
		}
	}
	r.stamp(&b.ID, &b.Timestamp, &b.CreatedAt)

	total := b.Total()
	post := opts.PostToSafe && total.IsPositive()
	req := safe.PostRequest{
		Type: safe.TxPOSCardPayment, Amount: total, Timestamp: b.Timestamp,
		Description: fmt.Sprintf("POS batch %s (%d terminals)", b.ID, len(b.Entries)),
		Links:       []safe.Link{{Kind: LinkPosBatch, ID: b.ID}},
	}
	return r.record(ctx, b.StationID, b.ID, post, opts, req, func(w Writer) error {
		return w.InsertPosBatch(ctx, b)
	})
}

// RecordCheque stores a received cheque; posts CHEQUE_RECEIVED.
func (r *Recorder) RecordCheque(ctx context.Context, c Cheque, opts PostOptions) (Recorded, error) {
	if err := requireStation(c.StationID); err != nil {
		return Recorded{}, err
	}
	if err := nonNegative("amount", c.Amount); err != nil {
		return Recorded{}, err
	}
	if c.Status == "" {
		c.Status = ChequePending
	}
	r.stamp(&c.ID, &c.ReceivedDate, &c.CreatedAt)

	req := safe.PostRequest{
		Type: safe.TxChequeReceived, Amount: c.Amount, Timestamp: c.ReceivedDate,
		Description: fmt.Sprintf("Cheque %s from %s", c.Number, c.PartyName),
		Links:       []safe.Link{{Kind: LinkCheque, ID: c.ID}},
	}
	return r.record(ctx, c.StationID, c.ID, opts.PostToSafe, opts, req, func(w Writer) error {
		return w.InsertCheque(ctx, c)
	})
}

// RecordExpense stores an expense; posts EXPENSE.
func (r *Recorder) RecordExpense(ctx context.Context, e Expense, opts PostOptions) (Recorded, error) {
	if err := requireStation(e.StationID); err != nil {
		return Recorded{}, err
	}
	if err := nonNegative("amount", e.Amount); err != nil {
		return Recorded{}, err
	}
	r.stamp(&e.ID, &e.Timestamp, &e.CreatedAt)

	req := safe.PostRequest{
		Type: safe.TxExpense, Amount: e.Amount, Timestamp: e.Timestamp,
		Description: e.Category + ": " + e.Description,
		Links:       []safe.Link{{Kind: LinkExpense, ID: e.ID}},
	}
	return r.record(ctx, e.StationID, e.ID, opts.PostToSafe, opts, req, func(w Writer) error {
		return w.InsertExpense(ctx, e)
	})
}

// RecordDeposit stores a bank deposit; posts BANK_DEPOSIT.
func (r *Recorder) RecordDeposit(ctx context.Context, d Deposit, opts PostOptions) (Recorded, error) {
	if err := requireStation(d.StationID); err != nil {
		return Recorded{}, err
	}
	if err := nonNegative("amount", d.Amount); err != nil {
		return Recorded{}, err
	}
	r.stamp(&d.ID, &d.Timestamp, &d.CreatedAt)

	req := safe.PostRequest{
		Type: safe.TxBankDeposit, Amount: d.Amount, Timestamp: d.Timestamp,
		Description: fmt.Sprintf("Deposit to %s %s", d.BankName, d.AccountNumber),
		Links:       []safe.Link{{Kind: LinkDeposit, ID: d.ID}},
	}
	return r.record(ctx, d.StationID, d.ID, opts.PostToSafe, opts, req, func(w Writer) error {
		return w.InsertDeposit(ctx, d)
	})
}

// RecordLoan stores an external or staff loan; posts LOAN_GIVEN.
func (r *Recorder) RecordLoan(ctx context.Context, l Loan, opts PostOptions) (Recorded, error) {
	if err := requireStation(l.StationID); err != nil {
		return Recorded{}, err
	}
	if err := nonNegative("amount", l.Amount); err != nil {
		return Recorded{}, err
	}
	switch l.Kind {
	case LoanExternal, LoanStaff:
	case "":
		l.Kind = LoanExternal
	default:
		return Recorded{}, core.Invalid("kind", "must be EXTERNAL or STAFF")
	}
	r.stamp(&l.ID, &l.Timestamp, &l.CreatedAt)

	req := safe.PostRequest{
		Type: safe.TxLoanGiven, Amount: l.Amount, Timestamp: l.Timestamp,
		Description: fmt.Sprintf("%s loan to %s", l.Kind, l.Borrower),
		Links:       []safe.Link{{Kind: LinkLoan, ID: l.ID}},
	}
	return r.record(ctx, l.StationID, l.ID, opts.PostToSafe, opts, req, func(w Writer) error {
		return w.InsertLoan(ctx, l)
	})
}

// record runs insert alone, or inside the posting transaction when post is set.
func (r *Recorder) record(ctx context.Context, stationID, recordID string, post bool, opts PostOptions,
	req safe.PostRequest, insert func(Writer) error) (Recorded, error) {

	withWriter := func(tx safe.Tx) error {
		w, ok := tx.(Writer)
		if !ok {
			return core.ErrStoreRequired
		}
		return insert(w)
	}

	if !post {
		if err := r.ledger.Store().WithTx(ctx, withWriter); err != nil {
			return Recorded{}, err
		}
		return Recorded{RecordID: recordID}, nil
	}

	s, err := r.ledger.SafeForStation(ctx, stationID)
	if err != nil {
		return Recorded{}, fmt.Errorf("safe for station %s: %w", stationID, err)
	}
	req.SafeID = s.ID
	req.PerformedBy = opts.PerformedBy
	req.IdempotencyKey = opts.IdempotencyKey

	entry, err := r.ledger.PostWith(ctx, req, func(tx safe.Tx, _ safe.Transaction) error {
		return withWriter(tx)
	})
	if err != nil {
		return Recorded{}, err
	}
	log.Printf("[Settlement] Recorded %s %s with safe entry %s (%s)", req.Type, recordID, entry.ID, entry.Amount)
	return Recorded{RecordID: recordID, Transaction: &entry}, nil
}

func (r *Recorder) stamp(id *string, ts, created *time.Time) {
	now := r.Now()
	if *id == "" {
		*id = r.NewID()
	}
	if ts.IsZero() {
		*ts = now
	}
	*created = now
}

func requireStation(stationID string) error {
	if stationID == "" {
		return core.Invalid("stationId", "required")
	}
	return nil
}

func nonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return &core.ValidationError{Field: field, Message: "must not be negative", Err: core.ErrInvalidAmount}
	}
	return nil
}
