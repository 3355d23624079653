/*
Package credit manages credit-customer accounts.

PURPOSE:
  A credit customer buys fuel on account and settles later. The customer's
  CurrentBalance is a running total: sales add, payments subtract.

ATOMICITY:
  The balance change and the sale or payment row are written in one store
  transaction. A payment that lands in the safe also posts CREDIT_PAYMENT
  to the safe ledger inside that same transaction (safe.Ledger.PostWith),
  so customer balance, payment row and ledger entry never diverge.

CREDIT LIMIT:
  A sale that would take the balance above a positive CreditLimit is
  refused with core.ErrCreditLimitExceeded. A zero limit means unlimited.

SEE ALSO:
  - settlement/types.go: CreditSale, CreditPayment
  - safe/ledger.go: PostWith
*/
package credit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
)

type Customer struct {
	ID             string
	StationID      string
	Name           string
	Phone          string
	CreditLimit    decimal.Decimal
	CurrentBalance decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Available returns the remaining headroom, or false when unlimited.
func (c Customer) Available() (decimal.Decimal, bool) {
	if !c.CreditLimit.IsPositive() {
		return decimal.Zero, false
	}
	return c.CreditLimit.Sub(c.CurrentBalance), true
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// Store is the read side.
type Store interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	ListCustomers(ctx context.Context, stationID string) ([]Customer, error)
}

// Writer is implemented by a safe.Tx that can also write credit rows.
type Writer interface {
	CreateCustomer(ctx context.Context, c Customer) error
	// LockCustomer loads the customer and holds it for the transaction.
	LockCustomer(ctx context.Context, id string) (*Customer, error)
	SetCustomerBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error
	InsertCreditSale(ctx context.Context, s settlement.CreditSale) error
	InsertCreditPayment(ctx context.Context, p settlement.CreditPayment) error
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store  Store
	ledger *safe.Ledger

	Now   func() time.Time
	NewID func() string
}

func NewService(store Store, ledger *safe.Ledger) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
	}
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

// CustomerNames maps customer ID to name for a station, for report labels.
func (s *Service) CustomerNames(ctx context.Context, stationID string) (map[string]string, error) {
	customers, err := s.store.ListCustomers(ctx, stationID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}
	return names, nil
}

// CreateCustomer registers a new account with a zero balance.
func (s *Service) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	if c.StationID == "" {
		return nil, core.Invalid("stationId", "required")
	}
	if c.Name == "" {
		return nil, core.Invalid("name", "required")
	}
	if c.CreditLimit.IsNegative() {
		return nil, &core.ValidationError{Field: "creditLimit", Message: "must not be negative", Err: core.ErrInvalidAmount}
	}
	now := s.Now()
	if c.ID == "" {
		c.ID = s.NewID()
	}
	c.CurrentBalance = decimal.Zero
	c.Active = true
	c.CreatedAt, c.UpdatedAt = now, now

	err := s.withWriter(ctx, func(w Writer) error {
		return w.CreateCustomer(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RecordSale inserts the sale and raises the customer's balance atomically.
func (s *Service) RecordSale(ctx context.Context, sale settlement.CreditSale) (*Customer, error) {
	if sale.CustomerID == "" {
		return nil, core.Invalid("customerId", "required")
	}
	if !sale.Amount.IsPositive() {
		return nil, &core.ValidationError{Field: "amount", Message: "must be positive", Err: core.ErrInvalidAmount}
	}
	now := s.Now()
	if sale.ID == "" {
		sale.ID = s.NewID()
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = now
	}
	sale.CreatedAt = now

	var updated *Customer
	err := s.withWriter(ctx, func(w Writer) error {
		c, err := w.LockCustomer(ctx, sale.CustomerID)
		if err != nil {
			return fmt.Errorf("customer %s: %w", sale.CustomerID, err)
		}
		if !c.Active {
			return core.Invalid("customerId", "customer %s is inactive", c.ID)
		}
		next := c.CurrentBalance.Add(sale.Amount)
		if c.CreditLimit.IsPositive() && next.GreaterThan(c.CreditLimit) {
			return fmt.Errorf("customer %s balance %s + %s over limit %s: %w",
				c.ID, c.CurrentBalance, sale.Amount, c.CreditLimit, core.ErrCreditLimitExceeded)
		}
		if sale.StationID == "" {
			sale.StationID = c.StationID
		} else if sale.StationID != c.StationID {
			return core.Invalid("stationId", "customer %s belongs to station %s", c.ID, c.StationID)
		}
		if err := w.InsertCreditSale(ctx, sale); err != nil {
			return err
		}
		if err := w.SetCustomerBalance(ctx, c.ID, next, now); err != nil {
			return err
		}
		c.CurrentBalance, c.UpdatedAt = next, now
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PaymentOptions controls the safe side of a payment.
type PaymentOptions struct {
	PostToSafe     bool
	IdempotencyKey string
}

// RecordPayment inserts the payment and lowers the customer's balance
// atomically. With PostToSafe, a CREDIT_PAYMENT entry is posted to the
// station's safe in the same transaction. Bank transfers never touch the safe.
func (s *Service) RecordPayment(ctx context.Context, p settlement.CreditPayment, opts PaymentOptions) (*Customer, *safe.Transaction, error) {
	if p.CustomerID == "" {
		return nil, nil, core.Invalid("customerId", "required")
	}
	if !p.Amount.IsPositive() {
		return nil, nil, &core.ValidationError{Field: "amount", Message: "must be positive", Err: core.ErrInvalidAmount}
	}
	if p.Method == "" {
		p.Method = settlement.PaymentCash
	}
	now := s.Now()
	if p.ID == "" {
		p.ID = s.NewID()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
	p.CreatedAt = now

	var updated *Customer
	apply := func(w Writer) error {
		c, err := w.LockCustomer(ctx, p.CustomerID)
		if err != nil {
			return fmt.Errorf("customer %s: %w", p.CustomerID, err)
		}
		if p.StationID == "" {
			p.StationID = c.StationID
		} else if p.StationID != c.StationID {
			return core.Invalid("stationId", "customer %s belongs to station %s", c.ID, c.StationID)
		}
		next := c.CurrentBalance.Sub(p.Amount)
		if next.IsNegative() {
			log.Printf("[Credit] Customer %s overpaid: balance now %s", c.ID, next)
		}
		if err := w.InsertCreditPayment(ctx, p); err != nil {
			return err
		}
		if err := w.SetCustomerBalance(ctx, c.ID, next, now); err != nil {
			return err
		}
		c.CurrentBalance, c.UpdatedAt = next, now
		updated = c
		return nil
	}

	if !opts.PostToSafe || p.Method == settlement.PaymentBankTransfer {
		if err := s.withWriter(ctx, apply); err != nil {
			return nil, nil, err
		}
		return updated, nil, nil
	}

	// The safe is resolved from the customer's station before the posting
	// transaction opens.
	cust, err := s.store.GetCustomer(ctx, p.CustomerID)
	if err != nil {
		return nil, nil, fmt.Errorf("customer %s: %w", p.CustomerID, err)
	}
	sf, err := s.ledger.SafeForStation(ctx, cust.StationID)
	if err != nil {
		return nil, nil, fmt.Errorf("safe for station %s: %w", cust.StationID, err)
	}

	entry, err := s.ledger.PostWith(ctx, safe.PostRequest{
		SafeID:         sf.ID,
		Type:           safe.TxCreditPayment,
		Amount:         p.Amount,
		Timestamp:      p.Timestamp,
		Description:    fmt.Sprintf("Credit payment from %s (%s)", cust.Name, p.Method),
		PerformedBy:    p.ReceivedBy,
		Links:          []safe.Link{{Kind: "credit_payment", ID: p.ID}},
		IdempotencyKey: opts.IdempotencyKey,
	}, func(tx safe.Tx, _ safe.Transaction) error {
		w, ok := tx.(Writer)
		if !ok {
			return core.ErrStoreRequired
		}
		return apply(w)
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, &entry, nil
}

func (s *Service) withWriter(ctx context.Context, fn func(Writer) error) error {
	return s.ledger.Store().WithTx(ctx, func(tx safe.Tx) error {
		w, ok := tx.(Writer)
		if !ok {
			return core.ErrStoreRequired
		}
		return fn(w)
	})
}
