/*
Package memory provides an in-memory implementation of every store
interface in the module (for tests and local development).

INTERFACES IMPLEMENTED:
  station.Catalog, station.PriceStore, station.ShiftReader, station.Registry
  safe.TxStore (and safe.Tx inside WithTx)
  settlement.Source, settlement.Writer (inside WithTx)
  credit.Store, credit.Writer (inside WithTx)

TRANSACTIONS:
  WithTx holds the write lock for the whole callback, snapshots the state
  first and restores it if the callback fails. One writer at a time, which
  also makes LockSafe and LockCustomer trivially exclusive.

SEE ALSO:
  - store/sqldb: SQLite / PostgreSQL implementation of the same interfaces
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/station"
)

type Store struct {
	mu sync.RWMutex
	d  *data
}

type data struct {
	stations map[string]station.Station
	fuels    map[string]station.Fuel
	tanks    map[string]station.Tank
	pumps    map[string]station.Pump
	nozzles  map[string]station.Nozzle
	prices   []station.Price
	shifts   map[string]station.Shift

	safes         map[string]safe.Safe
	safeByStation map[string]string
	ledger        map[string][]safe.Transaction // per safe, in ledger order
	idempotency   map[string]bool

	customers      map[string]credit.Customer
	creditSales    []settlement.CreditSale
	creditPayments []settlement.CreditPayment
	posBatches     []settlement.PosBatch
	cheques        []settlement.Cheque
	expenses       []settlement.Expense
	deposits       []settlement.Deposit
	loans          []settlement.Loan
}

func New() *Store {
	return &Store{d: &data{
		stations:      make(map[string]station.Station),
		fuels:         make(map[string]station.Fuel),
		tanks:         make(map[string]station.Tank),
		pumps:         make(map[string]station.Pump),
		nozzles:       make(map[string]station.Nozzle),
		shifts:        make(map[string]station.Shift),
		safes:         make(map[string]safe.Safe),
		safeByStation: make(map[string]string),
		ledger:        make(map[string][]safe.Transaction),
		idempotency:   make(map[string]bool),
		customers:     make(map[string]credit.Customer),
	}}
}

// Close is a no-op; present so the store can be closed like the SQL ones.
func (s *Store) Close() error { return nil }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a snapshot-protected view. fn's error restores the
// state captured before the call.
func (s *Store) WithTx(ctx context.Context, fn func(safe.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(&txView{d: s.d}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func (d *data) clone() *data {
	c := &data{
		stations:      cloneMap(d.stations),
		fuels:         cloneMap(d.fuels),
		tanks:         cloneMap(d.tanks),
		pumps:         cloneMap(d.pumps),
		nozzles:       cloneMap(d.nozzles),
		prices:        append([]station.Price(nil), d.prices...),
		shifts:        cloneMap(d.shifts),
		safes:         cloneMap(d.safes),
		safeByStation: cloneMap(d.safeByStation),
		ledger:        make(map[string][]safe.Transaction, len(d.ledger)),
		idempotency:   cloneMap(d.idempotency),
		customers:     cloneMap(d.customers),

		creditSales:    append([]settlement.CreditSale(nil), d.creditSales...),
		creditPayments: append([]settlement.CreditPayment(nil), d.creditPayments...),
		posBatches:     append([]settlement.PosBatch(nil), d.posBatches...),
		cheques:        append([]settlement.Cheque(nil), d.cheques...),
		expenses:       append([]settlement.Expense(nil), d.expenses...),
		deposits:       append([]settlement.Deposit(nil), d.deposits...),
		loans:          append([]settlement.Loan(nil), d.loans...),
	}
	for k, v := range d.ledger {
		c.ledger[k] = append([]safe.Transaction(nil), v...)
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// txView is handed to WithTx callbacks. The parent's write lock is held.
type txView struct {
	d *data
}

var (
	_ safe.Tx           = (*txView)(nil)
	_ settlement.Writer = (*txView)(nil)
	_ credit.Writer     = (*txView)(nil)
)

// =============================================================================
// SAFE LEDGER
// =============================================================================

func (s *Store) GetSafe(_ context.Context, safeID string) (*safe.Safe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sf, ok := s.d.safes[safeID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &sf, nil
}

func (s *Store) SafeByStation(_ context.Context, stationID string) (*safe.Safe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.d.safeByStation[stationID]
	if !ok {
		return nil, core.ErrNotFound
	}
	sf := s.d.safes[id]
	return &sf, nil
}

func (s *Store) ListSafes(_ context.Context) ([]safe.Safe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]safe.Safe, 0, len(s.d.safes))
	for _, sf := range s.d.safes {
		out = append(out, sf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

func (s *Store) LoadTransactions(_ context.Context, safeID string) ([]safe.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]safe.Transaction(nil), s.d.ledger[safeID]...), nil
}

func (s *Store) LoadTransactionsInRange(_ context.Context, safeID string, from, to time.Time) ([]safe.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []safe.Transaction
	for _, tx := range s.d.ledger[safeID] {
		if !tx.Timestamp.Before(from) && !tx.Timestamp.After(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (tv *txView) LockSafe(_ context.Context, safeID string) (*safe.Safe, error) {
	sf, ok := tv.d.safes[safeID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &sf, nil
}

func (tv *txView) LoadTransactions(_ context.Context, safeID string) ([]safe.Transaction, error) {
	return append([]safe.Transaction(nil), tv.d.ledger[safeID]...), nil
}

// Append inserts in ledger order using binary search.
func (tv *txView) Append(_ context.Context, tx safe.Transaction) error {
	if tx.IdempotencyKey != "" && tv.d.idempotency[tx.IdempotencyKey] {
		return core.ErrDuplicateIdempotencyKey
	}
	txs := tv.d.ledger[tx.SafeID]
	i := sort.Search(len(txs), func(i int) bool { return tx.Before(txs[i]) })
	txs = append(txs, safe.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	tv.d.ledger[tx.SafeID] = txs

	if tx.IdempotencyKey != "" {
		tv.d.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (tv *txView) SetCurrentBalance(_ context.Context, safeID string, balance decimal.Decimal, at time.Time) error {
	sf, ok := tv.d.safes[safeID]
	if !ok {
		return core.ErrNotFound
	}
	sf.CurrentBalance = balance
	sf.UpdatedAt = at
	tv.d.safes[safeID] = sf
	return nil
}

func (tv *txView) CreateSafe(_ context.Context, sf safe.Safe) error {
	if _, ok := tv.d.safeByStation[sf.StationID]; ok {
		return core.ErrAlreadyExists
	}
	if _, ok := tv.d.safes[sf.ID]; ok {
		return core.ErrAlreadyExists
	}
	tv.d.safes[sf.ID] = sf
	tv.d.safeByStation[sf.StationID] = sf.ID
	return nil
}

// =============================================================================
// CATALOG & REGISTRY
// =============================================================================

func (s *Store) GetStation(_ context.Context, id string) (*station.Station, error) {
	return get(s, func(d *data) map[string]station.Station { return d.stations }, id)
}

func (s *Store) GetNozzle(_ context.Context, id string) (*station.Nozzle, error) {
	return get(s, func(d *data) map[string]station.Nozzle { return d.nozzles }, id)
}

func (s *Store) GetTank(_ context.Context, id string) (*station.Tank, error) {
	return get(s, func(d *data) map[string]station.Tank { return d.tanks }, id)
}

func (s *Store) GetFuel(_ context.Context, id string) (*station.Fuel, error) {
	return get(s, func(d *data) map[string]station.Fuel { return d.fuels }, id)
}

func get[V any](s *Store, pick func(*data) map[string]V, id string) (*V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := pick(s.d)[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &v, nil
}

func (s *Store) SaveStation(_ context.Context, st station.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.stations[st.ID] = st
	return nil
}

func (s *Store) SaveFuel(_ context.Context, f station.Fuel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.fuels[f.ID] = f
	return nil
}

func (s *Store) SaveTank(_ context.Context, t station.Tank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.tanks[t.ID] = t
	return nil
}

func (s *Store) SavePump(_ context.Context, p station.Pump) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.pumps[p.ID] = p
	return nil
}

func (s *Store) SaveNozzle(_ context.Context, n station.Nozzle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.nozzles[n.ID] = n
	return nil
}

// AddPrice appends a tariff row. Existing rows are never replaced.
func (s *Store) AddPrice(_ context.Context, p station.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.d.prices {
		if existing.ID == p.ID {
			return core.ErrAlreadyExists
		}
	}
	s.d.prices = append(s.d.prices, p)
	return nil
}

// PriceHistory returns rows in insertion order.
func (s *Store) PriceHistory(_ context.Context, stationID, fuelID string) ([]station.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []station.Price
	for _, p := range s.d.prices {
		if p.StationID == stationID && p.FuelID == fuelID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) SaveShift(_ context.Context, sh station.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh.Assignments = append([]station.ShiftAssignment(nil), sh.Assignments...)
	s.d.shifts[sh.ID] = sh
	return nil
}

// ClosedShifts matches on end time, or start time when end time is missing.
func (s *Store) ClosedShifts(_ context.Context, stationID string, w core.Window) ([]station.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []station.Shift
	for _, sh := range s.d.shifts {
		if sh.StationID != stationID || sh.Status != station.ShiftClosed {
			continue
		}
		at := sh.StartTime
		if sh.EndTime != nil {
			at = *sh.EndTime
		}
		if w.Contains(at) {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func (s *Store) PosBatches(_ context.Context, stationID string, w core.Window) ([]settlement.PosBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.d.posBatches, func(b settlement.PosBatch) bool {
		return b.StationID == stationID && w.Contains(b.Timestamp)
	}), nil
}

func (s *Store) CreditSales(_ context.Context, stationID string, w core.Window) ([]settlement.CreditSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.d.creditSales, func(c settlement.CreditSale) bool {
		return c.StationID == stationID && w.Contains(c.Timestamp)
	}), nil
}

func (s *Store) CreditPayments(_ context.Context, stationID string, w core.Window) ([]settlement.CreditPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.d.creditPayments, func(p settlement.CreditPayment) bool {
		return p.StationID == stationID && w.Contains(p.Timestamp)
	}), nil
}

func (s *Store) Cheques(_ context.Context, stationID string, w core.Window) ([]settlement.Cheque, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.d.cheques, func(c settlement.Cheque) bool {
		return c.StationID == stationID && w.Contains(c.ReceivedDate)
	}), nil
}

func (s *Store) Expenses(_ context.Context, stationID string, w core.Window) ([]settlement.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.d.expenses, func(e settlement.Expense) bool {
		return e.StationID == stationID && w.Contains(e.Timestamp)
	}), nil
}

func (s *Store) Deposits(_ context.Context, stationID string, w core.Window) ([]settlement.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.d.deposits, func(d settlement.Deposit) bool {
		return d.StationID == stationID && w.Contains(d.Timestamp)
	}), nil
}

func (s *Store) Loans(_ context.Context, stationID string, w core.Window) ([]settlement.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.d.loans, func(l settlement.Loan) bool {
		return l.StationID == stationID && w.Contains(l.Timestamp)
	}), nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	var out []T
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func (tv *txView) InsertPosBatch(_ context.Context, b settlement.PosBatch) error {
	b.Entries = append([]settlement.PosTerminalEntry(nil), b.Entries...)
	tv.d.posBatches = append(tv.d.posBatches, b)
	return nil
}

func (tv *txView) InsertCheque(_ context.Context, c settlement.Cheque) error {
	tv.d.cheques = append(tv.d.cheques, c)
	return nil
}

func (tv *txView) InsertExpense(_ context.Context, e settlement.Expense) error {
	tv.d.expenses = append(tv.d.expenses, e)
	return nil
}

func (tv *txView) InsertDeposit(_ context.Context, d settlement.Deposit) error {
	tv.d.deposits = append(tv.d.deposits, d)
	return nil
}

func (tv *txView) InsertLoan(_ context.Context, l settlement.Loan) error {
	tv.d.loans = append(tv.d.loans, l)
	return nil
}

// =============================================================================
// CREDIT
// =============================================================================

func (s *Store) GetCustomer(_ context.Context, id string) (*credit.Customer, error) {
	return get(s, func(d *data) map[string]credit.Customer { return d.customers }, id)
}

func (s *Store) ListCustomers(_ context.Context, stationID string) ([]credit.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []credit.Customer
	for _, c := range s.d.customers {
		if c.StationID == stationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (tv *txView) CreateCustomer(_ context.Context, c credit.Customer) error {
	if _, ok := tv.d.customers[c.ID]; ok {
		return core.ErrAlreadyExists
	}
	tv.d.customers[c.ID] = c
	return nil
}

func (tv *txView) LockCustomer(_ context.Context, id string) (*credit.Customer, error) {
	c, ok := tv.d.customers[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &c, nil
}

func (tv *txView) SetCustomerBalance(_ context.Context, id string, balance decimal.Decimal, at time.Time) error {
	c, ok := tv.d.customers[id]
	if !ok {
		return core.ErrNotFound
	}
	c.CurrentBalance = balance
	c.UpdatedAt = at
	tv.d.customers[id] = c
	return nil
}

func (tv *txView) InsertCreditSale(_ context.Context, sale settlement.CreditSale) error {
	tv.d.creditSales = append(tv.d.creditSales, sale)
	return nil
}

func (tv *txView) InsertCreditPayment(_ context.Context, p settlement.CreditPayment) error {
	tv.d.creditPayments = append(tv.d.creditPayments, p)
	return nil
}
