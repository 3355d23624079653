package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/settlement"
)

// =============================================================================
// POS BATCHES
// =============================================================================

func (ts *txStore) InsertPosBatch(ctx context.Context, b settlement.PosBatch) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO pos_batches (id, station_id, shift_id, ts, created_at) VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.StationID, nullString(b.ShiftID), formatTime(b.Timestamp), formatTime(b.CreatedAt))
	if err != nil {
		return insertErr("pos batch", b.ID, err)
	}
	for i, e := range b.Entries {
		_, err := ts.c.exec(ctx, `
			INSERT INTO pos_entries (batch_id, line_no, terminal_id, terminal_name, bank_name,
				visa, master, amex, qr, tx_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.ID, i, e.TerminalID, nullString(e.TerminalName), nullString(e.BankName),
			e.Visa.String(), e.Master.String(), e.Amex.String(), e.QR.String(), e.TransactionCount)
		if err != nil {
			return fmt.Errorf("failed to insert pos entry %d of %s: %w", i, b.ID, err)
		}
	}
	return nil
}

func (s *Store) PosBatches(ctx context.Context, stationID string, w core.Window) ([]settlement.PosBatch, error) {
	c := s.conn()
	args := windowArgs(stationID, w)

	rows, err := c.query(ctx, `
		SELECT id, station_id, shift_id, ts, created_at
		FROM pos_batches
		WHERE station_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pos batches: %w", err)
	}
	var batches []settlement.PosBatch
	err = eachRow(rows, func() error {
		var (
			b             settlement.PosBatch
			shift         sql.NullString
			ts, createdAt string
		)
		if err := rows.Scan(&b.ID, &b.StationID, &shift, &ts, &createdAt); err != nil {
			return err
		}
		var p parser
		b.ShiftID = shift.String
		b.Timestamp = p.time(ts)
		b.CreatedAt = p.time(createdAt)
		batches = append(batches, b)
		return p.err
	})
	if err != nil || len(batches) == 0 {
		return batches, err
	}

	rows, err = c.query(ctx, `
		SELECT e.batch_id, e.terminal_id, e.terminal_name, e.bank_name, e.visa, e.master, e.amex, e.qr, e.tx_count
		FROM pos_entries e
		JOIN pos_batches b ON b.id = e.batch_id
		WHERE b.station_id = ? AND b.ts >= ? AND b.ts <= ?
		ORDER BY e.batch_id ASC, e.line_no ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pos entries: %w", err)
	}
	entries := make(map[string][]settlement.PosTerminalEntry)
	err = eachRow(rows, func() error {
		var (
			batchID                string
			e                      settlement.PosTerminalEntry
			name, bank             sql.NullString
			visa, master, amex, qr string
		)
		if err := rows.Scan(&batchID, &e.TerminalID, &name, &bank, &visa, &master, &amex, &qr, &e.TransactionCount); err != nil {
			return err
		}
		var p parser
		e.TerminalName = name.String
		e.BankName = bank.String
		e.Visa = p.dec(visa)
		e.Master = p.dec(master)
		e.Amex = p.dec(amex)
		e.QR = p.dec(qr)
		entries[batchID] = append(entries[batchID], e)
		return p.err
	})
	if err != nil {
		return nil, err
	}
	for i := range batches {
		batches[i].Entries = entries[batches[i].ID]
	}
	return batches, nil
}

// =============================================================================
// CHEQUES, EXPENSES, DEPOSITS, LOANS
// =============================================================================

func (ts *txStore) InsertCheque(ctx context.Context, q settlement.Cheque) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO cheques (id, station_id, number, bank_name, party_name, customer_id, amount, status, received_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.StationID, q.Number, nullString(q.BankName), nullString(q.PartyName), nullString(q.CustomerID),
		q.Amount.String(), string(q.Status), formatTime(q.ReceivedDate), formatTime(q.CreatedAt))
	return insertErr("cheque", q.ID, err)
}

func (s *Store) Cheques(ctx context.Context, stationID string, w core.Window) ([]settlement.Cheque, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, station_id, number, bank_name, party_name, customer_id, amount, status, received_date, created_at
		FROM cheques
		WHERE station_id = ? AND received_date >= ? AND received_date <= ?
		ORDER BY received_date ASC, id ASC
	`, windowArgs(stationID, w)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cheques: %w", err)
	}
	var out []settlement.Cheque
	err = eachRow(rows, func() error {
		var (
			q                          settlement.Cheque
			bank, party, customer      sql.NullString
			amount, status, rec, added string
		)
		if err := rows.Scan(&q.ID, &q.StationID, &q.Number, &bank, &party, &customer, &amount, &status, &rec, &added); err != nil {
			return err
		}
		var p parser
		q.BankName, q.PartyName, q.CustomerID = bank.String, party.String, customer.String
		q.Amount = p.dec(amount)
		q.Status = settlement.ChequeStatus(status)
		q.ReceivedDate = p.time(rec)
		q.CreatedAt = p.time(added)
		out = append(out, q)
		return p.err
	})
	return out, err
}

func (ts *txStore) InsertExpense(ctx context.Context, e settlement.Expense) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO expenses (id, station_id, category, amount, ts, description, paid_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.StationID, e.Category, e.Amount.String(), formatTime(e.Timestamp),
		nullString(e.Description), nullString(e.PaidBy), formatTime(e.CreatedAt))
	return insertErr("expense", e.ID, err)
}

func (s *Store) Expenses(ctx context.Context, stationID string, w core.Window) ([]settlement.Expense, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, station_id, category, amount, ts, description, paid_by, created_at
		FROM expenses
		WHERE station_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, windowArgs(stationID, w)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	var out []settlement.Expense
	err = eachRow(rows, func() error {
		var (
			e                 settlement.Expense
			amount, ts, added string
			desc, paidBy      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.StationID, &e.Category, &amount, &ts, &desc, &paidBy, &added); err != nil {
			return err
		}
		var p parser
		e.Amount = p.dec(amount)
		e.Timestamp = p.time(ts)
		e.CreatedAt = p.time(added)
		e.Description, e.PaidBy = desc.String, paidBy.String
		out = append(out, e)
		return p.err
	})
	return out, err
}

func (ts *txStore) InsertDeposit(ctx context.Context, d settlement.Deposit) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO deposits (id, station_id, bank_name, account_number, amount, ts, reference, deposited_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.StationID, d.BankName, nullString(d.AccountNumber), d.Amount.String(), formatTime(d.Timestamp),
		nullString(d.Reference), nullString(d.DepositedBy), formatTime(d.CreatedAt))
	return insertErr("deposit", d.ID, err)
}

func (s *Store) Deposits(ctx context.Context, stationID string, w core.Window) ([]settlement.Deposit, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, station_id, bank_name, account_number, amount, ts, reference, deposited_by, created_at
		FROM deposits
		WHERE station_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, windowArgs(stationID, w)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits: %w", err)
	}
	var out []settlement.Deposit
	err = eachRow(rows, func() error {
		var (
			d                   settlement.Deposit
			account, ref, by    sql.NullString
			amount, ts, created string
		)
		if err := rows.Scan(&d.ID, &d.StationID, &d.BankName, &account, &amount, &ts, &ref, &by, &created); err != nil {
			return err
		}
		var p parser
		d.AccountNumber, d.Reference, d.DepositedBy = account.String, ref.String, by.String
		d.Amount = p.dec(amount)
		d.Timestamp = p.time(ts)
		d.CreatedAt = p.time(created)
		out = append(out, d)
		return p.err
	})
	return out, err
}

func (ts *txStore) InsertLoan(ctx context.Context, l settlement.Loan) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO loans (id, station_id, kind, borrower, amount, ts, due_date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.StationID, string(l.Kind), l.Borrower, l.Amount.String(), formatTime(l.Timestamp),
		nullTime(l.DueDate), nullString(l.Description), formatTime(l.CreatedAt))
	return insertErr("loan", l.ID, err)
}

func (s *Store) Loans(ctx context.Context, stationID string, w core.Window) ([]settlement.Loan, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, station_id, kind, borrower, amount, ts, due_date, description, created_at
		FROM loans
		WHERE station_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, windowArgs(stationID, w)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	var out []settlement.Loan
	err = eachRow(rows, func() error {
		var (
			l                         settlement.Loan
			kind, amount, ts, created string
			due, desc                 sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.StationID, &kind, &l.Borrower, &amount, &ts, &due, &desc, &created); err != nil {
			return err
		}
		var p parser
		l.Kind = settlement.LoanKind(kind)
		l.Amount = p.dec(amount)
		l.Timestamp = p.time(ts)
		l.DueDate = p.nullTime(due)
		l.Description = desc.String
		l.CreatedAt = p.time(created)
		out = append(out, l)
		return p.err
	})
	return out, err
}

// =============================================================================
// CREDIT (credit.Store, credit.Writer, settlement.Source)
// =============================================================================

const customerColumns = `id, station_id, name, phone, credit_limit, current_balance, active, created_at, updated_at`

func (s *Store) GetCustomer(ctx context.Context, id string) (*credit.Customer, error) {
	return getCustomer(ctx, s.conn(), `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
}

// LockCustomer loads the customer and, on PostgreSQL, holds its row until commit.
func (ts *txStore) LockCustomer(ctx context.Context, id string) (*credit.Customer, error) {
	return getCustomer(ctx, ts.c, ts.c.forUpdate(`SELECT `+customerColumns+` FROM customers WHERE id = ?`), id)
}

func getCustomer(ctx context.Context, c conn, query, id string) (*credit.Customer, error) {
	rows, err := c.query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	customers, err := scanCustomers(rows)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, core.ErrNotFound
	}
	return &customers[0], nil
}

func (s *Store) ListCustomers(ctx context.Context, stationID string) ([]credit.Customer, error) {
	rows, err := s.conn().query(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE station_id = ? ORDER BY name ASC, id ASC
	`, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	return scanCustomers(rows)
}

func scanCustomers(rows *sql.Rows) ([]credit.Customer, error) {
	var out []credit.Customer
	err := eachRow(rows, func() error {
		var (
			cu                   credit.Customer
			phone                sql.NullString
			limit, balance       string
			active               int64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&cu.ID, &cu.StationID, &cu.Name, &phone, &limit, &balance, &active, &createdAt, &updatedAt); err != nil {
			return err
		}
		var p parser
		cu.Phone = phone.String
		cu.CreditLimit = p.dec(limit)
		cu.CurrentBalance = p.dec(balance)
		cu.Active = active != 0
		cu.CreatedAt = p.time(createdAt)
		cu.UpdatedAt = p.time(updatedAt)
		out = append(out, cu)
		return p.err
	})
	return out, err
}

func (ts *txStore) CreateCustomer(ctx context.Context, cu credit.Customer) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cu.ID, cu.StationID, cu.Name, nullString(cu.Phone), cu.CreditLimit.String(), cu.CurrentBalance.String(),
		boolInt(cu.Active), formatTime(cu.CreatedAt), formatTime(cu.UpdatedAt))
	return insertErr("customer", cu.ID, err)
}

func (ts *txStore) SetCustomerBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	res, err := ts.c.exec(ctx, `UPDATE customers SET current_balance = ?, updated_at = ? WHERE id = ?`,
		balance.String(), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update customer balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (ts *txStore) InsertCreditSale(ctx context.Context, cs settlement.CreditSale) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO credit_sales (id, station_id, customer_id, shift_id, fuel_id, liters, amount, ts, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cs.ID, cs.StationID, cs.CustomerID, nullString(cs.ShiftID), nullString(cs.FuelID), cs.Liters.String(),
		cs.Amount.String(), formatTime(cs.Timestamp), nullString(cs.Reference), formatTime(cs.CreatedAt))
	return insertErr("credit sale", cs.ID, err)
}

func (s *Store) CreditSales(ctx context.Context, stationID string, w core.Window) ([]settlement.CreditSale, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, station_id, customer_id, shift_id, fuel_id, liters, amount, ts, reference, created_at
		FROM credit_sales
		WHERE station_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, windowArgs(stationID, w)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit sales: %w", err)
	}
	var out []settlement.CreditSale
	err = eachRow(rows, func() error {
		var (
			cs                          settlement.CreditSale
			shift, fuel, ref            sql.NullString
			liters, amount, ts, created string
		)
		if err := rows.Scan(&cs.ID, &cs.StationID, &cs.CustomerID, &shift, &fuel, &liters, &amount, &ts, &ref, &created); err != nil {
			return err
		}
		var p parser
		cs.ShiftID, cs.FuelID, cs.Reference = shift.String, fuel.String, ref.String
		cs.Liters = p.dec(liters)
		cs.Amount = p.dec(amount)
		cs.Timestamp = p.time(ts)
		cs.CreatedAt = p.time(created)
		out = append(out, cs)
		return p.err
	})
	return out, err
}

func (ts *txStore) InsertCreditPayment(ctx context.Context, cp settlement.CreditPayment) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO credit_payments (id, station_id, customer_id, amount, method, ts, reference, received_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.ID, cp.StationID, cp.CustomerID, cp.Amount.String(), string(cp.Method), formatTime(cp.Timestamp),
		nullString(cp.Reference), nullString(cp.ReceivedBy), formatTime(cp.CreatedAt))
	return insertErr("credit payment", cp.ID, err)
}

func (s *Store) CreditPayments(ctx context.Context, stationID string, w core.Window) ([]settlement.CreditPayment, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, station_id, customer_id, amount, method, ts, reference, received_by, created_at
		FROM credit_payments
		WHERE station_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, windowArgs(stationID, w)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit payments: %w", err)
	}
	var out []settlement.CreditPayment
	err = eachRow(rows, func() error {
		var (
			cp                          settlement.CreditPayment
			amount, method, ts, created string
			ref, by                     sql.NullString
		)
		if err := rows.Scan(&cp.ID, &cp.StationID, &cp.CustomerID, &amount, &method, &ts, &ref, &by, &created); err != nil {
			return err
		}
		var p parser
		cp.Amount = p.dec(amount)
		cp.Method = settlement.PaymentMethod(method)
		cp.Timestamp = p.time(ts)
		cp.Reference, cp.ReceivedBy = ref.String, by.String
		cp.CreatedAt = p.time(created)
		out = append(out, cp)
		return p.err
	})
	return out, err
}

// =============================================================================
// HELPERS
// =============================================================================

func windowArgs(stationID string, w core.Window) []any {
	return []any{stationID, formatTime(w.From), formatTime(w.To)}
}

// eachRow calls scan for every row and closes rows.
func eachRow(rows *sql.Rows, scan func() error) error {
	defer rows.Close()
	for rows.Next() {
		if err := scan(); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
	}
	return rows.Err()
}

// insertErr maps a unique violation to core.ErrAlreadyExists. nil stays nil.
func insertErr(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrAlreadyExists)
	}
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}
