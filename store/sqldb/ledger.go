package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/safe"
)

// =============================================================================
// SAFES (safe.Store / safe.Tx)
// =============================================================================

const safeColumns = `id, station_id, opening_balance, current_balance, created_at, updated_at`

func (s *Store) GetSafe(ctx context.Context, safeID string) (*safe.Safe, error) {
	return getSafe(ctx, s.conn(), `SELECT `+safeColumns+` FROM safes WHERE id = ?`, safeID)
}

func (s *Store) SafeByStation(ctx context.Context, stationID string) (*safe.Safe, error) {
	return getSafe(ctx, s.conn(), `SELECT `+safeColumns+` FROM safes WHERE station_id = ?`, stationID)
}

func (s *Store) ListSafes(ctx context.Context) ([]safe.Safe, error) {
	c := s.conn()
	rows, err := c.query(ctx, `SELECT id FROM safes ORDER BY station_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query safes: %w", err)
	}
	var ids []string
	err = eachRow(rows, func() error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]safe.Safe, 0, len(ids))
	for _, id := range ids {
		sf, err := getSafe(ctx, c, `SELECT `+safeColumns+` FROM safes WHERE id = ?`, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *sf)
	}
	return out, nil
}

// LockSafe loads the safe and, on PostgreSQL, holds its row until commit.
func (ts *txStore) LockSafe(ctx context.Context, safeID string) (*safe.Safe, error) {
	return getSafe(ctx, ts.c, ts.c.forUpdate(`SELECT `+safeColumns+` FROM safes WHERE id = ?`), safeID)
}

func getSafe(ctx context.Context, c conn, query string, arg string) (*safe.Safe, error) {
	var (
		sf                   safe.Safe
		opening, current     string
		createdAt, updatedAt string
	)
	err := c.queryRow(ctx, query, arg).Scan(&sf.ID, &sf.StationID, &opening, &current, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	var p parser
	sf.OpeningBalance = p.dec(opening)
	sf.CurrentBalance = p.dec(current)
	sf.CreatedAt = p.time(createdAt)
	sf.UpdatedAt = p.time(updatedAt)
	return &sf, p.err
}

func (ts *txStore) CreateSafe(ctx context.Context, sf safe.Safe) error {
	_, err := ts.c.exec(ctx, `
		INSERT INTO safes (`+safeColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, sf.ID, sf.StationID, sf.OpeningBalance.String(), sf.CurrentBalance.String(),
		formatTime(sf.CreatedAt), formatTime(sf.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("safe for station %s: %w", sf.StationID, core.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create safe: %w", err)
	}
	return nil
}

// SetCurrentBalance refreshes the cached projection. The only UPDATE on safes.
func (ts *txStore) SetCurrentBalance(ctx context.Context, safeID string, balance decimal.Decimal, at time.Time) error {
	res, err := ts.c.exec(ctx, `UPDATE safes SET current_balance = ?, updated_at = ? WHERE id = ?`,
		balance.String(), formatTime(at), safeID)
	if err != nil {
		return fmt.Errorf("failed to update safe balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// =============================================================================
// LEDGER ENTRIES (append-only)
// =============================================================================

const transactionColumns = `id, safe_id, seq, tx_type, effect, amount, balance_before, balance_after,
	ts, description, performed_by, links_json, idempotency_key, created_at`

// Append adds an entry. A reused idempotency key is reported as
// core.ErrDuplicateIdempotencyKey.
func (ts *txStore) Append(ctx context.Context, tx safe.Transaction) error {
	linksJSON, err := json.Marshal(tx.Links)
	if err != nil {
		return fmt.Errorf("failed to encode links: %w", err)
	}

	_, err = ts.c.exec(ctx, `
		INSERT INTO safe_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.SafeID,
		tx.Seq,
		string(tx.Type),
		string(tx.Effect),
		tx.Amount.String(),
		tx.BalanceBefore.String(),
		tx.BalanceAfter.String(),
		formatTime(tx.Timestamp),
		nullString(tx.Description),
		nullString(tx.PerformedBy),
		string(linksJSON),
		nullString(tx.IdempotencyKey),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			if tx.IdempotencyKey != "" {
				return fmt.Errorf("key %q: %w", tx.IdempotencyKey, core.ErrDuplicateIdempotencyKey)
			}
			return fmt.Errorf("entry %s (seq %d): %w", tx.ID, tx.Seq, core.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) LoadTransactions(ctx context.Context, safeID string) ([]safe.Transaction, error) {
	return loadTransactions(ctx, s.conn(), safeID)
}

func (ts *txStore) LoadTransactions(ctx context.Context, safeID string) ([]safe.Transaction, error) {
	return loadTransactions(ctx, ts.c, safeID)
}

func loadTransactions(ctx context.Context, c conn, safeID string) ([]safe.Transaction, error) {
	return queryTransactions(ctx, c, `
		SELECT `+transactionColumns+`
		FROM safe_transactions
		WHERE safe_id = ?
		ORDER BY ts ASC, seq ASC
	`, safeID)
}

// LoadTransactionsInRange returns entries with from <= ts <= to.
func (s *Store) LoadTransactionsInRange(ctx context.Context, safeID string, from, to time.Time) ([]safe.Transaction, error) {
	return queryTransactions(ctx, s.conn(), `
		SELECT `+transactionColumns+`
		FROM safe_transactions
		WHERE safe_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, seq ASC
	`, safeID, formatTime(from), formatTime(to))
}

func queryTransactions(ctx context.Context, c conn, query string, args ...any) ([]safe.Transaction, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []safe.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (safe.Transaction, error) {
	var (
		tx                        safe.Transaction
		txType, effect            string
		amount, before, after     string
		ts, createdAt             string
		description, performedBy  sql.NullString
		linksJSON, idempotencyKey sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.SafeID, &tx.Seq, &txType, &effect,
		&amount, &before, &after, &ts,
		&description, &performedBy, &linksJSON, &idempotencyKey, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	var p parser
	tx.Type = safe.TransactionType(txType)
	tx.Effect = safe.Effect(effect)
	tx.Amount = p.dec(amount)
	tx.BalanceBefore = p.dec(before)
	tx.BalanceAfter = p.dec(after)
	tx.Timestamp = p.time(ts)
	tx.CreatedAt = p.time(createdAt)
	tx.Description = description.String
	tx.PerformedBy = performedBy.String
	tx.IdempotencyKey = idempotencyKey.String
	if p.err != nil {
		return tx, p.err
	}

	if linksJSON.Valid && linksJSON.String != "" && linksJSON.String != "null" {
		if err := json.Unmarshal([]byte(linksJSON.String), &tx.Links); err != nil {
			return tx, fmt.Errorf("failed to decode links of %s: %w", tx.ID, err)
		}
	}
	return tx, nil
}
