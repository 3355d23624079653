/*
Package sqldb provides the database/sql implementation of the storage interfaces,
for SQLite and PostgreSQL.

PURPOSE:
  Implements every persistence interface the memory store implements, over
  one schema that both engines accept. SQLite is the default (single file,
  zero setup); PostgreSQL is used when several server processes share data.

INTERFACES IMPLEMENTED:
  station.Catalog, station.PriceStore, station.ShiftReader, station.Registry
  safe.TxStore (and safe.Tx inside WithTx)
  settlement.Source, settlement.Writer (inside WithTx)
  credit.Store, credit.Writer (inside WithTx)

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on safe_transactions
  - No UPDATE or DELETE statements on prices
  - safes.current_balance and customers.current_balance are the only
    mutable money columns, and only inside WithTx

STORAGE FORMATS:
  Money and volumes:  TEXT holding the decimal string (exact on both engines)
  Timestamps:         TEXT, UTC, fixed width (timeLayout) so that string
                      comparison is chronological and range queries use indexes
  Ledger links:       JSON text

CONCURRENCY:
  SQLite: one connection and a process mutex around WithTx. A write
  transaction owns the database until it commits.
  PostgreSQL: LockSafe and LockCustomer read with SELECT ... FOR UPDATE, so
  postings from several processes serialize on the row.

USAGE:
  store, err := sqldb.NewSQLite("./data/station.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := safe.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on open (CREATE ... IF NOT EXISTS).

SEE ALSO:
  - store/memory: In-memory implementation of the same interfaces
  - safe/store.go: Ledger persistence contract
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/station"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// timeLayout is fixed width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex // SQLite write serialization
}

var (
	_ safe.TxStore        = (*Store)(nil)
	_ station.Catalog     = (*Store)(nil)
	_ station.PriceStore  = (*Store)(nil)
	_ station.ShiftReader = (*Store)(nil)
	_ station.Registry    = (*Store)(nil)
	_ settlement.Source   = (*Store)(nil)
	_ credit.Store        = (*Store)(nil)

	_ safe.Tx           = (*txStore)(nil)
	_ settlement.Writer = (*txStore)(nil)
	_ credit.Writer     = (*txStore)(nil)
)

// NewSQLite opens (creating if needed) a SQLite database at path.
// Use ":memory:" for a throwaway database.
func NewSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dialect: SQLite}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewPostgres connects to databaseURL through the pgx stdlib driver.
func NewPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{db: db, dialect: Postgres}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	// One statement per Exec, so a failure names its statement.
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	return nil
}

// =============================================================================
// QUERY PLUMBING
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a querier to the dialect. Every statement is written with ?
// placeholders and rebound for PostgreSQL.
type conn struct {
	q       querier
	dialect Dialect
}

func (s *Store) conn() conn { return conn{q: s.db, dialect: s.dialect} }

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// forUpdate appends a row lock on engines that have one.
func (c conn) forUpdate(query string) string {
	if c.dialect == Postgres {
		return query + " FOR UPDATE"
	}
	return query
}

func (c conn) rebind(query string) string {
	if c.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// =============================================================================
// TRANSACTIONAL STORE (safe.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The txStore passed to
// fn also implements settlement.Writer and credit.Writer.
func (s *Store) WithTx(ctx context.Context, fn func(tx safe.Tx) error) error {
	return s.inTx(ctx, func(c conn) error {
		return fn(&txStore{c: c})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(c conn) error) error {
	if s.dialect == SQLite {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the view of the store inside one transaction. Reads go
// through the transaction so they see its own writes.
type txStore struct {
	c conn
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// parser converts scanned TEXT columns and keeps the first failure, so a
// scan function can parse every column and check once.
type parser struct {
	err error
}

func (p *parser) dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("bad decimal %q: %w", s, err)
	}
	return d
}

func (p *parser) time(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t
}

func (p *parser) nullDec(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := p.dec(s.String)
	return &d
}

func (p *parser) nullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := p.time(s.String)
	return &t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// isUniqueViolation recognizes UNIQUE / PRIMARY KEY failures on both engines.
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
