package sqldb

// schema is accepted by both SQLite and PostgreSQL. Statements are separated
// by semicolons and run one by one; none may contain a semicolon itself.
const schema = `
-- Topology
CREATE TABLE IF NOT EXISTS stations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	currency_decimals INTEGER NOT NULL DEFAULT 2,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fuels (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tanks (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	fuel_id TEXT NOT NULL,
	capacity TEXT NOT NULL,
	current_level TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pumps (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	number TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nozzles (
	id TEXT PRIMARY KEY,
	pump_id TEXT NOT NULL,
	tank_id TEXT NOT NULL
);

-- Tariffs (append-only)
CREATE TABLE IF NOT EXISTS prices (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	fuel_id TEXT NOT NULL,
	price TEXT NOT NULL,
	effective_date TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prices_station_fuel
	ON prices(station_id, fuel_id, effective_date);

-- Shifts
CREATE TABLE IF NOT EXISTS shifts (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT,
	status TEXT NOT NULL,
	declared_cash TEXT NOT NULL,
	declared_card TEXT NOT NULL,
	declared_credit TEXT NOT NULL,
	declared_cheque TEXT NOT NULL,
	declared_tx_count INTEGER NOT NULL DEFAULT 0,
	shop_sales TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shifts_station_status
	ON shifts(station_id, status);

CREATE TABLE IF NOT EXISTS shift_assignments (
	id TEXT PRIMARY KEY,
	shift_id TEXT NOT NULL,
	nozzle_id TEXT NOT NULL,
	pumper_id TEXT,
	start_reading TEXT NOT NULL,
	end_reading TEXT,
	status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assignments_shift
	ON shift_assignments(shift_id);

-- Safe ledger
CREATE TABLE IF NOT EXISTS safes (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL UNIQUE,
	opening_balance TEXT NOT NULL,
	current_balance TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS safe_transactions (
	id TEXT PRIMARY KEY,
	safe_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	tx_type TEXT NOT NULL,
	effect TEXT NOT NULL,
	amount TEXT NOT NULL,
	balance_before TEXT NOT NULL,
	balance_after TEXT NOT NULL,
	ts TEXT NOT NULL,
	description TEXT,
	performed_by TEXT,
	links_json TEXT,
	idempotency_key TEXT UNIQUE,
	created_at TEXT NOT NULL,
	UNIQUE(safe_id, seq)
);

-- Replay order (hot path)
CREATE INDEX IF NOT EXISTS idx_safe_transactions_order
	ON safe_transactions(safe_id, ts, seq);

-- Credit
CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	name TEXT NOT NULL,
	phone TEXT,
	credit_limit TEXT NOT NULL,
	current_balance TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_station
	ON customers(station_id);

CREATE TABLE IF NOT EXISTS credit_sales (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	shift_id TEXT,
	fuel_id TEXT,
	liters TEXT NOT NULL,
	amount TEXT NOT NULL,
	ts TEXT NOT NULL,
	reference TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_sales_station_ts
	ON credit_sales(station_id, ts);

CREATE TABLE IF NOT EXISTS credit_payments (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	method TEXT NOT NULL,
	ts TEXT NOT NULL,
	reference TEXT,
	received_by TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_payments_station_ts
	ON credit_payments(station_id, ts);

-- Settlement records
CREATE TABLE IF NOT EXISTS pos_batches (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	shift_id TEXT,
	ts TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pos_batches_station_ts
	ON pos_batches(station_id, ts);

CREATE TABLE IF NOT EXISTS pos_entries (
	batch_id TEXT NOT NULL,
	line_no INTEGER NOT NULL,
	terminal_id TEXT NOT NULL,
	terminal_name TEXT,
	bank_name TEXT,
	visa TEXT NOT NULL,
	master TEXT NOT NULL,
	amex TEXT NOT NULL,
	qr TEXT NOT NULL,
	tx_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (batch_id, line_no)
);

CREATE TABLE IF NOT EXISTS cheques (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	number TEXT NOT NULL,
	bank_name TEXT,
	party_name TEXT,
	customer_id TEXT,
	amount TEXT NOT NULL,
	status TEXT NOT NULL,
	received_date TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cheques_station_received
	ON cheques(station_id, received_date);

CREATE TABLE IF NOT EXISTS expenses (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	category TEXT NOT NULL,
	amount TEXT NOT NULL,
	ts TEXT NOT NULL,
	description TEXT,
	paid_by TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expenses_station_ts
	ON expenses(station_id, ts);

CREATE TABLE IF NOT EXISTS deposits (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	bank_name TEXT NOT NULL,
	account_number TEXT,
	amount TEXT NOT NULL,
	ts TEXT NOT NULL,
	reference TEXT,
	deposited_by TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deposits_station_ts
	ON deposits(station_id, ts);

CREATE TABLE IF NOT EXISTS loans (
	id TEXT PRIMARY KEY,
	station_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	borrower TEXT NOT NULL,
	amount TEXT NOT NULL,
	ts TEXT NOT NULL,
	due_date TEXT,
	description TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loans_station_ts
	ON loans(station_id, ts)
`
