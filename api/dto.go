/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These are separate from
  domain types so the API can evolve without touching the ledger or report
  arithmetic.

CONVENTIONS:
  - snake_case field names
  - Money, liters and meter readings are JSON numbers (float64). They are
    converted to decimal.Decimal at the edge and never computed on as floats
  - Dates are ISO 8601 (YYYY-MM-DD), instants are RFC 3339
  - Optional fields use omitempty

SEE ALSO:
  - handlers.go: Uses these DTOs
  - report/view.go: The report response is report.View as is
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/safe"
)

// =============================================================================
// TOPOLOGY AND PRICES
// =============================================================================

// StationRequestDTO registers a station together with its topology.
// Saving the same IDs again updates them.
type StationRequestDTO struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	CurrencyDecimals int32       `json:"currency_decimals,omitempty"`
	Fuels            []FuelDTO   `json:"fuels,omitempty"`
	Tanks            []TankDTO   `json:"tanks,omitempty"`
	Pumps            []PumpDTO   `json:"pumps,omitempty"`
	Nozzles          []NozzleDTO `json:"nozzles,omitempty"`
}

type FuelDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type TankDTO struct {
	ID           string  `json:"id"`
	FuelID       string  `json:"fuel_id"`
	Capacity     float64 `json:"capacity"`
	CurrentLevel float64 `json:"current_level"`
}

type PumpDTO struct {
	ID     string `json:"id"`
	Number string `json:"number"`
}

type NozzleDTO struct {
	ID     string `json:"id"`
	PumpID string `json:"pump_id"`
	TankID string `json:"tank_id"`
}

type StationDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Active           bool   `json:"active"`
	CurrencyDecimals int32  `json:"currency_decimals"`
	CreatedAt        string `json:"created_at"`
}

// PriceRequestDTO schedules a tariff.
type PriceRequestDTO struct {
	ID            string  `json:"id,omitempty"`
	StationID     string  `json:"station_id"`
	FuelID        string  `json:"fuel_id"`
	Price         float64 `json:"price"`
	EffectiveDate string  `json:"effective_date"` // RFC 3339 or YYYY-MM-DD
}

type PriceDTO struct {
	ID            string  `json:"id"`
	StationID     string  `json:"station_id"`
	FuelID        string  `json:"fuel_id"`
	Price         float64 `json:"price"`
	EffectiveDate string  `json:"effective_date"`
	IsActive      bool    `json:"is_active"`
}

type ResolvedPriceDTO struct {
	StationID string  `json:"station_id"`
	FuelID    string  `json:"fuel_id"`
	AsOf      string  `json:"as_of"`
	Found     bool    `json:"found"`
	Price     float64 `json:"price"`
}

// =============================================================================
// SHIFTS
// =============================================================================

type ShiftRequestDTO struct {
	ID          string                 `json:"id"`
	StationID   string                 `json:"station_id"`
	StartTime   string                 `json:"start_time"`
	EndTime     string                 `json:"end_time,omitempty"`
	Status      string                 `json:"status"`
	Declared    DeclaredTenderDTO      `json:"declared"`
	ShopSales   float64                `json:"shop_sales"`
	Assignments []AssignmentRequestDTO `json:"assignments"`
}

type DeclaredTenderDTO struct {
	Cash             float64 `json:"cash"`
	Card             float64 `json:"card"`
	Credit           float64 `json:"credit"`
	Cheque           float64 `json:"cheque"`
	TransactionCount int     `json:"transaction_count,omitempty"`
}

type AssignmentRequestDTO struct {
	ID           string   `json:"id"`
	NozzleID     string   `json:"nozzle_id"`
	PumperID     string   `json:"pumper_id,omitempty"`
	StartReading float64  `json:"start_reading"`
	EndReading   *float64 `json:"end_reading,omitempty"`
	Status       string   `json:"status"`
}

// =============================================================================
// SAFE LEDGER
// =============================================================================

type OpenSafeRequestDTO struct {
	OpeningBalance float64 `json:"opening_balance"`
}

type SafeDTO struct {
	ID             string  `json:"id"`
	StationID      string  `json:"station_id"`
	OpeningBalance float64 `json:"opening_balance"`
	CurrentBalance float64 `json:"current_balance"`
	UpdatedAt      string  `json:"updated_at"`
}

// PostTransactionRequestDTO posts one ledger entry. Direction is only read
// for ADJUSTMENT ("CREDIT" or "DEBIT").
type PostTransactionRequestDTO struct {
	Type           string    `json:"type"`
	Amount         float64   `json:"amount"`
	Direction      string    `json:"direction,omitempty"`
	Timestamp      string    `json:"timestamp,omitempty"` // RFC 3339, empty = now
	Description    string    `json:"description,omitempty"`
	PerformedBy    string    `json:"performed_by,omitempty"`
	Links          []LinkDTO `json:"links,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

type LinkDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type TransactionDTO struct {
	ID            string    `json:"id"`
	SafeID        string    `json:"safe_id"`
	Seq           int64     `json:"seq"`
	Type          string    `json:"type"`
	Effect        string    `json:"effect"`
	Amount        float64   `json:"amount"`
	BalanceBefore float64   `json:"balance_before"`
	BalanceAfter  float64   `json:"balance_after"`
	Timestamp     string    `json:"timestamp"`
	Description   string    `json:"description,omitempty"`
	PerformedBy   string    `json:"performed_by,omitempty"`
	Links         []LinkDTO `json:"links,omitempty"`
	CreatedAt     string    `json:"created_at"`
}

type BalanceDTO struct {
	SafeID  string  `json:"safe_id"`
	AsOf    string  `json:"as_of"`
	Balance float64 `json:"balance"`
}

type DriftDTO struct {
	TransactionID string  `json:"transaction_id"`
	Seq           int64   `json:"seq"`
	Timestamp     string  `json:"timestamp"`
	Stored        float64 `json:"stored_balance_before"`
	Replayed      float64 `json:"replayed_balance_before"`
}

type AuditDTO struct {
	SafeID           string     `json:"safe_id"`
	Entries          int        `json:"entries"`
	Consistent       bool       `json:"consistent"`
	Drifts           []DriftDTO `json:"drifts"`
	ArithmeticErrors []string   `json:"arithmetic_errors"`
	CachedBalance    float64    `json:"cached_balance"`
	LatestStored     float64    `json:"latest_stored"`
	ReplayedBalance  float64    `json:"replayed_balance"`
}

// =============================================================================
// SETTLEMENT RECORDS
// =============================================================================

// PostOptionsDTO is shared by every settlement request.
type PostOptionsDTO struct {
	PostToSafe     bool   `json:"post_to_safe,omitempty"`
	PerformedBy    string `json:"performed_by,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type PosBatchRequestDTO struct {
	PostOptionsDTO
	StationID string                `json:"station_id"`
	ShiftID   string                `json:"shift_id,omitempty"`
	Timestamp string                `json:"timestamp,omitempty"`
	Entries   []PosTerminalEntryDTO `json:"entries"`
}

type PosTerminalEntryDTO struct {
	TerminalID       string  `json:"terminal_id"`
	TerminalName     string  `json:"terminal_name,omitempty"`
	BankName         string  `json:"bank_name,omitempty"`
	Visa             float64 `json:"visa"`
	Master           float64 `json:"master"`
	Amex             float64 `json:"amex"`
	QR               float64 `json:"qr"`
	TransactionCount int     `json:"transaction_count"`
}

type ChequeRequestDTO struct {
	PostOptionsDTO
	StationID    string  `json:"station_id"`
	Number       string  `json:"number"`
	BankName     string  `json:"bank_name,omitempty"`
	PartyName    string  `json:"party_name,omitempty"`
	CustomerID   string  `json:"customer_id,omitempty"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status,omitempty"`
	ReceivedDate string  `json:"received_date,omitempty"`
}

type ExpenseRequestDTO struct {
	PostOptionsDTO
	StationID   string  `json:"station_id"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Description string  `json:"description,omitempty"`
	PaidBy      string  `json:"paid_by,omitempty"`
}

type DepositRequestDTO struct {
	PostOptionsDTO
	StationID     string  `json:"station_id"`
	BankName      string  `json:"bank_name"`
	AccountNumber string  `json:"account_number,omitempty"`
	Amount        float64 `json:"amount"`
	Timestamp     string  `json:"timestamp,omitempty"`
	Reference     string  `json:"reference,omitempty"`
	DepositedBy   string  `json:"deposited_by,omitempty"`
}

type LoanRequestDTO struct {
	PostOptionsDTO
	StationID   string  `json:"station_id"`
	Kind        string  `json:"kind,omitempty"`
	Borrower    string  `json:"borrower"`
	Amount      float64 `json:"amount"`
	Timestamp   string  `json:"timestamp,omitempty"`
	DueDate     string  `json:"due_date,omitempty"`
	Description string  `json:"description,omitempty"`
}

// RecordedDTO is returned by every settlement POST.
type RecordedDTO struct {
	ID          string          `json:"id"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

// =============================================================================
// CREDIT
// =============================================================================

type CustomerRequestDTO struct {
	ID          string  `json:"id,omitempty"`
	StationID   string  `json:"station_id"`
	Name        string  `json:"name"`
	Phone       string  `json:"phone,omitempty"`
	CreditLimit float64 `json:"credit_limit"`
}

type CustomerDTO struct {
	ID             string  `json:"id"`
	StationID      string  `json:"station_id"`
	Name           string  `json:"name"`
	Phone          string  `json:"phone,omitempty"`
	CreditLimit    float64 `json:"credit_limit"`
	CurrentBalance float64 `json:"current_balance"`
	Active         bool    `json:"active"`
}

type CreditSaleRequestDTO struct {
	CustomerID string  `json:"customer_id"`
	ShiftID    string  `json:"shift_id,omitempty"`
	FuelID     string  `json:"fuel_id,omitempty"`
	Liters     float64 `json:"liters"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp,omitempty"`
	Reference  string  `json:"reference,omitempty"`
}

type CreditPaymentRequestDTO struct {
	CustomerID     string  `json:"customer_id"`
	Amount         float64 `json:"amount"`
	Method         string  `json:"method,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`
	Reference      string  `json:"reference,omitempty"`
	ReceivedBy     string  `json:"received_by,omitempty"`
	PostToSafe     bool    `json:"post_to_safe,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

type CreditPaymentResponseDTO struct {
	Customer    CustomerDTO     `json:"customer"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

// =============================================================================
// SCENARIOS AND AUDIT RUNS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StationID   string `json:"station_id"`
}

// AuditRunDTO summarizes one pass of the audit scheduler.
type AuditRunDTO struct {
	StartedAt    string     `json:"started_at"`
	Duration     string     `json:"duration"`
	SafesChecked int        `json:"safes_checked"`
	Failed       []string   `json:"failed,omitempty"`
	Inconsistent []AuditDTO `json:"inconsistent"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) float64 { return d.InexactFloat64() }

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toSafeDTO(s *safe.Safe) SafeDTO {
	return SafeDTO{
		ID:             s.ID,
		StationID:      s.StationID,
		OpeningBalance: money(s.OpeningBalance),
		CurrentBalance: money(s.CurrentBalance),
		UpdatedAt:      formatTime(s.UpdatedAt),
	}
}

func toTransactionDTO(tx safe.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:            tx.ID,
		SafeID:        tx.SafeID,
		Seq:           tx.Seq,
		Type:          string(tx.Type),
		Effect:        string(tx.Effect),
		Amount:        money(tx.Amount),
		BalanceBefore: money(tx.BalanceBefore),
		BalanceAfter:  money(tx.BalanceAfter),
		Timestamp:     formatTime(tx.Timestamp),
		Description:   tx.Description,
		PerformedBy:   tx.PerformedBy,
		CreatedAt:     formatTime(tx.CreatedAt),
	}
	for _, l := range tx.Links {
		dto.Links = append(dto.Links, LinkDTO{Kind: l.Kind, ID: l.ID})
	}
	return dto
}

func toTransactionDTOs(txs []safe.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toAuditDTO(a safe.AuditResult) AuditDTO {
	dto := AuditDTO{
		SafeID:           a.SafeID,
		Entries:          a.Entries,
		Consistent:       a.Clean(),
		Drifts:           make([]DriftDTO, len(a.Drifts)),
		ArithmeticErrors: a.ArithmeticErrors,
		CachedBalance:    money(a.CachedBalance),
		LatestStored:     money(a.LatestStored),
		ReplayedBalance:  money(a.ReplayedBalance),
	}
	if dto.ArithmeticErrors == nil {
		dto.ArithmeticErrors = []string{}
	}
	for i, d := range a.Drifts {
		dto.Drifts[i] = DriftDTO{
			TransactionID: d.TransactionID,
			Seq:           d.Seq,
			Timestamp:     formatTime(d.Timestamp),
			Stored:        money(d.Stored),
			Replayed:      money(d.Replayed),
		}
	}
	return dto
}

func toCustomerDTO(c *credit.Customer) CustomerDTO {
	return CustomerDTO{
		ID:             c.ID,
		StationID:      c.StationID,
		Name:           c.Name,
		Phone:          c.Phone,
		CreditLimit:    money(c.CreditLimit),
		CurrentBalance: money(c.CurrentBalance),
		Active:         c.Active,
	}
}
