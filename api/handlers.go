/*
handlers.go - HTTP API handlers for the station back office

PURPOSE:
  Exposes the safe ledger, settlement recording, credit accounts and the
  consolidated report over REST. Handles HTTP request/response, JSON
  serialization, and delegates to the domain packages.

ENDPOINTS:
  Reports:
    GET    /api/stations/{id}/report       ?date=YYYY-MM-DD or ?from=&to=

  Topology and prices:
    POST   /api/stations                   Register station and topology
    GET    /api/stations/{id}              Station details
    POST   /api/stations/{id}/safe         Open the station's safe
    GET    /api/stations/{id}/safe         The station's safe
    POST   /api/prices                     Schedule a price
    GET    /api/prices                     ?station_id=&fuel_id= (full history)
    GET    /api/prices/resolve             ?station_id=&fuel_id=&as_of=
    GET    /api/prices/next                Next scheduled change after as_of
    POST   /api/shifts                     Save a shift with its assignments

  Safe ledger:
    GET    /api/safes                      All safes
    GET    /api/safes/{id}                 Safe with cached balance
    POST   /api/safes/{id}/transactions    Post an entry
    GET    /api/safes/{id}/transactions    ?from=&to= (dates)
    GET    /api/safes/{id}/balance         ?as_of= (date or RFC 3339)
    GET    /api/safes/{id}/audit           Full replay check

  Settlement and credit:
    POST   /api/pos/batches, /api/cheques, /api/expenses, /api/deposits, /api/loans
    POST   /api/credit/customers, /api/credit/sales, /api/credit/payments
    GET    /api/credit/customers?station_id=, /api/credit/customers/{id}

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert float64 amounts to decimal at the edge
  3. Call domain logic (ledger, recorder, credit, report)
  4. Serialize response
  5. Map errors to a status in one place (writeDomainError)

ERROR HANDLING:
  - 400: Validation errors, malformed window, credit limit exceeded
  - 404: Unknown station, safe or customer
  - 409: Duplicate idempotency key or identity
  - 500: Internal errors (never a partial report)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/report"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/station"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API needs from persistence. Both store/memory and
// store/sqldb satisfy it.
type Store interface {
	station.Registry
	station.Catalog
	station.PriceStore
	station.ShiftReader
	settlement.Source
	credit.Store
	safe.TxStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Ledger   *safe.Ledger
	Recorder *settlement.Recorder
	Credit   *credit.Service
	Reports  *report.Aggregator

	// Auditor is optional; without it the audit-run endpoints return 404.
	Auditor *AuditScheduler

	// Location interprets YYYY-MM-DD query parameters.
	Location *time.Location

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the domain services over one store.
func NewHandler(store Store, reportOpts ...report.Option) *Handler {
	ledger := safe.NewLedger(store)
	creditSvc := credit.NewService(store, ledger)
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		Recorder: settlement.NewRecorder(ledger),
		Credit:   creditSvc,
		Reports: report.NewAggregator(report.Deps{
			Catalog:     store,
			Shifts:      store,
			Prices:      store,
			Settlements: store,
			Customers:   creditSvc,
			Cash:        ledger,
		}, reportOpts...),
		Location: time.UTC,
	}
}

// =============================================================================
// REPORT
// =============================================================================

// GetReport returns the consolidated report for one day or a date range.
// GET /api/stations/{id}/report?date=2025-03-10
// GET /api/stations/{id}/report?from=2025-03-01&to=2025-03-31
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "id")
	q := r.URL.Query()

	var (
		window core.Window
		err    error
	)
	switch {
	case q.Get("date") != "":
		window, err = core.ParseDay(q.Get("date"), h.Location)
	case q.Get("from") != "" || q.Get("to") != "":
		window, err = core.ParseRange(q.Get("from"), q.Get("to"), h.Location)
	default:
		err = core.Invalid("date", "date or from/to is required")
	}
	if err != nil {
		writeDomainError(w, "Invalid report window", err)
		return
	}

	view, err := h.Reports.View(r.Context(), stationID, window)
	if err != nil {
		writeDomainError(w, "Failed to generate report", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// =============================================================================
// TOPOLOGY AND PRICES
// =============================================================================

// CreateStation registers a station and its fuels, tanks, pumps and nozzles.
// POST /api/stations
func (h *Handler) CreateStation(w http.ResponseWriter, r *http.Request) {
	var req StationRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" || req.Name == "" {
		writeDomainError(w, "Invalid station", core.Invalid("id", "id and name are required"))
		return
	}

	ctx := r.Context()
	st := station.Station{
		ID:               req.ID,
		Name:             req.Name,
		Active:           true,
		CurrencyDecimals: req.CurrencyDecimals,
		CreatedAt:        time.Now().UTC(),
	}
	if existing, err := h.Store.GetStation(ctx, req.ID); err == nil {
		st.CreatedAt = existing.CreatedAt
	}

	if err := h.saveTopology(ctx, st, req); err != nil {
		writeDomainError(w, "Failed to save station", err)
		return
	}
	log.Printf("[API] Saved station %s (%d fuels, %d tanks, %d pumps, %d nozzles)",
		st.ID, len(req.Fuels), len(req.Tanks), len(req.Pumps), len(req.Nozzles))
	writeJSON(w, http.StatusCreated, toStationDTO(st))
}

func (h *Handler) saveTopology(ctx context.Context, st station.Station, req StationRequestDTO) error {
	if err := h.Store.SaveStation(ctx, st); err != nil {
		return err
	}
	for _, f := range req.Fuels {
		if f.ID == "" || f.Category == "" {
			return core.Invalid("fuels", "id and category are required")
		}
		if err := h.Store.SaveFuel(ctx, station.Fuel{ID: f.ID, Name: f.Name, Category: station.FuelCategory(strings.ToUpper(f.Category))}); err != nil {
			return err
		}
	}
	for _, t := range req.Tanks {
		if err := h.Store.SaveTank(ctx, station.Tank{ID: t.ID, StationID: st.ID, FuelID: t.FuelID, Capacity: dec(t.Capacity), CurrentLevel: dec(t.CurrentLevel)}); err != nil {
			return err
		}
	}
	for _, p := range req.Pumps {
		if err := h.Store.SavePump(ctx, station.Pump{ID: p.ID, StationID: st.ID, Number: p.Number}); err != nil {
			return err
		}
	}
	for _, n := range req.Nozzles {
		if err := h.Store.SaveNozzle(ctx, station.Nozzle{ID: n.ID, PumpID: n.PumpID, TankID: n.TankID}); err != nil {
			return err
		}
	}
	return nil
}

// GetStation returns a single station.
func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.GetStation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Station not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toStationDTO(*st))
}

func toStationDTO(st station.Station) StationDTO {
	return StationDTO{
		ID:               st.ID,
		Name:             st.Name,
		Active:           st.Active,
		CurrencyDecimals: st.Decimals(),
		CreatedAt:        formatTime(st.CreatedAt),
	}
}

// CreatePrice schedules a tariff. Prices are never edited, a later
// effective date supersedes.
// POST /api/prices
func (h *Handler) CreatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequestDTO
	if !decode(w, r, &req) {
		return
	}
	effective, err := h.parseInstant("effective_date", req.EffectiveDate, false)
	if err == nil && (req.StationID == "" || req.FuelID == "") {
		err = core.Invalid("station_id", "station_id and fuel_id are required")
	}
	if err == nil && req.Price <= 0 {
		err = &core.ValidationError{Field: "price", Message: "must be positive", Err: core.ErrInvalidAmount}
	}
	if err != nil {
		writeDomainError(w, "Invalid price", err)
		return
	}

	p := station.Price{
		ID:            req.ID,
		StationID:     req.StationID,
		FuelID:        req.FuelID,
		Price:         dec(req.Price),
		EffectiveDate: effective,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := h.Store.AddPrice(r.Context(), p); err != nil {
		writeDomainError(w, "Failed to add price", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPriceDTO(p))
}

func toPriceDTO(p station.Price) PriceDTO {
	return PriceDTO{
		ID:            p.ID,
		StationID:     p.StationID,
		FuelID:        p.FuelID,
		Price:         money(p.Price),
		EffectiveDate: formatTime(p.EffectiveDate),
		IsActive:      p.IsActive,
	}
}

// priceQuery reads station_id and fuel_id and loads their schedule.
func (h *Handler) priceQuery(w http.ResponseWriter, r *http.Request) (station.Schedule, bool) {
	q := r.URL.Query()
	stationID, fuelID := q.Get("station_id"), q.Get("fuel_id")
	if stationID == "" || fuelID == "" {
		writeDomainError(w, "Invalid query", core.Invalid("station_id", "station_id and fuel_id are required"))
		return nil, false
	}
	sched, err := station.NewResolver(h.Store).Schedule(r.Context(), stationID, fuelID)
	if err != nil {
		writeDomainError(w, "Failed to load prices", err)
		return nil, false
	}
	return sched, true
}

// GetPriceSchedule lists every tariff of a fuel, oldest first.
// GET /api/prices?station_id=st-1&fuel_id=p92
func (h *Handler) GetPriceSchedule(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.priceQuery(w, r)
	if !ok {
		return
	}
	dtos := make([]PriceDTO, len(sched))
	for i, p := range sched {
		dtos[i] = toPriceDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetNextPrice returns the first tariff scheduled after as_of (default now).
// GET /api/prices/next?station_id=st-1&fuel_id=p92
func (h *Handler) GetNextPrice(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.parseInstant("as_of", r.URL.Query().Get("as_of"), true)
	if err != nil {
		writeDomainError(w, "Invalid as_of", err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	sched, ok := h.priceQuery(w, r)
	if !ok {
		return
	}
	next, found := sched.Next(asOf)
	if !found {
		writeError(w, http.StatusNotFound, "No price change scheduled", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPriceDTO(next))
}

// ResolvePrice returns the price in force at as_of (default now).
// GET /api/prices/resolve?station_id=st-1&fuel_id=p92&as_of=2025-03-10T14:00:00Z
func (h *Handler) ResolvePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stationID, fuelID := q.Get("station_id"), q.Get("fuel_id")
	if stationID == "" || fuelID == "" {
		writeDomainError(w, "Invalid query", core.Invalid("station_id", "station_id and fuel_id are required"))
		return
	}
	asOf, err := h.parseInstant("as_of", q.Get("as_of"), true)
	if err != nil {
		writeDomainError(w, "Invalid as_of", err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	price, found, err := station.NewResolver(h.Store).Resolve(r.Context(), fuelID, stationID, asOf)
	if err != nil {
		writeDomainError(w, "Failed to resolve price", err)
		return
	}
	writeJSON(w, http.StatusOK, ResolvedPriceDTO{
		StationID: stationID,
		FuelID:    fuelID,
		AsOf:      formatTime(asOf),
		Found:     found,
		Price:     money(price),
	})
}

// SaveShift stores a shift and replaces its assignments.
// POST /api/shifts
func (h *Handler) SaveShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftRequestDTO
	if !decode(w, r, &req) {
		return
	}
	sh, err := h.shiftFromDTO(req)
	if err != nil {
		writeDomainError(w, "Invalid shift", err)
		return
	}
	if _, err := h.Store.GetStation(r.Context(), sh.StationID); err != nil {
		writeDomainError(w, "Station not found", err)
		return
	}
	if err := h.Store.SaveShift(r.Context(), sh); err != nil {
		writeDomainError(w, "Failed to save shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": sh.ID, "assignments": len(sh.Assignments)})
}

func (h *Handler) shiftFromDTO(req ShiftRequestDTO) (station.Shift, error) {
	if req.ID == "" || req.StationID == "" {
		return station.Shift{}, core.Invalid("id", "id and station_id are required")
	}
	start, err := h.parseInstant("start_time", req.StartTime, false)
	if err != nil {
		return station.Shift{}, err
	}
	sh := station.Shift{
		ID:        req.ID,
		StationID: req.StationID,
		StartTime: start,
		Status:    station.ShiftStatus(strings.ToUpper(req.Status)),
		Declared: station.DeclaredTender{
			Cash:             dec(req.Declared.Cash),
			Card:             dec(req.Declared.Card),
			Credit:           dec(req.Declared.Credit),
			Cheque:           dec(req.Declared.Cheque),
			TransactionCount: req.Declared.TransactionCount,
		},
		ShopSales: dec(req.ShopSales),
	}
	if sh.Status == "" {
		sh.Status = station.ShiftOpen
	}
	if sh.Status != station.ShiftOpen && sh.Status != station.ShiftClosed {
		return station.Shift{}, core.Invalid("status", "must be OPEN or CLOSED")
	}
	if req.EndTime != "" {
		end, err := h.parseInstant("end_time", req.EndTime, false)
		if err != nil {
			return station.Shift{}, err
		}
		sh.EndTime = &end
	}

	for _, a := range req.Assignments {
		if a.ID == "" || a.NozzleID == "" {
			return station.Shift{}, core.Invalid("assignments", "id and nozzle_id are required")
		}
		as := station.ShiftAssignment{
			ID:                a.ID,
			ShiftID:           sh.ID,
			NozzleID:          a.NozzleID,
			PumperID:          a.PumperID,
			StartMeterReading: dec(a.StartReading),
			Status:            station.AssignmentStatus(strings.ToUpper(a.Status)),
		}
		if as.Status == "" {
			as.Status = station.AssignmentActive
		}
		if a.EndReading != nil {
			end := dec(*a.EndReading)
			as.EndMeterReading = &end
		}
		sh.Assignments = append(sh.Assignments, as)
	}
	return sh, nil
}

// =============================================================================
// SAFE LEDGER
// =============================================================================

// OpenSafe creates the station's safe with its opening balance.
// POST /api/stations/{id}/safe
func (h *Handler) OpenSafe(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "id")
	var req OpenSafeRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.Store.GetStation(r.Context(), stationID); err != nil {
		writeDomainError(w, "Station not found", err)
		return
	}
	s, err := h.Ledger.Open(r.Context(), stationID, dec(req.OpeningBalance))
	if err != nil {
		writeDomainError(w, "Failed to open safe", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSafeDTO(s))
}

// GetStationSafe returns the station's safe.
func (h *Handler) GetStationSafe(w http.ResponseWriter, r *http.Request) {
	s, err := h.Ledger.SafeForStation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Safe not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toSafeDTO(s))
}

// ListSafes returns every safe.
func (h *Handler) ListSafes(w http.ResponseWriter, r *http.Request) {
	safes, err := h.Ledger.Safes(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list safes", err)
		return
	}
	dtos := make([]SafeDTO, len(safes))
	for i := range safes {
		dtos[i] = toSafeDTO(&safes[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSafe returns a safe with its cached balance.
func (h *Handler) GetSafe(w http.ResponseWriter, r *http.Request) {
	s, err := h.Ledger.GetSafe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Safe not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toSafeDTO(s))
}

// PostTransaction appends one ledger entry.
// POST /api/safes/{id}/transactions
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req PostTransactionRequestDTO
	if !decode(w, r, &req) {
		return
	}
	ts, err := h.parseInstant("timestamp", req.Timestamp, true)
	if err != nil {
		writeDomainError(w, "Invalid timestamp", err)
		return
	}

	post := safe.PostRequest{
		SafeID:         chi.URLParam(r, "id"),
		Type:           safe.TransactionType(strings.ToUpper(req.Type)),
		Amount:         dec(req.Amount),
		Direction:      safe.Effect(strings.ToUpper(req.Direction)),
		Timestamp:      ts,
		Description:    req.Description,
		PerformedBy:    req.PerformedBy,
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, l := range req.Links {
		post.Links = append(post.Links, safe.Link{Kind: l.Kind, ID: l.ID})
	}

	tx, err := h.Ledger.Post(r.Context(), post)
	if err != nil {
		writeDomainError(w, "Failed to post transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// GetTransactions lists a safe's entries in ledger order.
// GET /api/safes/{id}/transactions?from=2025-03-01&to=2025-03-31
// Without from/to, today in the handler's location.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		window core.Window
		err    error
	)
	if q.Get("from") == "" && q.Get("to") == "" {
		window = core.Day(time.Now().In(h.Location))
	} else {
		window, err = core.ParseRange(q.Get("from"), q.Get("to"), h.Location)
	}
	if err != nil {
		writeDomainError(w, "Invalid window", err)
		return
	}

	txs, err := h.Ledger.Transactions(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetBalance replays the ledger up to as_of. A bare date means the end of
// that day; without as_of, now.
// GET /api/safes/{id}/balance?as_of=2025-03-10
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	safeID := chi.URLParam(r, "id")
	raw := r.URL.Query().Get("as_of")

	asOf, err := h.parseInstant("as_of", raw, true)
	if err == nil && len(raw) == len(core.DateLayout) {
		asOf = core.Day(asOf).To
	}
	if err != nil {
		writeDomainError(w, "Invalid as_of", err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	balance, err := h.Ledger.BalanceAsOf(r.Context(), safeID, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{SafeID: safeID, AsOf: formatTime(asOf), Balance: money(balance)})
}

// AuditSafe replays the full ledger and reports drift.
// GET /api/safes/{id}/audit
func (h *Handler) AuditSafe(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to audit safe", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(res))
}

// =============================================================================
// SETTLEMENT RECORDS
// =============================================================================

func postOptions(o PostOptionsDTO) settlement.PostOptions {
	return settlement.PostOptions{
		PostToSafe:     o.PostToSafe,
		PerformedBy:    o.PerformedBy,
		IdempotencyKey: o.IdempotencyKey,
	}
}

func writeRecorded(w http.ResponseWriter, rec settlement.Recorded) {
	dto := RecordedDTO{ID: rec.RecordID}
	if rec.Transaction != nil {
		tx := toTransactionDTO(*rec.Transaction)
		dto.Transaction = &tx
	}
	writeJSON(w, http.StatusCreated, dto)
}

// RecordPOSBatch stores a card terminal batch.
// POST /api/pos/batches
func (h *Handler) RecordPOSBatch(w http.ResponseWriter, r *http.Request) {
	var req PosBatchRequestDTO
	if !decode(w, r, &req) {
		return
	}
	ts, err := h.parseInstant("timestamp", req.Timestamp, true)
	if err != nil {
		writeDomainError(w, "Invalid timestamp", err)
		return
	}
	b := settlement.PosBatch{StationID: req.StationID, ShiftID: req.ShiftID, Timestamp: ts}
	for _, e := range req.Entries {
		b.Entries = append(b.Entries, settlement.PosTerminalEntry{
			TerminalID:       e.TerminalID,
			TerminalName:     e.TerminalName,
			BankName:         e.BankName,
			Visa:             dec(e.Visa),
			Master:           dec(e.Master),
			Amex:             dec(e.Amex),
			QR:               dec(e.QR),
			TransactionCount: e.TransactionCount,
		})
	}

	rec, err := h.Recorder.RecordPOSBatch(r.Context(), b, postOptions(req.PostOptionsDTO))
	if err != nil {
		writeDomainError(w, "Failed to record POS batch", err)
		return
	}
	writeRecorded(w, rec)
}

// RecordCheque stores a received cheque.
// POST /api/cheques
func (h *Handler) RecordCheque(w http.ResponseWriter, r *http.Request) {
	var req ChequeRequestDTO
	if !decode(w, r, &req) {
		return
	}
	received, err := h.parseInstant("received_date", req.ReceivedDate, true)
	if err != nil {
		writeDomainError(w, "Invalid received_date", err)
		return
	}
	rec, err := h.Recorder.RecordCheque(r.Context(), settlement.Cheque{
		StationID:    req.StationID,
		Number:       req.Number,
		BankName:     req.BankName,
		PartyName:    req.PartyName,
		CustomerID:   req.CustomerID,
		Amount:       dec(req.Amount),
		Status:       settlement.ChequeStatus(strings.ToUpper(req.Status)),
		ReceivedDate: received,
	}, postOptions(req.PostOptionsDTO))
	if err != nil {
		writeDomainError(w, "Failed to record cheque", err)
		return
	}
	writeRecorded(w, rec)
}

// RecordExpense stores an expense.
// POST /api/expenses
func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequestDTO
	if !decode(w, r, &req) {
		return
	}
	ts, err := h.parseInstant("timestamp", req.Timestamp, true)
	if err != nil {
		writeDomainError(w, "Invalid timestamp", err)
		return
	}
	rec, err := h.Recorder.RecordExpense(r.Context(), settlement.Expense{
		StationID:   req.StationID,
		Category:    req.Category,
		Amount:      dec(req.Amount),
		Timestamp:   ts,
		Description: req.Description,
		PaidBy:      req.PaidBy,
	}, postOptions(req.PostOptionsDTO))
	if err != nil {
		writeDomainError(w, "Failed to record expense", err)
		return
	}
	writeRecorded(w, rec)
}

// RecordDeposit stores a bank deposit.
// POST /api/deposits
func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequestDTO
	if !decode(w, r, &req) {
		return
	}
	ts, err := h.parseInstant("timestamp", req.Timestamp, true)
	if err != nil {
		writeDomainError(w, "Invalid timestamp", err)
		return
	}
	rec, err := h.Recorder.RecordDeposit(r.Context(), settlement.Deposit{
		StationID:     req.StationID,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Amount:        dec(req.Amount),
		Timestamp:     ts,
		Reference:     req.Reference,
		DepositedBy:   req.DepositedBy,
	}, postOptions(req.PostOptionsDTO))
	if err != nil {
		writeDomainError(w, "Failed to record deposit", err)
		return
	}
	writeRecorded(w, rec)
}

// RecordLoan stores a loan given out.
// POST /api/loans
func (h *Handler) RecordLoan(w http.ResponseWriter, r *http.Request) {
	var req LoanRequestDTO
	if !decode(w, r, &req) {
		return
	}
	ts, err := h.parseInstant("timestamp", req.Timestamp, true)
	if err != nil {
		writeDomainError(w, "Invalid timestamp", err)
		return
	}
	loan := settlement.Loan{
		StationID:   req.StationID,
		Kind:        settlement.LoanKind(strings.ToUpper(req.Kind)),
		Borrower:    req.Borrower,
		Amount:      dec(req.Amount),
		Timestamp:   ts,
		Description: req.Description,
	}
	if req.DueDate != "" {
		due, err := h.parseInstant("due_date", req.DueDate, false)
		if err != nil {
			writeDomainError(w, "Invalid due_date", err)
			return
		}
		loan.DueDate = &due
	}

	rec, err := h.Recorder.RecordLoan(r.Context(), loan, postOptions(req.PostOptionsDTO))
	if err != nil {
		writeDomainError(w, "Failed to record loan", err)
		return
	}
	writeRecorded(w, rec)
}

// =============================================================================
// CREDIT
// =============================================================================

// CreateCustomer opens a credit account. credit_limit 0 means unlimited.
// POST /api/credit/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequestDTO
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Credit.CreateCustomer(r.Context(), credit.Customer{
		ID:          req.ID,
		StationID:   req.StationID,
		Name:        req.Name,
		Phone:       req.Phone,
		CreditLimit: dec(req.CreditLimit),
	})
	if err != nil {
		writeDomainError(w, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// ListCustomers returns a station's credit customers by name.
// GET /api/credit/customers?station_id=st-1
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeDomainError(w, "Invalid query", core.Invalid("station_id", "required"))
		return
	}
	customers, err := h.Store.ListCustomers(r.Context(), stationID)
	if err != nil {
		writeDomainError(w, "Failed to list customers", err)
		return
	}
	dtos := make([]CustomerDTO, len(customers))
	for i := range customers {
		dtos[i] = toCustomerDTO(&customers[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomer returns one credit customer with its balance.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Credit.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Customer not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

// RecordCreditSale books fuel sold on account.
// POST /api/credit/sales
func (h *Handler) RecordCreditSale(w http.ResponseWriter, r *http.Request) {
	var req CreditSaleRequestDTO
	if !decode(w, r, &req) {
		return
	}
	ts, err := h.parseInstant("timestamp", req.Timestamp, true)
	if err != nil {
		writeDomainError(w, "Invalid timestamp", err)
		return
	}
	c, err := h.Credit.RecordSale(r.Context(), settlement.CreditSale{
		CustomerID: req.CustomerID,
		ShiftID:    req.ShiftID,
		FuelID:     req.FuelID,
		Liters:     dec(req.Liters),
		Amount:     dec(req.Amount),
		Timestamp:  ts,
		Reference:  req.Reference,
	})
	if err != nil {
		writeDomainError(w, "Failed to record credit sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// RecordCreditPayment books money received against an account.
// POST /api/credit/payments
func (h *Handler) RecordCreditPayment(w http.ResponseWriter, r *http.Request) {
	var req CreditPaymentRequestDTO
	if !decode(w, r, &req) {
		return
	}
	ts, err := h.parseInstant("timestamp", req.Timestamp, true)
	if err != nil {
		writeDomainError(w, "Invalid timestamp", err)
		return
	}
	c, tx, err := h.Credit.RecordPayment(r.Context(), settlement.CreditPayment{
		CustomerID: req.CustomerID,
		Amount:     dec(req.Amount),
		Method:     settlement.PaymentMethod(strings.ToUpper(req.Method)),
		Timestamp:  ts,
		Reference:  req.Reference,
		ReceivedBy: req.ReceivedBy,
	}, credit.PaymentOptions{PostToSafe: req.PostToSafe, IdempotencyKey: req.IdempotencyKey})
	if err != nil {
		writeDomainError(w, "Failed to record credit payment", err)
		return
	}

	resp := CreditPaymentResponseDTO{Customer: toCustomerDTO(c)}
	if tx != nil {
		dto := toTransactionDTO(*tx)
		resp.Transaction = &dto
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseInstant accepts RFC 3339 or YYYY-MM-DD (start of day in h.Location).
// Empty returns the zero time when optional; callers treat it as "now".
func (h *Handler) parseInstant(field, s string, optional bool) (time.Time, error) {
	if s == "" {
		if optional {
			return time.Time{}, nil
		}
		return time.Time{}, core.Invalid(field, "required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(core.DateLayout, s, h.Location); err == nil {
		return t, nil
	}
	return time.Time{}, core.Invalid(field, "use RFC 3339 or YYYY-MM-DD")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: codeFor(status)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's sentinel.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s: %v", message, err)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsConflict(err):
		return http.StatusConflict
	case core.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "internal"
	}
}
