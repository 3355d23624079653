/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a realistic
	station day, so the report, ledger and audit endpoints have something
	to show. Each scenario uses its own station ID and goes through the same
	services as the API (ledger, recorder, credit), never raw inserts.

AVAILABLE SCENARIOS:

	single-shift:     One petrol shift, 250 L at 385.00, declared exactly
	busy-day:         Two shifts, card batches, expenses, a deposit, credit
	meter-rollover:   A nozzle wrapping 99500 -> 200 plus one invalid reading
	backdated-entry:  A late posting that leaves drift for the audit to find

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-day", "date": "2025-03-10"}

NOTE:

	Loading a scenario whose station already exists returns 409. Scenarios
	never delete data.

SEE ALSO:
  - handlers.go: Same services the scenarios call
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/credit"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/station"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-shift",
		Name:        "Single Shift",
		Description: "One petrol shift, 250 L at 385.00, cash declared exactly",
		StationID:   "demo-single",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Two shifts, card batches, expenses, a bank deposit and a credit customer",
		StationID:   "demo-busy",
	},
	{
		ID:          "meter-rollover",
		Name:        "Meter Rollover",
		Description: "Totalizer wraps from 99500 to 200; a second nozzle has an invalid reading",
		StationID:   "demo-rollover",
	},
	{
		ID:          "backdated-entry",
		Name:        "Backdated Entry",
		Description: "A posting entered late, between two existing entries; the audit shows the drift",
		StationID:   "demo-backdated",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario loads a predefined scenario for the given business date
// (default: yesterday).
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
		Date       string `json:"date"`
	}
	if !decode(w, r, &req) {
		return
	}

	day := core.Day(time.Now().In(h.Location).AddDate(0, 0, -1)).From
	if req.Date != "" {
		win, err := core.ParseDay(req.Date, h.Location)
		if err != nil {
			writeDomainError(w, "Invalid date", err)
			return
		}
		day = win.From
	}

	var sc *ScenarioDTO
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			sc = &scenarios[i]
		}
	}
	if sc == nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetStation(ctx, sc.StationID); err == nil {
		writeError(w, http.StatusConflict, "Scenario already loaded", fmt.Errorf("station %s: %w", sc.StationID, core.ErrAlreadyExists))
		return
	}

	if err := h.loadScenario(ctx, sc.ID, sc.StationID, day); err != nil {
		writeDomainError(w, fmt.Sprintf("Failed to load scenario %s", sc.ID), err)
		return
	}
	h.currentScenario = sc.ID

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "loaded",
		"scenario":   sc.ID,
		"station_id": sc.StationID,
		"date":       day.Format(core.DateLayout),
	})
}

func (h *Handler) loadScenario(ctx context.Context, id, stationID string, day time.Time) error {
	switch id {
	case "single-shift":
		return h.loadSingleShiftScenario(ctx, stationID, day)
	case "busy-day":
		return h.loadBusyDayScenario(ctx, stationID, day)
	case "meter-rollover":
		return h.loadMeterRolloverScenario(ctx, stationID, day)
	case "backdated-entry":
		return h.loadBackdatedScenario(ctx, stationID, day)
	}
	return core.Invalid("scenario_id", "unknown scenario %s", id)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func reading(s string) *decimal.Decimal {
	d := amount(s)
	return &d
}

// seedStation creates a two-fuel station (petrol 385, diesel 360) with one
// pump and a nozzle per fuel. Nozzle IDs are "<station>-petrol" and
// "<station>-diesel".
func (h *Handler) seedStation(ctx context.Context, stationID, name string, day time.Time) error {
	req := StationRequestDTO{
		ID:   stationID,
		Name: name,
		Fuels: []FuelDTO{
			{ID: "p92", Name: "Petrol 92", Category: string(station.FuelPetrol)},
			{ID: "ad", Name: "Auto Diesel", Category: string(station.FuelDiesel)},
		},
		Tanks: []TankDTO{
			{ID: stationID + "-tk1", FuelID: "p92", Capacity: 13500, CurrentLevel: 9000},
			{ID: stationID + "-tk2", FuelID: "ad", Capacity: 13500, CurrentLevel: 7000},
		},
		Pumps: []PumpDTO{{ID: stationID + "-pm1", Number: "1"}},
		Nozzles: []NozzleDTO{
			{ID: stationID + "-petrol", PumpID: stationID + "-pm1", TankID: stationID + "-tk1"},
			{ID: stationID + "-diesel", PumpID: stationID + "-pm1", TankID: stationID + "-tk2"},
		},
	}
	st := station.Station{ID: stationID, Name: name, Active: true, CreatedAt: day.AddDate(0, 0, -30)}
	if err := h.saveTopology(ctx, st, req); err != nil {
		return err
	}

	effective := day.AddDate(0, 0, -7)
	for _, p := range []station.Price{
		{ID: stationID + "-pr-p92", FuelID: "p92", Price: amount("385")},
		{ID: stationID + "-pr-ad", FuelID: "ad", Price: amount("360")},
	} {
		p.StationID, p.EffectiveDate, p.IsActive, p.CreatedAt = stationID, effective, true, effective
		if err := h.Store.AddPrice(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) closedShift(ctx context.Context, stationID, id string, start, end time.Time,
	declared station.DeclaredTender, assignments ...station.ShiftAssignment) error {
	for i := range assignments {
		assignments[i].ShiftID = id
		assignments[i].Status = station.AssignmentClosed
	}
	return h.Store.SaveShift(ctx, station.Shift{
		ID: id, StationID: stationID, StartTime: start, EndTime: &end,
		Status: station.ShiftClosed, Declared: declared, ShopSales: decimal.Zero,
		Assignments: assignments,
	})
}

func cashOnly(s string) station.DeclaredTender {
	return station.DeclaredTender{Cash: amount(s), Card: decimal.Zero, Credit: decimal.Zero, Cheque: decimal.Zero}
}

func (h *Handler) loadSingleShiftScenario(ctx context.Context, stationID string, day time.Time) error {
	if err := h.seedStation(ctx, stationID, "Demo Single Shift", day); err != nil {
		return err
	}
	return h.closedShift(ctx, stationID, stationID+"-sh1", day.Add(6*time.Hour), day.Add(14*time.Hour), cashOnly("96250"),
		station.ShiftAssignment{ID: stationID + "-a1", NozzleID: stationID + "-petrol", StartMeterReading: amount("1000"), EndMeterReading: reading("1250")})
}

func (h *Handler) loadBusyDayScenario(ctx context.Context, stationID string, day time.Time) error {
	if err := h.seedStation(ctx, stationID, "Demo Busy Day", day); err != nil {
		return err
	}
	if _, err := h.Ledger.Open(ctx, stationID, amount("25000")); err != nil {
		return err
	}

	// Morning: 100 L petrol + 100 L diesel = 74500
	err := h.closedShift(ctx, stationID, stationID+"-am", day.Add(6*time.Hour), day.Add(14*time.Hour),
		station.DeclaredTender{Cash: amount("45000"), Card: amount("22500"), Credit: amount("7000"), Cheque: decimal.Zero, TransactionCount: 38},
		station.ShiftAssignment{ID: stationID + "-a1", NozzleID: stationID + "-petrol", StartMeterReading: amount("1000"), EndMeterReading: reading("1100")},
		station.ShiftAssignment{ID: stationID + "-a2", NozzleID: stationID + "-diesel", StartMeterReading: amount("5000"), EndMeterReading: reading("5100")})
	if err != nil {
		return err
	}
	// Evening: 60 L petrol = 23100, declared 400 short
	err = h.closedShift(ctx, stationID, stationID+"-pm", day.Add(14*time.Hour), day.Add(22*time.Hour), cashOnly("22700"),
		station.ShiftAssignment{ID: stationID + "-a3", NozzleID: stationID + "-petrol", StartMeterReading: amount("1100"), EndMeterReading: reading("1160")})
	if err != nil {
		return err
	}

	at := day.Add(14 * time.Hour)
	post := settlement.PostOptions{PostToSafe: true, PerformedBy: "manager"}
	sf, err := h.Ledger.SafeForStation(ctx, stationID)
	if err != nil {
		return err
	}
	for _, p := range []safe.PostRequest{
		{Type: safe.TxCashFuelSales, Amount: amount("45000"), Timestamp: at, Links: []safe.Link{{Kind: "shift", ID: stationID + "-am"}}},
		{Type: safe.TxCashFuelSales, Amount: amount("22700"), Timestamp: day.Add(22 * time.Hour), Links: []safe.Link{{Kind: "shift", ID: stationID + "-pm"}}},
	} {
		p.SafeID, p.PerformedBy = sf.ID, "manager"
		if _, err := h.Ledger.Post(ctx, p); err != nil {
			return err
		}
	}

	if _, err := h.Recorder.RecordPOSBatch(ctx, settlement.PosBatch{StationID: stationID, ShiftID: stationID + "-am", Timestamp: at,
		Entries: []settlement.PosTerminalEntry{
			{TerminalID: "T1", TerminalName: "Forecourt", BankName: "HNB", Visa: amount("12000"), Master: amount("6500"), TransactionCount: 11},
			{TerminalID: "T2", TerminalName: "Shop", BankName: "Sampath", Amex: amount("1500"), QR: amount("2500"), TransactionCount: 4},
		}}, settlement.PostOptions{}); err != nil {
		return err
	}
	if _, err := h.Recorder.RecordExpense(ctx, settlement.Expense{StationID: stationID, Category: "UTILITIES", Amount: amount("4200"), Timestamp: at, Description: "Electricity"}, post); err != nil {
		return err
	}
	if _, err := h.Recorder.RecordDeposit(ctx, settlement.Deposit{StationID: stationID, BankName: "BOC", Amount: amount("50000"), Timestamp: day.Add(15 * time.Hour)}, post); err != nil {
		return err
	}
	if _, err := h.Recorder.RecordCheque(ctx, settlement.Cheque{StationID: stationID, Number: "004512", BankName: "Commercial", PartyName: "Lanka Transport", Amount: amount("3000"), ReceivedDate: at}, settlement.PostOptions{}); err != nil {
		return err
	}

	cust, err := h.Credit.CreateCustomer(ctx, credit.Customer{StationID: stationID, Name: "Lanka Transport", CreditLimit: amount("100000")})
	if err != nil {
		return err
	}
	if _, err := h.Credit.RecordSale(ctx, settlement.CreditSale{CustomerID: cust.ID, FuelID: "ad", Liters: amount("19.44"), Amount: amount("7000"), Timestamp: day.Add(10 * time.Hour)}); err != nil {
		return err
	}
	_, _, err = h.Credit.RecordPayment(ctx, settlement.CreditPayment{CustomerID: cust.ID, Amount: amount("5000"), Timestamp: day.Add(16 * time.Hour)},
		credit.PaymentOptions{PostToSafe: true})
	return err
}

func (h *Handler) loadMeterRolloverScenario(ctx context.Context, stationID string, day time.Time) error {
	if err := h.seedStation(ctx, stationID, "Demo Meter Rollover", day); err != nil {
		return err
	}
	// 99500 -> 200 is 699 L; 90 -> 80 on diesel is excluded from sales.
	return h.closedShift(ctx, stationID, stationID+"-sh1", day.Add(6*time.Hour), day.Add(14*time.Hour), cashOnly("269115"),
		station.ShiftAssignment{ID: stationID + "-a1", NozzleID: stationID + "-petrol", StartMeterReading: amount("99500"), EndMeterReading: reading("200")},
		station.ShiftAssignment{ID: stationID + "-a2", NozzleID: stationID + "-diesel", StartMeterReading: amount("90"), EndMeterReading: reading("80")})
}

func (h *Handler) loadBackdatedScenario(ctx context.Context, stationID string, day time.Time) error {
	if err := h.seedStation(ctx, stationID, "Demo Backdated Entry", day); err != nil {
		return err
	}
	sf, err := h.Ledger.Open(ctx, stationID, amount("1000"))
	if err != nil {
		return err
	}
	// Entered in this order: 09:00, 11:00, then 10:00 late.
	for _, p := range []safe.PostRequest{
		{Type: safe.TxOtherIncome, Amount: amount("500"), Timestamp: day.Add(9 * time.Hour), Description: "Shop float"},
		{Type: safe.TxExpense, Amount: amount("200"), Timestamp: day.Add(11 * time.Hour), Description: "Cleaning supplies"},
		{Type: safe.TxOtherIncome, Amount: amount("300"), Timestamp: day.Add(10 * time.Hour), Description: "Late entry: lubricant sale"},
	} {
		p.SafeID = sf.ID
		if _, err := h.Ledger.Post(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
