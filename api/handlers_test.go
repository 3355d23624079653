/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Report endpoint (window parsing, status mapping, numbers)
- Safe ledger endpoints (post, conflict, balance, audit)
- Settlement and credit endpoints
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpline/station-core/report"
	"github.com/pumpline/station-core/store/memory"
)

// =============================================================================
// HELPERS
// =============================================================================

type testServer struct {
	t      *testing.T
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	h := NewHandler(memory.New())
	return &testServer{t: t, h: h, router: NewRouter(h, []string{"*"})}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed registers station st-1 with a petrol nozzle priced at 385.
func (s *testServer) seed() {
	s.t.Helper()
	rec := s.do("POST", "/api/stations", StationRequestDTO{
		ID:      "st-1",
		Name:    "Galle Road",
		Fuels:   []FuelDTO{{ID: "p92", Name: "Petrol 92", Category: "petrol"}},
		Tanks:   []TankDTO{{ID: "tk-1", FuelID: "p92", Capacity: 13500}},
		Pumps:   []PumpDTO{{ID: "pm-1", Number: "1"}},
		Nozzles: []NozzleDTO{{ID: "nz-1", PumpID: "pm-1", TankID: "tk-1"}},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do("POST", "/api/prices", PriceRequestDTO{StationID: "st-1", FuelID: "p92", Price: 385, EffectiveDate: "2025-03-01"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) openSafe(opening float64) SafeDTO {
	s.t.Helper()
	rec := s.do("POST", "/api/stations/st-1/safe", OpenSafeRequestDTO{OpeningBalance: opening})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[SafeDTO](s.t, rec)
}

// =============================================================================
// REPORT
// =============================================================================

func TestGetReport_SingleShift(t *testing.T) {
	// GIVEN: 250 L on the petrol nozzle, declared exactly
	s := newTestServer(t)
	s.seed()
	end := 1250.0
	rec := s.do("POST", "/api/shifts", ShiftRequestDTO{
		ID: "sh-1", StationID: "st-1", StartTime: "2025-03-10T06:00:00Z", EndTime: "2025-03-10T14:00:00Z",
		Status:   "closed",
		Declared: DeclaredTenderDTO{Cash: 96250},
		Assignments: []AssignmentRequestDTO{
			{ID: "a-1", NozzleID: "nz-1", StartReading: 1000, EndReading: &end, Status: "closed"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN
	rec = s.do("GET", "/api/stations/st-1/report?date=2025-03-10", nil)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeBody[report.View](t, rec)
	assert.Equal(t, "Galle Road", v.StationName)
	assert.Equal(t, 96250.0, v.PetrolSales)
	assert.Equal(t, 250.0, v.TotalLiters)
	assert.Equal(t, 0.0, v.TotalVariance)
	assert.Equal(t, "NORMAL", v.VarianceStatus)
	assert.Equal(t, 100.0, v.CashPercentage)
	assert.Empty(t, v.Degraded)
}

func TestGetReport_StatusMapping(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	cases := []struct {
		name string
		path string
		want int
	}{
		{"no window", "/api/stations/st-1/report", http.StatusBadRequest},
		{"malformed date", "/api/stations/st-1/report?date=10-03-2025", http.StatusBadRequest},
		{"inverted range", "/api/stations/st-1/report?from=2025-03-10&to=2025-03-01", http.StatusBadRequest},
		{"over a year", "/api/stations/st-1/report?from=2024-01-01&to=2025-03-01", http.StatusBadRequest},
		{"unknown station", "/api/stations/nope/report?date=2025-03-10", http.StatusNotFound},
		{"range", "/api/stations/st-1/report?from=2025-03-01&to=2025-03-31", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do("GET", tc.path, nil)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			if tc.want != http.StatusOK {
				errResp := decodeBody[ErrorResponse](t, rec)
				assert.NotEmpty(t, errResp.Error)
				assert.Equal(t, codeFor(tc.want), errResp.Code)
			}
		})
	}
}

// =============================================================================
// SAFE LEDGER
// =============================================================================

func TestPostTransaction_AndBalance(t *testing.T) {
	// GIVEN
	s := newTestServer(t)
	s.seed()
	sf := s.openSafe(10000)
	assert.Equal(t, 10000.0, sf.CurrentBalance)

	// WHEN: cash sales then an expense
	rec := s.do("POST", "/api/safes/"+sf.ID+"/transactions", PostTransactionRequestDTO{
		Type: "CASH_FUEL_SALES", Amount: 96250, Timestamp: "2025-03-10T18:00:00Z",
		Links: []LinkDTO{{Kind: "shift", ID: "sh-1"}}, IdempotencyKey: "sh-1-cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decodeBody[TransactionDTO](t, rec)
	assert.Equal(t, 10000.0, tx.BalanceBefore)
	assert.Equal(t, 106250.0, tx.BalanceAfter)
	assert.Equal(t, "CREDIT", tx.Effect)

	rec = s.do("POST", "/api/safes/"+sf.ID+"/transactions", PostTransactionRequestDTO{
		Type: "expense", Amount: 1500, Timestamp: "2025-03-10T19:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN
	rec = s.do("GET", "/api/safes/"+sf.ID+"/balance?as_of=2025-03-10T18:30:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 106250.0, decodeBody[BalanceDTO](t, rec).Balance)

	rec = s.do("GET", "/api/safes/"+sf.ID+"/balance?as_of=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 104750.0, decodeBody[BalanceDTO](t, rec).Balance, "a bare date means end of day")

	rec = s.do("GET", "/api/safes/"+sf.ID+"/transactions?from=2025-03-10&to=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeBody[[]TransactionDTO](t, rec)
	require.Len(t, txs, 2)
	assert.Equal(t, []LinkDTO{{Kind: "shift", ID: "sh-1"}}, txs[0].Links)

	rec = s.do("GET", "/api/safes/"+sf.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decodeBody[AuditDTO](t, rec)
	assert.True(t, audit.Consistent)
	assert.Equal(t, 2, audit.Entries)
}

func TestPostTransaction_Errors(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	sf := s.openSafe(0)
	path := "/api/safes/" + sf.ID + "/transactions"

	rec := s.do("POST", path, PostTransactionRequestDTO{Type: "OTHER_INCOME", Amount: 10, IdempotencyKey: "k-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"duplicate key", path, PostTransactionRequestDTO{Type: "OTHER_INCOME", Amount: 10, IdempotencyKey: "k-1"}, http.StatusConflict},
		{"unknown type", path, PostTransactionRequestDTO{Type: "LOTTERY", Amount: 10}, http.StatusBadRequest},
		{"negative amount", path, PostTransactionRequestDTO{Type: "EXPENSE", Amount: -1}, http.StatusBadRequest},
		{"adjustment without direction", path, PostTransactionRequestDTO{Type: "ADJUSTMENT", Amount: 5}, http.StatusBadRequest},
		{"bad timestamp", path, PostTransactionRequestDTO{Type: "EXPENSE", Amount: 5, Timestamp: "yesterday"}, http.StatusBadRequest},
		{"unknown safe", "/api/safes/nope/transactions", PostTransactionRequestDTO{Type: "EXPENSE", Amount: 5}, http.StatusNotFound},
		{"malformed body", path, "not an object", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do("POST", tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec = s.do("POST", "/api/stations/st-1/safe", OpenSafeRequestDTO{OpeningBalance: 1})
	assert.Equal(t, http.StatusConflict, rec.Code, "one safe per station")

	rec = s.do("POST", "/api/stations/nope/safe", OpenSafeRequestDTO{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SETTLEMENT AND CREDIT
// =============================================================================

func TestSettlementEndpoints_PostToSafe(t *testing.T) {
	// GIVEN
	s := newTestServer(t)
	s.seed()
	sf := s.openSafe(10000)
	post := PostOptionsDTO{PostToSafe: true, PerformedBy: "manager"}

	// WHEN
	rec := s.do("POST", "/api/pos/batches", PosBatchRequestDTO{PostOptionsDTO: post, StationID: "st-1", Timestamp: "2025-03-10T15:00:00Z",
		Entries: []PosTerminalEntryDTO{{TerminalID: "T1", Visa: 1000, Master: 500, TransactionCount: 3}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decodeBody[RecordedDTO](t, rec)
	require.NotNil(t, batch.Transaction)
	assert.Equal(t, "POS_CARD_PAYMENT", batch.Transaction.Type)

	rec = s.do("POST", "/api/expenses", ExpenseRequestDTO{PostOptionsDTO: post, StationID: "st-1", Category: "UTILITIES", Amount: 2500, Timestamp: "2025-03-10T16:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do("POST", "/api/deposits", DepositRequestDTO{StationID: "st-1", BankName: "BOC", Amount: 5000, Timestamp: "2025-03-10T16:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Nil(t, decodeBody[RecordedDTO](t, rec).Transaction, "not posted")

	rec = s.do("POST", "/api/loans", LoanRequestDTO{StationID: "st-1", Kind: "staff", Borrower: "attendant", Amount: 1000, DueDate: "2025-04-10"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do("POST", "/api/cheques", ChequeRequestDTO{StationID: "st-1", Number: "004512", Amount: 3000, ReceivedDate: "2025-03-10"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN
	rec = s.do("GET", "/api/safes/"+sf.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9000.0, decodeBody[SafeDTO](t, rec).CurrentBalance, "10000 + 1500 - 2500")

	rec = s.do("GET", "/api/stations/st-1/report?date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeBody[report.View](t, rec)
	assert.Equal(t, 1500.0, v.POSTotal)
	assert.Equal(t, 2500.0, v.TotalExpenses)
	assert.Equal(t, 5000.0, v.TotalDeposits)
	assert.Equal(t, 3000.0, v.ChequeTotal)
	require.NotNil(t, v.CashPosition)
	assert.Equal(t, 9000.0, *v.CashPosition)

	rec = s.do("POST", "/api/expenses", ExpenseRequestDTO{StationID: "st-1", Category: "OTHER", Amount: -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreditEndpoints(t *testing.T) {
	// GIVEN
	s := newTestServer(t)
	s.seed()
	s.openSafe(1000)

	rec := s.do("POST", "/api/credit/customers", CustomerRequestDTO{StationID: "st-1", Name: "City Taxi", CreditLimit: 10000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cust := decodeBody[CustomerDTO](t, rec)

	// WHEN: a sale within the limit, then one over it
	rec = s.do("POST", "/api/credit/sales", CreditSaleRequestDTO{CustomerID: cust.ID, Liters: 20, Amount: 7700})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 7700.0, decodeBody[CustomerDTO](t, rec).CurrentBalance)

	rec = s.do("POST", "/api/credit/sales", CreditSaleRequestDTO{CustomerID: cust.ID, Liters: 10, Amount: 3850})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "credit limit exceeded")

	rec = s.do("POST", "/api/credit/payments", CreditPaymentRequestDTO{CustomerID: cust.ID, Amount: 2000, PostToSafe: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pay := decodeBody[CreditPaymentResponseDTO](t, rec)

	// THEN
	assert.Equal(t, 5700.0, pay.Customer.CurrentBalance)
	require.NotNil(t, pay.Transaction)
	assert.Equal(t, 3000.0, pay.Transaction.BalanceAfter)

	rec = s.do("GET", "/api/credit/customers?station_id=st-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]CustomerDTO](t, rec), 1)

	rec = s.do("GET", "/api/credit/customers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("GET", "/api/credit/customers", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolvePrice(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	rec := s.do("POST", "/api/prices", PriceRequestDTO{StationID: "st-1", FuelID: "p92", Price: 399, EffectiveDate: "2025-03-10T12:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do("GET", "/api/prices/resolve?station_id=st-1&fuel_id=p92&as_of=2025-03-10T11:59:59Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[ResolvedPriceDTO](t, rec)
	assert.True(t, got.Found)
	assert.Equal(t, 385.0, got.Price)

	rec = s.do("GET", "/api/prices/resolve?station_id=st-1&fuel_id=p92&as_of=2025-03-10T12:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 399.0, decodeBody[ResolvedPriceDTO](t, rec).Price)

	rec = s.do("GET", "/api/prices/resolve?station_id=st-1&fuel_id=p92&as_of=2025-02-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[ResolvedPriceDTO](t, rec).Found)

	rec = s.do("GET", "/api/prices/resolve?station_id=st-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPriceScheduleAndNext(t *testing.T) {
	// GIVEN: 385 from March 1st and 399 from March 15th
	s := newTestServer(t)
	s.seed()
	rec := s.do("POST", "/api/prices", PriceRequestDTO{StationID: "st-1", FuelID: "p92", Price: 399, EffectiveDate: "2025-03-15"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN / THEN
	rec = s.do("GET", "/api/prices?station_id=st-1&fuel_id=p92", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]PriceDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, 385.0, list[0].Price)
	assert.Equal(t, 399.0, list[1].Price)

	rec = s.do("GET", "/api/prices/next?station_id=st-1&fuel_id=p92&as_of=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 399.0, decodeBody[PriceDTO](t, rec).Price)

	rec = s.do("GET", "/api/prices/next?station_id=st-1&fuel_id=p92&as_of=2025-03-20", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
