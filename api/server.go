/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/stations/*       Topology, safe opening, reports
  /api/prices/*         Tariffs
  /api/shifts           Shift close-out
  /api/safes/*          Ledger postings, balances, audits
  /api/credit/*         Credit customers, sales, payments
  /api/pos, /api/cheques, /api/expenses, /api/deposits, /api/loans
  /api/admin/*          Audit runs
  /api/scenarios/*      Demo scenarios
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Station routes
		r.Route("/stations", func(r chi.Router) {
			r.Post("/", h.CreateStation)
			r.Get("/{id}", h.GetStation)
			r.Get("/{id}/report", h.GetReport)
			r.Post("/{id}/safe", h.OpenSafe)
			r.Get("/{id}/safe", h.GetStationSafe)
		})

		// Price routes
		r.Route("/prices", func(r chi.Router) {
			r.Post("/", h.CreatePrice)
			r.Get("/", h.GetPriceSchedule)
			r.Get("/resolve", h.ResolvePrice)
			r.Get("/next", h.GetNextPrice)
		})

		r.Post("/shifts", h.SaveShift)

		// Safe ledger routes
		r.Route("/safes", func(r chi.Router) {
			r.Get("/", h.ListSafes)
			r.Get("/{id}", h.GetSafe)
			r.Post("/{id}/transactions", h.PostTransaction)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/audit", h.AuditSafe)
		})

		// Settlement routes
		r.Post("/pos/batches", h.RecordPOSBatch)
		r.Post("/cheques", h.RecordCheque)
		r.Post("/expenses", h.RecordExpense)
		r.Post("/deposits", h.RecordDeposit)
		r.Post("/loans", h.RecordLoan)

		// Credit routes
		r.Route("/credit", func(r chi.Router) {
			r.Get("/customers", h.ListCustomers)
			r.Post("/customers", h.CreateCustomer)
			r.Get("/customers/{id}", h.GetCustomer)
			r.Post("/sales", h.RecordCreditSale)
			r.Post("/payments", h.RecordCreditPayment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit-runs/last", h.GetLastAuditRun)
			r.Post("/audit-runs", h.TriggerAuditRun)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
