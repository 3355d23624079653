/*
scheduler.go - Periodic safe ledger audit

PURPOSE:
  Periodically replays every safe's ledger and logs safes whose stored
  balances have drifted from a fresh replay (backdated postings), whose
  entries fail the arithmetic check, or whose cached balance is stale.
  Nothing is rewritten; the run is a report for the manager.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - One failed safe does not stop the run
  - The last run is kept for GET /api/admin/audit-runs/last

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAuditScheduler(ledger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AuditSafe endpoint (one safe on demand)
  - safe/ledger.go: Ledger.Audit
*/
package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pumpline/station-core/safe"
)

// AuditScheduler audits every safe on a fixed interval.
type AuditScheduler struct {
	Ledger        *safe.Ledger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu  sync.RWMutex
	lastRun *AuditRunDTO
}

// NewAuditScheduler creates a new scheduler.
func NewAuditScheduler(ledger *safe.Ledger) *AuditScheduler {
	return &AuditScheduler{
		Ledger:        ledger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (as *AuditScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.RunNow(context.Background())

	for {
		select {
		case <-as.ticker.C:
			as.RunNow(context.Background())
		case <-as.stop:
			return
		}
	}
}

// RunNow audits every safe and records the run.
func (as *AuditScheduler) RunNow(ctx context.Context) AuditRunDTO {
	started := time.Now()
	run := AuditRunDTO{
		StartedAt:    started.UTC().Format(time.RFC3339),
		Inconsistent: []AuditDTO{},
	}

	safes, err := as.Ledger.Safes(ctx)
	if err != nil {
		log.Printf("[Scheduler] Failed to list safes: %v", err)
		run.Failed = append(run.Failed, "*")
	}

	for _, s := range safes {
		res, err := as.Ledger.Audit(ctx, s.ID)
		if err != nil {
			log.Printf("[Scheduler] Audit of safe %s failed: %v", s.ID, err)
			run.Failed = append(run.Failed, s.ID)
			continue
		}
		run.SafesChecked++
		if !res.Clean() {
			log.Printf("[Scheduler] Safe %s (station %s): %d drifted entries, %d arithmetic errors, cached %s vs replayed %s",
				s.ID, s.StationID, len(res.Drifts), len(res.ArithmeticErrors), res.CachedBalance, res.ReplayedBalance)
			run.Inconsistent = append(run.Inconsistent, toAuditDTO(res))
		}
	}

	run.Duration = time.Since(started).String()
	log.Printf("[Scheduler] Audited %d safes, %d inconsistent, %d failed",
		run.SafesChecked, len(run.Inconsistent), len(run.Failed))

	as.lastMu.Lock()
	as.lastRun = &run
	as.lastMu.Unlock()
	return run
}

// LastRun returns the most recent run, or nil before the first.
func (as *AuditScheduler) LastRun() *AuditRunDTO {
	as.lastMu.RLock()
	defer as.lastMu.RUnlock()
	return as.lastRun
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// GetLastAuditRun returns the scheduler's last run.
// GET /api/admin/audit-runs/last
func (h *Handler) GetLastAuditRun(w http.ResponseWriter, r *http.Request) {
	if h.Auditor == nil {
		writeError(w, http.StatusNotFound, "Audit scheduler not configured", nil)
		return
	}
	run := h.Auditor.LastRun()
	if run == nil {
		writeError(w, http.StatusNotFound, "No audit run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// TriggerAuditRun runs an audit of every safe now.
// POST /api/admin/audit-runs
func (h *Handler) TriggerAuditRun(w http.ResponseWriter, r *http.Request) {
	if h.Auditor == nil {
		writeError(w, http.StatusNotFound, "Audit scheduler not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Auditor.RunNow(r.Context()))
}
