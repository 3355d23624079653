package report

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/meter"
	"github.com/pumpline/station-core/safe"
	"github.com/pumpline/station-core/settlement"
	"github.com/pumpline/station-core/station"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// CustomerDirectory labels credit activity with customer names.
type CustomerDirectory interface {
	CustomerNames(ctx context.Context, stationID string) (map[string]string, error)
}

// CashSource reads the safe balance. Satisfied by *safe.Ledger.
type CashSource interface {
	SafeForStation(ctx context.Context, stationID string) (*safe.Safe, error)
	BalanceAsOf(ctx context.Context, safeID string, asOf time.Time) (decimal.Decimal, error)
}

// Deps are the collaborators of an Aggregator. Customers and Cash are optional.
type Deps struct {
	Catalog     station.Catalog
	Shifts      station.ShiftReader
	Prices      station.PriceStore
	Settlements settlement.Source
	Customers   CustomerDirectory
	Cash        CashSource
	Engine      *meter.Engine
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	deps     Deps
	variance VariancePolicy
	cache    Cache
	cacheTTL time.Duration

	Now func() time.Time
}

type Option func(*Aggregator)

// WithVariancePolicy overrides the default 0.3% / 200 tolerance.
func WithVariancePolicy(p VariancePolicy) Option {
	return func(a *Aggregator) { a.variance = p }
}

// WithCache caches presented reports for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(a *Aggregator) { a.cache, a.cacheTTL = c, ttl }
}

func NewAggregator(deps Deps, opts ...Option) *Aggregator {
	if deps.Engine == nil {
		deps.Engine = meter.NewEngine(meter.New(meter.DefaultMax), deps.Catalog)
	}
	a := &Aggregator{
		deps:     deps,
		variance: DefaultVariancePolicy(),
		cache:    NoopCache{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// View returns the presented report, served from the cache when fresh.
// Cache failures are logged and never fail the request.
func (a *Aggregator) View(ctx context.Context, stationID string, w core.Window) (*View, error) {
	key := CacheKey(stationID, w)
	if v, ok, err := a.cache.Get(ctx, key); err != nil {
		log.Printf("[Report] Cache get %s failed: %v", key, err)
	} else if ok {
		return v, nil
	}

	r, err := a.Generate(ctx, stationID, w)
	if err != nil {
		return nil, err
	}
	v := r.Present()

	// A degraded report is not cached, the next request retries the failed section.
	if len(r.Degraded) == 0 && a.cacheTTL > 0 {
		if err := a.cache.Set(ctx, key, &v, a.cacheTTL); err != nil {
			log.Printf("[Report] Cache set %s failed: %v", key, err)
		}
	}
	return &v, nil
}

// Generate builds the report for a station over w.
func (a *Aggregator) Generate(ctx context.Context, stationID string, w core.Window) (*Report, error) {
	// 1. Validate
	if stationID == "" {
		return nil, core.Invalid("stationId", "required")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	st, err := a.deps.Catalog.GetStation(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", stationID, err)
	}

	// 2. Shifts
	shifts, err := a.deps.Shifts.ClosedShifts(ctx, stationID, w)
	if err != nil {
		return nil, fmt.Errorf("load closed shifts for %s: %w", stationID, err)
	}

	// 3. Meter engine, with a price memo scoped to this run
	fuel, err := a.deps.Engine.Compute(ctx, stationID, shifts, station.NewResolver(a.deps.Prices))
	if err != nil {
		return nil, err
	}

	r := &Report{
		StationID:   st.ID,
		StationName: st.Name,
		Decimals:    st.Decimals(),
		Window:      w,
		GeneratedAt: a.Now(),
		Fuel:        fuel,
		ShiftCount:  len(shifts),
	}

	// 4. Settlement sections, concurrently and isolated
	a.loadSections(ctx, r)

	// 5-7. Arithmetic
	a.compute(r, shifts)

	if len(fuel.Exclusions) > 0 {
		log.Printf("[Report] Station %s %s: %d assignments excluded from fuel sales",
			stationID, w, len(fuel.Exclusions))
	}
	return r, nil
}

// loadSections runs every settlement query in its own goroutine. A failure
// is logged, the section is left zeroed, and its name is added to Degraded.
func (a *Aggregator) loadSections(ctx context.Context, r *Report) {
	src := a.deps.Settlements
	stationID, w := r.StationID, r.Window

	r.POS = settlement.AggregatePOS(nil)
	r.Credit = settlement.AggregateCredit(nil, nil, nil)
	r.Cheques = settlement.AggregateCheques(nil)
	r.Expenses = settlement.AggregateExpenses(nil)
	r.Deposits = settlement.AggregateDeposits(nil)
	r.Loans = settlement.AggregateLoans(nil)

	var (
		mu       sync.Mutex
		degraded []string
		g        errgroup.Group
	)
	section := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				log.Printf("[Report] Section %s failed for station %s: %v", name, stationID, err)
				mu.Lock()
				degraded = append(degraded, name)
				mu.Unlock()
			}
			return nil
		})
	}

	section(SectionPOS, func() error {
		batches, err := src.PosBatches(ctx, stationID, w)
		if err != nil {
			return err
		}
		r.POS = settlement.AggregatePOS(batches)
		return nil
	})
	section(SectionCredit, func() error {
		sales, err := src.CreditSales(ctx, stationID, w)
		if err != nil {
			return err
		}
		payments, err := src.CreditPayments(ctx, stationID, w)
		if err != nil {
			return err
		}
		var names map[string]string
		if a.deps.Customers != nil {
			if names, err = a.deps.Customers.CustomerNames(ctx, stationID); err != nil {
				log.Printf("[Report] Customer names unavailable for %s: %v", stationID, err)
			}
		}
		r.Credit = settlement.AggregateCredit(sales, payments, names)
		return nil
	})
	section(SectionCheques, func() error {
		cheques, err := src.Cheques(ctx, stationID, w)
		if err != nil {
			return err
		}
		r.Cheques = settlement.AggregateCheques(cheques)
		return nil
	})
	section(SectionExpenses, func() error {
		expenses, err := src.Expenses(ctx, stationID, w)
		if err != nil {
			return err
		}
		r.Expenses = settlement.AggregateExpenses(expenses)
		return nil
	})
	section(SectionDeposits, func() error {
		deposits, err := src.Deposits(ctx, stationID, w)
		if err != nil {
			return err
		}
		r.Deposits = settlement.AggregateDeposits(deposits)
		return nil
	})
	section(SectionLoans, func() error {
		loans, err := src.Loans(ctx, stationID, w)
		if err != nil {
			return err
		}
		r.Loans = settlement.AggregateLoans(loans)
		return nil
	})
	if a.deps.Cash != nil {
		section(SectionCashPosition, func() error {
			s, err := a.deps.Cash.SafeForStation(ctx, stationID)
			if core.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			bal, err := a.deps.Cash.BalanceAsOf(ctx, s.ID, w.To)
			if err != nil {
				return err
			}
			r.CashPosition = &bal
			return nil
		})
	}

	_ = g.Wait()
	r.Degraded = sortedSections(degraded)
}

func (a *Aggregator) compute(r *Report, shifts []station.Shift) {
	r.PetrolSales = r.Fuel.ByCategory(station.FuelPetrol)
	r.DieselSales = r.Fuel.ByCategory(station.FuelDiesel)
	r.SuperDieselSales = r.Fuel.ByCategory(station.FuelSuperDiesel)
	r.KeroseneSales = r.Fuel.ByCategory(station.FuelKerosene)
	r.OilSales = r.Fuel.ByCategory(station.FuelOil)
	r.TotalFuelSales = r.Fuel.TotalAmount

	r.ShopSales = decimal.Zero
	for _, s := range shifts {
		r.ShopSales = r.ShopSales.Add(s.ShopSales)
	}
	r.TotalSales = r.TotalFuelSales.Add(r.ShopSales)

	r.Declared, r.DeclaredTotal = declaredTender(shifts)
	r.TenderPercentage = Tender{
		Cash:   core.Percent(r.Declared.Cash, r.TotalSales),
		Card:   core.Percent(r.Declared.Card, r.TotalSales),
		Credit: core.Percent(r.Declared.Credit, r.TotalSales),
		Cheque: core.Percent(r.Declared.Cheque, r.TotalSales),
	}

	r.TotalVariance = r.TotalSales.Sub(r.DeclaredTotal)
	r.VariancePercentage = core.Percent(r.TotalVariance, r.TotalSales)
	r.VarianceStatus, r.VarianceTolerance = a.variance.Classify(r.TotalVariance, r.TotalSales)

	r.NetProfit = r.TotalSales.
		Sub(r.Expenses.Total).
		Sub(r.Deposits.Total).
		Sub(r.Loans.Total)

	r.TransactionCount = transactionCount(shifts)
	r.AverageTransaction = decimal.Zero
	if r.TransactionCount > 0 {
		r.AverageTransaction = r.TotalSales.Div(decimal.NewFromInt(int64(r.TransactionCount)))
	}
}

var sectionOrder = []string{
	SectionPOS, SectionCredit, SectionCheques, SectionExpenses,
	SectionDeposits, SectionLoans, SectionCashPosition,
}

func sortedSections(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range sectionOrder {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}
