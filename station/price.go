package station

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE TABLE - Time-scoped tariffs
// =============================================================================

// Price is one scheduled tariff. Rows are never deleted, only superseded by
// a later EffectiveDate. IsActive is informational: historical reports use
// whatever was in force at the time, regardless of today's flag.
type Price struct {
	ID            string
	FuelID        string
	StationID     string
	Price         decimal.Decimal
	EffectiveDate time.Time
	IsActive      bool
	CreatedAt     time.Time
}

// PriceStore returns the full price history for a (station, fuel) pair.
type PriceStore interface {
	PriceHistory(ctx context.Context, stationID, fuelID string) ([]Price, error)
}

// Schedule is a price history ordered by EffectiveDate ascending.
type Schedule []Price

// NewSchedule sorts the rows. Equal effective dates keep insertion order,
// so the row created last wins a tie.
func NewSchedule(prices []Price) Schedule {
	s := make(Schedule, len(prices))
	copy(s, prices)
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].EffectiveDate.Before(s[j].EffectiveDate)
	})
	return s
}

// At returns the latest price with EffectiveDate <= asOf.
func (s Schedule) At(asOf time.Time) (Price, bool) {
	i := sort.Search(len(s), func(i int) bool {
		return s[i].EffectiveDate.After(asOf)
	})
	if i == 0 {
		return Price{}, false
	}
	return s[i-1], true
}

// Next returns the first price scheduled strictly after asOf.
func (s Schedule) Next(asOf time.Time) (Price, bool) {
	i := sort.Search(len(s), func(i int) bool {
		return s[i].EffectiveDate.After(asOf)
	})
	if i == len(s) {
		return Price{}, false
	}
	return s[i], true
}

// =============================================================================
// RESOLVER
// =============================================================================

type scheduleKey struct {
	stationID string
	fuelID    string
}

// Resolver answers "what did this fuel cost at this station at this instant".
// It memoizes each (station, fuel) history for its lifetime, so create one
// per report run rather than sharing it across requests.
type Resolver struct {
	store PriceStore

	mu        sync.Mutex
	schedules map[scheduleKey]Schedule
}

func NewResolver(store PriceStore) *Resolver {
	return &Resolver{store: store, schedules: make(map[scheduleKey]Schedule)}
}

// Resolve returns the price in force at asOf. ok is false when no row
// predates asOf; callers count the sale at zero rather than failing.
func (r *Resolver) Resolve(ctx context.Context, fuelID, stationID string, asOf time.Time) (decimal.Decimal, bool, error) {
	sched, err := r.Schedule(ctx, stationID, fuelID)
	if err != nil {
		return decimal.Zero, false, err
	}
	p, ok := sched.At(asOf)
	if !ok {
		return decimal.Zero, false, nil
	}
	return p.Price, true, nil
}

// Schedule returns the (memoized) ordered price history.
func (r *Resolver) Schedule(ctx context.Context, stationID, fuelID string) (Schedule, error) {
	k := scheduleKey{stationID: stationID, fuelID: fuelID}

	r.mu.Lock()
	sched, ok := r.schedules[k]
	r.mu.Unlock()
	if ok {
		return sched, nil
	}

	prices, err := r.store.PriceHistory(ctx, stationID, fuelID)
	if err != nil {
		return nil, err
	}
	sched = NewSchedule(prices)

	r.mu.Lock()
	r.schedules[k] = sched
	r.mu.Unlock()
	return sched, nil
}
