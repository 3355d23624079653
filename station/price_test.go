package station_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpline/station-core/station"
)

type fakePrices struct {
	rows  []station.Price
	calls int
	err   error
}

func (f *fakePrices) PriceHistory(_ context.Context, stationID, fuelID string) ([]station.Price, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []station.Price
	for _, p := range f.rows {
		if p.StationID == stationID && p.FuelID == fuelID {
			out = append(out, p)
		}
	}
	return out, nil
}

func at(day, hour int) time.Time {
	return time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
}

func price(id string, v string, effective time.Time, active bool) station.Price {
	return station.Price{
		ID: id, FuelID: "p92", StationID: "st-1",
		Price: decimal.RequireFromString(v), EffectiveDate: effective, IsActive: active,
	}
}

func TestResolver_LatestEffectiveNotAfterQueryWins(t *testing.T) {
	// GIVEN: three tariffs, the middle one is the one in force on March 12
	store := &fakePrices{rows: []station.Price{
		price("a", "360.00", at(1, 0), false),
		price("c", "400.00", at(20, 0), true),
		price("b", "385.00", at(10, 6), false),
	}}
	r := station.NewResolver(store)

	// WHEN/THEN
	p, ok, err := r.Resolve(context.Background(), "p92", "st-1", at(12, 9))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.RequireFromString("385.00")), "got %s", p)

	// Exactly at the effective instant counts
	p, ok, err = r.Resolve(context.Background(), "p92", "st-1", at(10, 6))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.RequireFromString("385.00")))
}

func TestResolver_InactiveFlagIsNotAFilter(t *testing.T) {
	// Historical reports must see the price actually in force, even if it has
	// since been deactivated.
	store := &fakePrices{rows: []station.Price{
		price("old", "350.00", at(1, 0), false),
	}}
	r := station.NewResolver(store)

	p, ok, err := r.Resolve(context.Background(), "p92", "st-1", at(5, 0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.RequireFromString("350.00")))
}

func TestResolver_NoPriceBeforeQuery(t *testing.T) {
	store := &fakePrices{rows: []station.Price{price("future", "390.00", at(20, 0), true)}}
	r := station.NewResolver(store)

	p, ok, err := r.Resolve(context.Background(), "p92", "st-1", at(5, 0))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, p.IsZero())
}

func TestResolver_MemoizesHistory(t *testing.T) {
	store := &fakePrices{rows: []station.Price{price("a", "360.00", at(1, 0), true)}}
	r := station.NewResolver(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := r.Resolve(ctx, "p92", "st-1", at(2+i, 0))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.calls)
}

func TestResolver_StoreErrorPropagates(t *testing.T) {
	r := station.NewResolver(&fakePrices{err: errors.New("boom")})
	_, _, err := r.Resolve(context.Background(), "p92", "st-1", at(1, 0))
	assert.Error(t, err)
}

func TestSchedule_TieGoesToLaterRow(t *testing.T) {
	sched := station.NewSchedule([]station.Price{
		price("first", "370.00", at(10, 0), true),
		price("second", "371.00", at(10, 0), true),
	})
	p, ok := sched.At(at(10, 1))
	require.True(t, ok)
	assert.Equal(t, "second", p.ID)
}

func TestSchedule_Next(t *testing.T) {
	sched := station.NewSchedule([]station.Price{
		price("a", "360.00", at(1, 0), true),
		price("b", "385.00", at(15, 0), true),
	})

	next, ok := sched.Next(at(3, 0))
	require.True(t, ok)
	assert.Equal(t, "b", next.ID)

	_, ok = sched.Next(at(16, 0))
	assert.False(t, ok)
}
