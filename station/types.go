/*
Package station holds the static topology of a fuel station and the shift
records that meter reconciliation runs over.

KEY CONCEPTS IN THIS PACKAGE:
  - Station: tenant-scoped physical site, owns everything below
  - Fuel: fixed catalog entry (petrol 92, diesel, ...)
  - Tank / Pump / Nozzle: a nozzle belongs to one pump and draws from one tank
  - Price: time-scoped tariff, resolved by Resolver (price.go)
  - Shift / ShiftAssignment: one pumper on one nozzle, bounded by meter readings

DESIGN PRINCIPLES:
  1. Precision: liters and money are decimal.Decimal, never float64
  2. Typed tender: declared amounts are a struct, not a loose map
  3. Read interfaces are small so reports can run against any store

SEE ALSO:
  - price.go: Price table resolution
  - meter/engine.go: Consumes shifts and topology
*/
package station

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpline/station-core/core"
)

// =============================================================================
// TOPOLOGY
// =============================================================================

type Station struct {
	ID               string
	Name             string
	Active           bool
	CurrencyDecimals int32
	CreatedAt        time.Time
}

// Decimals returns the station's minor-unit convention.
func (s Station) Decimals() int32 {
	if s.CurrencyDecimals <= 0 {
		return core.DefaultCurrencyDecimals
	}
	return s.CurrencyDecimals
}

type FuelCategory string

const (
	FuelPetrol      FuelCategory = "PETROL"
	FuelDiesel      FuelCategory = "DIESEL"
	FuelSuperDiesel FuelCategory = "SUPER_DIESEL"
	FuelKerosene    FuelCategory = "KEROSENE"
	FuelOil         FuelCategory = "OIL"
)

type Fuel struct {
	ID       string
	Name     string
	Category FuelCategory
}

type Tank struct {
	ID           string
	StationID    string
	FuelID       string
	Capacity     decimal.Decimal
	CurrentLevel decimal.Decimal
}

type Pump struct {
	ID        string
	StationID string
	Number    string
}

type Nozzle struct {
	ID     string
	PumpID string
	TankID string
}

// =============================================================================
// SHIFTS
// =============================================================================

type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "OPEN"
	ShiftClosed ShiftStatus = "CLOSED"
)

type AssignmentStatus string

const (
	AssignmentActive AssignmentStatus = "ACTIVE"
	AssignmentClosed AssignmentStatus = "CLOSED"
)

// DeclaredTender is what shift-closing staff reported collecting.
type DeclaredTender struct {
	Cash             decimal.Decimal
	Card             decimal.Decimal
	Credit           decimal.Decimal
	Cheque           decimal.Decimal
	TransactionCount int
}

func (d DeclaredTender) Total() decimal.Decimal {
	return core.Sum(d.Cash, d.Card, d.Credit, d.Cheque)
}

type Shift struct {
	ID          string
	StationID   string
	StartTime   time.Time
	EndTime     *time.Time
	Status      ShiftStatus
	Declared    DeclaredTender
	ShopSales   decimal.Decimal
	Assignments []ShiftAssignment
}

// PricingTime is the instant used for price lookups: end time, else start time.
func (s Shift) PricingTime() time.Time {
	if s.EndTime != nil && !s.EndTime.IsZero() {
		return *s.EndTime
	}
	return s.StartTime
}

type ShiftAssignment struct {
	ID                string
	ShiftID           string
	NozzleID          string
	PumperID          string
	StartMeterReading decimal.Decimal
	EndMeterReading   *decimal.Decimal
	Status            AssignmentStatus
}

// Reconcilable reports whether the assignment may enter sale computation:
// CLOSED with both readings present.
func (a ShiftAssignment) Reconcilable() bool {
	return a.Status == AssignmentClosed && a.EndMeterReading != nil
}

// =============================================================================
// READ INTERFACES
// =============================================================================

// Catalog provides static topology lookups.
type Catalog interface {
	GetStation(ctx context.Context, id string) (*Station, error)
	GetNozzle(ctx context.Context, id string) (*Nozzle, error)
	GetTank(ctx context.Context, id string) (*Tank, error)
	GetFuel(ctx context.Context, id string) (*Fuel, error)
}

// ShiftReader returns CLOSED shifts, with assignments, whose end time falls
// within the window (start time when the end time is missing).
type ShiftReader interface {
	ClosedShifts(ctx context.Context, stationID string, w core.Window) ([]Shift, error)
}

// Registry writes topology, tariffs and shift records. Prices are append-only.
type Registry interface {
	SaveStation(ctx context.Context, s Station) error
	SaveFuel(ctx context.Context, f Fuel) error
	SaveTank(ctx context.Context, t Tank) error
	SavePump(ctx context.Context, p Pump) error
	SaveNozzle(ctx context.Context, n Nozzle) error
	AddPrice(ctx context.Context, p Price) error
	SaveShift(ctx context.Context, s Shift) error
}
