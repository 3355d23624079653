package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pumpline/station-core/core"
	"github.com/pumpline/station-core/station"
)

// =============================================================================
// TOPOLOGY (station.Catalog, station.Registry)
// =============================================================================

func (s *Store) SaveStation(ctx context.Context, st station.Station) error {
	_, err := s.conn().exec(ctx, `
		INSERT INTO stations (id, name, active, currency_decimals, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			currency_decimals = excluded.currency_decimals
	`, st.ID, st.Name, boolInt(st.Active), st.CurrencyDecimals, formatTime(st.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save station: %w", err)
	}
	return nil
}

func (s *Store) GetStation(ctx context.Context, id string) (*station.Station, error) {
	var (
		st      station.Station
		active  int64
		created string
	)
	err := s.conn().queryRow(ctx,
		`SELECT id, name, active, currency_decimals, created_at FROM stations WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &active, &st.CurrencyDecimals, &created)
	if err != nil {
		return nil, notFound(err)
	}
	var p parser
	st.Active = active != 0
	st.CreatedAt = p.time(created)
	return &st, p.err
}

func (s *Store) SaveFuel(ctx context.Context, f station.Fuel) error {
	_, err := s.conn().exec(ctx, `
		INSERT INTO fuels (id, name, category) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, category = excluded.category
	`, f.ID, f.Name, string(f.Category))
	if err != nil {
		return fmt.Errorf("failed to save fuel: %w", err)
	}
	return nil
}

func (s *Store) GetFuel(ctx context.Context, id string) (*station.Fuel, error) {
	var (
		f        station.Fuel
		category string
	)
	err := s.conn().queryRow(ctx, `SELECT id, name, category FROM fuels WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &category)
	if err != nil {
		return nil, notFound(err)
	}
	f.Category = station.FuelCategory(category)
	return &f, nil
}

func (s *Store) SaveTank(ctx context.Context, t station.Tank) error {
	_, err := s.conn().exec(ctx, `
		INSERT INTO tanks (id, station_id, fuel_id, capacity, current_level) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			station_id = excluded.station_id,
			fuel_id = excluded.fuel_id,
			capacity = excluded.capacity,
			current_level = excluded.current_level
	`, t.ID, t.StationID, t.FuelID, t.Capacity.String(), t.CurrentLevel.String())
	if err != nil {
		return fmt.Errorf("failed to save tank: %w", err)
	}
	return nil
}

func (s *Store) GetTank(ctx context.Context, id string) (*station.Tank, error) {
	var (
		t               station.Tank
		capacity, level string
	)
	err := s.conn().queryRow(ctx,
		`SELECT id, station_id, fuel_id, capacity, current_level FROM tanks WHERE id = ?`, id,
	).Scan(&t.ID, &t.StationID, &t.FuelID, &capacity, &level)
	if err != nil {
		return nil, notFound(err)
	}
	var p parser
	t.Capacity = p.dec(capacity)
	t.CurrentLevel = p.dec(level)
	return &t, p.err
}

func (s *Store) SavePump(ctx context.Context, pm station.Pump) error {
	_, err := s.conn().exec(ctx, `
		INSERT INTO pumps (id, station_id, number) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET station_id = excluded.station_id, number = excluded.number
	`, pm.ID, pm.StationID, pm.Number)
	if err != nil {
		return fmt.Errorf("failed to save pump: %w", err)
	}
	return nil
}

func (s *Store) SaveNozzle(ctx context.Context, n station.Nozzle) error {
	_, err := s.conn().exec(ctx, `
		INSERT INTO nozzles (id, pump_id, tank_id) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET pump_id = excluded.pump_id, tank_id = excluded.tank_id
	`, n.ID, n.PumpID, n.TankID)
	if err != nil {
		return fmt.Errorf("failed to save nozzle: %w", err)
	}
	return nil
}

func (s *Store) GetNozzle(ctx context.Context, id string) (*station.Nozzle, error) {
	var n station.Nozzle
	err := s.conn().queryRow(ctx, `SELECT id, pump_id, tank_id FROM nozzles WHERE id = ?`, id).
		Scan(&n.ID, &n.PumpID, &n.TankID)
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

// =============================================================================
// PRICES (station.PriceStore)
// =============================================================================

// AddPrice inserts a tariff row. Rows are never updated or deleted.
func (s *Store) AddPrice(ctx context.Context, pr station.Price) error {
	_, err := s.conn().exec(ctx, `
		INSERT INTO prices (id, station_id, fuel_id, price, effective_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pr.ID, pr.StationID, pr.FuelID, pr.Price.String(), formatTime(pr.EffectiveDate),
		boolInt(pr.IsActive), formatTime(pr.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("price %s: %w", pr.ID, core.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to add price: %w", err)
	}
	return nil
}

func (s *Store) PriceHistory(ctx context.Context, stationID, fuelID string) ([]station.Price, error) {
	rows, err := s.conn().query(ctx, `
		SELECT id, station_id, fuel_id, price, effective_date, is_active, created_at
		FROM prices
		WHERE station_id = ? AND fuel_id = ?
		ORDER BY effective_date ASC, created_at ASC
	`, stationID, fuelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []station.Price
	for rows.Next() {
		var (
			pr                      station.Price
			price, effective, added string
			active                  int64
		)
		if err := rows.Scan(&pr.ID, &pr.StationID, &pr.FuelID, &price, &effective, &active, &added); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		var p parser
		pr.Price = p.dec(price)
		pr.EffectiveDate = p.time(effective)
		pr.CreatedAt = p.time(added)
		pr.IsActive = active != 0
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// =============================================================================
// SHIFTS (station.ShiftReader)
// =============================================================================

// SaveShift upserts a shift and replaces its assignments.
func (s *Store) SaveShift(ctx context.Context, sh station.Shift) error {
	return s.inTx(ctx, func(c conn) error {
		_, err := c.exec(ctx, `
			INSERT INTO shifts (id, station_id, start_time, end_time, status,
				declared_cash, declared_card, declared_credit, declared_cheque, declared_tx_count, shop_sales)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				station_id = excluded.station_id,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				status = excluded.status,
				declared_cash = excluded.declared_cash,
				declared_card = excluded.declared_card,
				declared_credit = excluded.declared_credit,
				declared_cheque = excluded.declared_cheque,
				declared_tx_count = excluded.declared_tx_count,
				shop_sales = excluded.shop_sales
		`, sh.ID, sh.StationID, formatTime(sh.StartTime), nullTime(sh.EndTime), string(sh.Status),
			sh.Declared.Cash.String(), sh.Declared.Card.String(), sh.Declared.Credit.String(),
			sh.Declared.Cheque.String(), sh.Declared.TransactionCount, sh.ShopSales.String())
		if err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		if _, err := c.exec(ctx, `DELETE FROM shift_assignments WHERE shift_id = ?`, sh.ID); err != nil {
			return fmt.Errorf("failed to clear assignments: %w", err)
		}
		for _, a := range sh.Assignments {
			_, err := c.exec(ctx, `
				INSERT INTO shift_assignments (id, shift_id, nozzle_id, pumper_id, start_reading, end_reading, status)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, a.ID, sh.ID, a.NozzleID, nullString(a.PumperID), a.StartMeterReading.String(),
				nullDecimal(a.EndMeterReading), string(a.Status))
			if err != nil {
				return fmt.Errorf("failed to save assignment %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// closedShiftFilter matches on end time, or start time when end time is missing.
const closedShiftFilter = `
	s.station_id = ? AND s.status = 'CLOSED'
	AND COALESCE(s.end_time, s.start_time) >= ?
	AND COALESCE(s.end_time, s.start_time) <= ?`

func (s *Store) ClosedShifts(ctx context.Context, stationID string, w core.Window) ([]station.Shift, error) {
	c := s.conn()
	args := []any{stationID, formatTime(w.From), formatTime(w.To)}

	rows, err := c.query(ctx, `
		SELECT s.id, s.station_id, s.start_time, s.end_time, s.status,
		       s.declared_cash, s.declared_card, s.declared_credit, s.declared_cheque,
		       s.declared_tx_count, s.shop_sales
		FROM shifts s
		WHERE `+closedShiftFilter+`
		ORDER BY s.start_time ASC, s.id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	shifts, err := scanShifts(rows)
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, nil
	}

	rows, err = c.query(ctx, `
		SELECT a.id, a.shift_id, a.nozzle_id, a.pumper_id, a.start_reading, a.end_reading, a.status
		FROM shift_assignments a
		JOIN shifts s ON s.id = a.shift_id
		WHERE `+closedShiftFilter+`
		ORDER BY a.shift_id ASC, a.id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	byShift, err := scanAssignments(rows)
	if err != nil {
		return nil, err
	}
	for i := range shifts {
		shifts[i].Assignments = byShift[shifts[i].ID]
	}
	return shifts, nil
}

func scanShifts(rows *sql.Rows) ([]station.Shift, error) {
	defer rows.Close()
	var out []station.Shift
	for rows.Next() {
		var (
			sh                                  station.Shift
			start, status                       string
			end                                 sql.NullString
			cash, card, creditAmt, cheque, shop string
		)
		err := rows.Scan(&sh.ID, &sh.StationID, &start, &end, &status,
			&cash, &card, &creditAmt, &cheque, &sh.Declared.TransactionCount, &shop)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		var p parser
		sh.StartTime = p.time(start)
		sh.EndTime = p.nullTime(end)
		sh.Status = station.ShiftStatus(status)
		sh.Declared.Cash = p.dec(cash)
		sh.Declared.Card = p.dec(card)
		sh.Declared.Credit = p.dec(creditAmt)
		sh.Declared.Cheque = p.dec(cheque)
		sh.ShopSales = p.dec(shop)
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func scanAssignments(rows *sql.Rows) (map[string][]station.ShiftAssignment, error) {
	defer rows.Close()
	out := make(map[string][]station.ShiftAssignment)
	for rows.Next() {
		var (
			a             station.ShiftAssignment
			pumper, end   sql.NullString
			start, status string
		)
		if err := rows.Scan(&a.ID, &a.ShiftID, &a.NozzleID, &pumper, &start, &end, &status); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		var p parser
		a.PumperID = pumper.String
		a.StartMeterReading = p.dec(start)
		a.EndMeterReading = p.nullDec(end)
		a.Status = station.AssignmentStatus(status)
		if p.err != nil {
			return nil, p.err
		}
		out[a.ShiftID] = append(out[a.ShiftID], a)
	}
	return out, rows.Err()
}
