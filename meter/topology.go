package meter

import (
	"context"
	"fmt"

	"github.com/pumpline/station-core/station"
)

// topologyCache resolves nozzle -> tank -> fuel once per nozzle per run.
type topologyCache struct {
	catalog station.Catalog
	fuels   map[string]*station.Fuel
}

func newTopologyCache(catalog station.Catalog) *topologyCache {
	return &topologyCache{catalog: catalog, fuels: make(map[string]*station.Fuel)}
}

func (c *topologyCache) fuelFor(ctx context.Context, nozzleID string) (*station.Fuel, error) {
	if f, ok := c.fuels[nozzleID]; ok {
		return f, nil
	}

	nozzle, err := c.catalog.GetNozzle(ctx, nozzleID)
	if err != nil {
		return nil, fmt.Errorf("nozzle %s: %w", nozzleID, err)
	}
	tank, err := c.catalog.GetTank(ctx, nozzle.TankID)
	if err != nil {
		return nil, fmt.Errorf("tank %s for nozzle %s: %w", nozzle.TankID, nozzleID, err)
	}
	if tank.FuelID == "" {
		return nil, fmt.Errorf("tank %s has no fuel type", tank.ID)
	}
	fuel, err := c.catalog.GetFuel(ctx, tank.FuelID)
	if err != nil {
		return nil, fmt.Errorf("fuel %s for tank %s: %w", tank.FuelID, tank.ID, err)
	}

	c.fuels[nozzleID] = fuel
	return fuel, nil
}
