package report

import (
	"context"
	"sync"
	"time"

	"github.com/pumpline/station-core/core"
)

// Cache stores presented reports for a short time. Reports may be slightly
// stale by design; ledger balances are never served from here.
type Cache interface {
	Get(ctx context.Context, key string) (*View, bool, error)
	Set(ctx context.Context, key string, value *View, ttl time.Duration) error
}

// CacheKey identifies a report by station and window.
func CacheKey(stationID string, w core.Window) string {
	return "report:" + stationID + ":" + w.From.UTC().Format(time.RFC3339Nano) + ":" + w.To.UTC().Format(time.RFC3339Nano)
}

type NoopCache struct{}

func (NoopCache) Get(_ context.Context, _ string) (*View, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(_ context.Context, _ string, _ *View, _ time.Duration) error {
	return nil
}

// MemoryCache is a process-local Cache for single-instance deployments and tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	view    View
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*View, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	v := e.view
	return &v, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value *View, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{view: *value, expires: c.now().Add(ttl)}
	return nil
}
