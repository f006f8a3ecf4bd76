package pagekeeper

import (
	"context"
	"sync"

	"github.com/hazyhaar/pagever/pagekeeper/internal/store"
)

// catalogCache memoizes store.Catalog until invalidated. Local ingestion
// invalidates it directly; writes from other processes are picked up by
// the watch loop started in Keeper.Start.
type catalogCache struct {
	store   *store.Store
	metrics *Metrics

	mu      sync.Mutex
	entries []CatalogEntry
	valid   bool
	gen     uint64
}

func (c *catalogCache) get(ctx context.Context) ([]CatalogEntry, error) {
	c.mu.Lock()
	if c.valid {
		out := append([]CatalogEntry(nil), c.entries...)
		c.mu.Unlock()
		return out, nil
	}
	gen := c.gen
	c.mu.Unlock()

	entries, err := c.store.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	c.metrics.catalogLoads.Inc()

	c.mu.Lock()
	// An invalidation during the load means entries may be stale.
	if c.gen == gen {
		c.entries = entries
		c.valid = true
	}
	c.mu.Unlock()
	return append([]CatalogEntry(nil), entries...), nil
}

func (c *catalogCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.entries = nil
	c.gen++
	c.mu.Unlock()
}
