// Package node holds the in-memory authoritative view of per-node state and
// its write-through to the durable store.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bb-mesh-service/internal/node/domain"
	"bb-mesh-service/internal/node/repository"
)

// Stats summarizes the cache for the status surface.
type Stats struct {
	CachedNodes    int    `json:"cached_nodes"`
	StoreAvailable bool   `json:"store_available"`
	StoreWrites    uint64 `json:"store_writes"`
	StoreErrors    uint64 `json:"store_errors"`
}

// Cache merges partial node updates and writes the merged record through to
// the repository. The in-memory state is authoritative: a failing store
// degrades durability, never correctness. All reads after an Upsert observe
// the merge immediately.
type Cache struct {
	log  *slog.Logger
	repo repository.Repository // nil means cache-only mode
	now  func() time.Time

	mu    sync.RWMutex
	nodes map[uint32]*domain.NodeRecord

	writes      atomic.Uint64
	writeErrors atomic.Uint64
}

// NewCache returns an empty cache. repo may be nil for cache-only,
// non-durable operation.
func NewCache(repo repository.Repository, log *slog.Logger) *Cache {
	return &Cache{
		log:   log,
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		nodes: make(map[uint32]*domain.NodeRecord),
	}
}

// Load seeds the cache from the repository. Call before live traffic so
// merges start from the persisted state. A missing or failing store is not
// fatal: the service degrades to cache-only mode and reports the error.
func (c *Cache) Load(ctx context.Context) (int, error) {
	if c.repo == nil {
		return 0, nil
	}
	records, err := c.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("node: load existing records: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		c.nodes[rec.NodeID] = rec.Clone()
	}
	return len(records), nil
}

// Upsert merges the observed fields into the node's record, stamps the
// timestamp selected by kind, and writes the merged record through to the
// repository. Nil fields in upd never erase existing values. The returned
// record is a copy.
func (c *Cache) Upsert(ctx context.Context, nodeID uint32, upd domain.NodeUpdate, kind domain.UpdateKind) *domain.NodeRecord {
	c.mu.Lock()
	rec, ok := c.nodes[nodeID]
	if !ok {
		rec = &domain.NodeRecord{NodeID: nodeID}
		c.nodes[nodeID] = rec
	}
	if upd.Shortname != nil {
		rec.Shortname = upd.Shortname
	}
	if upd.Longname != nil {
		rec.Longname = upd.Longname
	}
	if upd.Latitude != nil {
		rec.Latitude = upd.Latitude
	}
	if upd.Longitude != nil {
		rec.Longitude = upd.Longitude
	}
	if upd.Voltage != nil {
		rec.LastKnownVoltage = upd.Voltage
	}
	if upd.BatteryPercent != nil {
		rec.LastKnownBatteryPercent = upd.BatteryPercent
	}
	stamp := c.now()
	switch kind {
	case domain.UpdateBattery:
		rec.LastSeenBattery = &stamp
	case domain.UpdateLocation:
		rec.LastSeenLocation = &stamp
	default:
		rec.LastSeen = &stamp
	}
	merged := rec.Clone()
	c.mu.Unlock()

	if c.repo != nil {
		c.writes.Add(1)
		if err := c.repo.Upsert(ctx, merged); err != nil {
			c.writeErrors.Add(1)
			c.log.Warn("node store write failed", "node", fmt.Sprintf("%x", nodeID), "error", err)
		}
	}
	return merged
}

// Get returns a copy of the node's record, or nil if never observed.
func (c *Cache) Get(nodeID uint32) *domain.NodeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodes[nodeID].Clone()
}

// All returns copies of every cached record.
func (c *Cache) All() []*domain.NodeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.NodeRecord, 0, len(c.nodes))
	for _, rec := range c.nodes {
		out = append(out, rec.Clone())
	}
	return out
}

// Stats returns cache counters for the status surface.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	cached := len(c.nodes)
	c.mu.RUnlock()
	return Stats{
		CachedNodes:    cached,
		StoreAvailable: c.repo != nil,
		StoreWrites:    c.writes.Load(),
		StoreErrors:    c.writeErrors.Load(),
	}
}
