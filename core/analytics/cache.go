package analytics

import (
	"sync"
	"time"
)

type cacheKey struct {
	set     string
	subject string
	preset  Preset
}

type cacheEntry struct {
	payload    []byte
	computedAt time.Time
}

// metricsCache keeps computed payloads for a fixed TTL. The map is the only
// shared mutable state of the aggregator; the mutex is never held across a
// record store call. Entries are recomputed synchronously by the request
// that finds them missing or stale.
type metricsCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func newMetricsCache(ttl time.Duration) *metricsCache {
	return &metricsCache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (c *metricsCache) get(key cacheKey, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || now.Sub(entry.computedAt) >= c.ttl {
		return nil, false
	}
	return entry.payload, true
}

func (c *metricsCache) put(key cacheKey, payload []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, computedAt: now}
}

func (c *metricsCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}
