// Package cache memoises approved responses keyed by query fingerprint.
// Entries expire after a TTL and are evicted least-recently-used when the
// capacity bound is reached. Reads refresh recency.
package cache

import (
	"container/list"
	"sync"
	"time"

	"vendora/internal/insight"
	"vendora/internal/logging"
)

type cacheEntry struct {
	fingerprint string
	response    *insight.Response
	storedAt    time.Time
}

// Cache is a concurrency-safe LRU+TTL response cache.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List               // front = most recently used
	entries  map[string]*list.Element // fingerprint -> element holding *cacheEntry

	// now is injectable for TTL tests.
	now func() time.Time
}

// New creates a cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Lookup returns a copy of the cached response for the fingerprint, if
// present and within the TTL. Expired entries are evicted lazily.
func (c *Cache) Lookup(fingerprint string) (*insight.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.removeLocked(elem)
		logging.CacheDebug("expired entry %s", fingerprint)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.response.Clone(), true
}

// Store inserts or replaces the response for a fingerprint, evicting the
// least-recently-used entry when over capacity.
func (c *Cache) Store(fingerprint string, response *insight.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.response = response.Clone()
		entry.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{
		fingerprint: fingerprint,
		response:    response.Clone(),
		storedAt:    c.now(),
	}
	c.entries[fingerprint] = c.order.PushFront(entry)

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Evict drops the entry for a fingerprint if present.
func (c *Cache) Evict(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[fingerprint]; ok {
		c.removeLocked(elem)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.fingerprint)
}

// Len returns the number of live entries (including any not yet lazily
// expired).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
