package eta

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Cache is a tiny in-memory cache for ETA lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Cached wraps a Client with a TTL cache so repeated lookups between the
// same coordinate pair hit the backend only once per window. Errors are
// never cached.
type Cached struct {
	Inner Client
	cache *Cache
}

// NewCached wraps inner with a cache using the provided TTL.
func NewCached(inner Client, ttl time.Duration) *Cached {
	return &Cached{Inner: inner, cache: NewCache(ttl)}
}

func (c *Cached) EstimateSeconds(from, to models.Coord) (float64, error) {
	if v, ok := c.cache.Get(from, to); ok {
		return v, nil
	}
	v, err := c.Inner.EstimateSeconds(from, to)
	if err != nil {
		return 0, err
	}
	c.cache.Set(from, to, v)
	return v, nil
}
