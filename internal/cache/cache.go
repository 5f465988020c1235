// Package cache holds the in-process forecast cache: a TTL-bounded live
// table plus a one-generation stale slot per key, served when the upstream
// fetch fails.
package cache

import (
	"sync"
	"time"

	"github.com/dailytemp/forecast-service/internal/models"
)

// Record is a cached forecast with creation time and per-entry hit count.
type Record struct {
	Value     models.Forecast
	CreatedAt time.Time
	HitCount  int
}

// Stats is a snapshot of cache state and hit statistics.
// HitRate is nil until at least one lookup has happened.
type Stats struct {
	Size       int      `json:"size"`
	MaxSize    int      `json:"max_size"`
	TTLSeconds float64  `json:"ttl_seconds"`
	Hits       uint64   `json:"hits"`
	Misses     uint64   `json:"misses"`
	HitRate    *float64 `json:"hit_rate"`
}

// ForecastCache is safe for concurrent use. Entries expire after the TTL and
// the live table is bounded; overflow evicts in insertion order. A live entry
// is demoted to the stale slot when it is replaced or observed expired, so
// GetStale can always return the last-known value for a key.
type ForecastCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	live    map[string]*Record
	stale   map[string]*Record
	order   []string // live keys in insertion order, for capacity eviction
	hits    uint64
	misses  uint64

	now func() time.Time // test hook
}

// New creates a ForecastCache with the given TTL and max live size.
func New(ttl time.Duration, maxSize int) *ForecastCache {
	return &ForecastCache{
		ttl:     ttl,
		maxSize: maxSize,
		live:    make(map[string]*Record),
		stale:   make(map[string]*Record),
		now:     time.Now,
	}
}

// Get returns the live record for key if present and unexpired, bumping its
// hit counter and the global hit counter. A miss (absent or expired) bumps
// the global miss counter. Expired entries are demoted to the stale slot.
func (c *ForecastCache) Get(key string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.live[key]
	if ok && c.now().Sub(rec.CreatedAt) < c.ttl {
		rec.HitCount++
		c.hits++
		return rec, true
	}
	if ok {
		c.demoteLocked(key, rec)
	}
	c.misses++
	return nil, false
}

// GetStale returns the last-known record for key regardless of TTL expiry.
// It checks the stale slot first, then a still-present (possibly expired)
// live entry. Does not affect hit/miss statistics.
func (c *ForecastCache) GetStale(key string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.stale[key]; ok {
		return rec, true
	}
	if rec, ok := c.live[key]; ok {
		return rec, true
	}
	return nil, false
}

// Set installs a fresh live record for key. Any existing live entry for the
// key is moved into the stale slot first, replacing the previous stale
// generation. Inserting past maxSize evicts the oldest-inserted live entry.
func (c *ForecastCache) Set(key string, value models.Forecast) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.live[key]; ok {
		c.demoteLocked(key, prev)
	}

	if c.maxSize > 0 && len(c.live) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.live[key] = &Record{
		Value:     value,
		CreatedAt: c.now(),
	}
	c.order = append(c.order, key)
}

// demoteLocked moves a live record into the stale slot for key,
// replacing any previous stale generation. Caller holds mu.
func (c *ForecastCache) demoteLocked(key string, rec *Record) {
	c.stale[key] = rec
	delete(c.live, key)
	c.removeFromOrderLocked(key)
}

// evictOldestLocked drops the oldest-inserted live entry. The stale slot for
// the evicted key is left untouched.
func (c *ForecastCache) evictOldestLocked() {
	for len(c.order) > 0 {
		key := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.live[key]; ok {
			delete(c.live, key)
			return
		}
	}
}

func (c *ForecastCache) removeFromOrderLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Stats returns a snapshot of size and hit statistics.
func (c *ForecastCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:       len(c.live),
		MaxSize:    c.maxSize,
		TTLSeconds: c.ttl.Seconds(),
		Hits:       c.hits,
		Misses:     c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		rate := float64(c.hits) / float64(total) * 100
		s.HitRate = &rate
	}
	return s
}
