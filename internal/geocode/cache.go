package geocode

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "geocode:"

// Lookup is a cached geocoding outcome. Found false records a negative
// result so repeated misses for the same name skip the upstream call.
type Lookup struct {
	Result Result `json:"result"`
	Found  bool   `json:"found"`
}

// Cache stores geocoding outcomes with a TTL. Get returns ok=false on miss;
// err is reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (Lookup, bool, error)
	Set(ctx context.Context, key string, value Lookup, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries
// are dropped on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]memoryEntry
}

type memoryEntry struct {
	value     Lookup
	expiresAt time.Time
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{data: make(map[string]memoryEntry)}
}

// Get implements Cache.Get.
func (c *InMemoryCache) Get(ctx context.Context, key string) (Lookup, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return Lookup{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return Lookup{}, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache.Set.
func (c *InMemoryCache) Set(ctx context.Context, key string, value Lookup, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// MemcachedCache implements Cache using memcached, for sharing geocode
// results across instances.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on
// backend error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (Lookup, bool, error) {
	if ctx.Err() != nil {
		return Lookup{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return Lookup{}, false, nil
		}
		return Lookup{}, false, err
	}
	var value Lookup
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return Lookup{}, false, err
	}
	return value, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value Lookup, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 86400 // fallback 24h if invalid
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
