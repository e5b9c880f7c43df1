package executor

import (
	"sync"
	"time"
)

// cacheEntry pairs a payload with its write time and lifetime. Entries are
// never mutated after insertion; a refresh stores a new entry.
type cacheEntry struct {
	payload  any
	storedAt time.Time
	ttl      time.Duration
}

func (e cacheEntry) valid(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// Cache is a TTL-bounded key/value cache owned by one Executor. Expired
// entries are treated as absent and reaped lazily on access.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the payload for key if a live entry exists. An expired entry
// is removed and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.valid(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.payload, true
}

// Set stores payload under key with the given lifetime. A non-positive ttl
// stores nothing.
func (c *Cache) Set(key string, payload any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{payload: payload, storedAt: c.now(), ttl: ttl}
}

// Invalidate removes the entry for key, reporting whether one was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Size reports the number of live entries, reaping expired ones.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reapLocked()
	return len(c.entries)
}

// Keys reports the keys of all live entries, reaping expired ones. Order is
// unspecified.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reapLocked()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache) reapLocked() {
	now := c.now()
	for k, entry := range c.entries {
		if !entry.valid(now) {
			delete(c.entries, k)
		}
	}
}
