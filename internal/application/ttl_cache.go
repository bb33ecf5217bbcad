package application

import (
	"sync"
	"time"
)

// ttlCache is a small bounded map whose entries expire after ttl. Values are
// passed through clone on the way in and out so callers never share state
// with the cache.
type ttlCache[V any] struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	clone      func(V) V
	entries    map[string]ttlCacheEntry[V]
}

type ttlCacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func newTTLCache[V any](ttl time.Duration, maxEntries int, now func() time.Time, clone func(V) V) *ttlCache[V] {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	if clone == nil {
		clone = func(v V) V { return v }
	}
	return &ttlCache[V]{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		clone:      clone,
		entries:    make(map[string]ttlCacheEntry[V]),
	}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return zero, false
	}
	return c.clone(entry.value), true
}

func (c *ttlCache[V]) Store(key string, value V) {
	if c == nil {
		return
	}
	cloned := c.clone(value)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = ttlCacheEntry[V]{value: cloned, expiresAt: expiry}
}

// Keys lists the keys of live entries in no particular order.
func (c *ttlCache[V]) Keys() []string {
	if c == nil {
		return nil
	}
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for key, entry := range c.entries {
		if !now.After(entry.expiresAt) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *ttlCache[V]) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOneLocked drops the entry closest to expiry.
func (c *ttlCache[V]) evictOneLocked() {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for key, entry := range c.entries {
		if !found || entry.expiresAt.Before(oldest) {
			victim, oldest, found = key, entry.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}
