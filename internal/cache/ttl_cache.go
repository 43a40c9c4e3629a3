package cache

import (
	"sync"
	"time"
)

// Cache is a bounded-staleness key/value store.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	now     func() time.Time
}

// NewTTLCache returns an in-memory TTL cache safe for concurrent use.
// Expired entries are dropped lazily on read.
func NewTTLCache[K comparable, V any]() Cache[K, V] {
	return &ttlCache[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		if current, exists := c.entries[key]; exists && current.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
