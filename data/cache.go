package data

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

type CacheItem[T any] struct {
	Value     *T
	ExpiresAt time.Time
}
type Cache[K comparable, V any] struct {
	items map[K]*CacheItem[V]
	ttl   time.Duration
	clock clock.Clock
	mutex sync.Mutex
}

// NewCache creates a new cache whose entries expire ttl after their last use.
func NewCache[K comparable, V any](ttl time.Duration, clk clock.Clock) *Cache[K, V] {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Cache[K, V]{
		items: make(map[K]*CacheItem[V]),
		ttl:   ttl,
		clock: clk,
	}
}

// Get returns the value for key, or nil when missing or expired.
// Getting an item extends its TTL
func (c *Cache[K, V]) Get(key K) *V {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, found := c.items[key]
	if !found {
		return nil
	}
	now := c.clock.Now().UTC()
	if now.After(item.ExpiresAt) {
		delete(c.items, key)
		return nil
	}
	item.ExpiresAt = now.Add(c.ttl)

	return item.Value
}

// Set stores value under key, replacing any previous entry.
func (c *Cache[K, V]) Set(key K, value *V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.purgeExpired()
	c.items[key] = &CacheItem[V]{
		Value:     value,
		ExpiresAt: c.clock.Now().UTC().Add(c.ttl),
	}
}

// Len returns the number of entries, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// purgeExpired drops stale entries so that one-off keys (frame etags) do not
// accumulate. Callers hold the mutex.
func (c *Cache[K, V]) purgeExpired() {
	now := c.clock.Now().UTC()
	for k, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, k)
		}
	}
}
