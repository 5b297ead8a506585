// Package cache provides a generic in-memory TTL cache.
package cache

import (
	"context"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiry
}

func (i item[V]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// Cache is a concurrency-safe map with per-entry TTL and a janitor goroutine.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]item[V]
	now     func() time.Time
	onEvict func(K, V)

	stop chan struct{}
	once sync.Once
}

// New creates a cache. cleanupInterval <= 0 disables the janitor; expired
// entries are then only dropped on access.
func New[K comparable, V any](cleanupInterval time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		items: make(map[K]item[V]),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

// Get returns the value for k if present and not expired.
func (c *Cache[K, V]) Get(_ context.Context, k K) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[k]
	c.mu.RUnlock()

	if !ok || it.expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores v under k. ttl <= 0 keeps the entry until deleted.
func (c *Cache[K, V]) Set(_ context.Context, k K, v V, ttl time.Duration) {
	it := item[V]{value: v}
	if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[k] = it
	c.mu.Unlock()
}

// SetIfAbsent stores v only when k is missing or expired. It reports whether
// the value was stored, which makes it usable as a claim.
func (c *Cache[K, V]) SetIfAbsent(_ context.Context, k K, v V, ttl time.Duration) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[k]; ok && !it.expired(now) {
		return false
	}
	it := item[V]{value: v}
	if ttl > 0 {
		it.expiresAt = now.Add(ttl)
	}
	c.items[k] = it
	return true
}

// Delete removes k.
func (c *Cache[K, V]) Delete(_ context.Context, k K) {
	c.mu.Lock()
	delete(c.items, k)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including not yet collected expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// OnEvict registers fn to run for every entry the janitor drops on expiry.
// fn runs outside the cache lock. Delete and lazy misses do not call it.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Close stops the janitor.
func (c *Cache[K, V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache[K, V]) deleteExpired() {
	now := c.now()

	type evicted struct {
		k K
		v V
	}
	var dropped []evicted

	c.mu.Lock()
	onEvict := c.onEvict
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
			if onEvict != nil {
				dropped = append(dropped, evicted{k, it.value})
			}
		}
	}
	c.mu.Unlock()

	for _, e := range dropped {
		onEvict(e.k, e.v)
	}
}
