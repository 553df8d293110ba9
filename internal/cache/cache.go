// Package cache provides a bounded in-memory result cache keyed by request
// signature, with both a TTL and an LRU eviction policy.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an entry stays valid after being stored.
	DefaultTTL = 5 * time.Minute

	// DefaultCapacity is the maximum number of entries held at once.
	DefaultCapacity = 256
)

// Cache is a fixed-capacity TTL+LRU store. Expired entries are dropped
// lazily on access; when the cache is full the least recently used entry
// is evicted. Safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	entries  map[Signature]*list.Element
	now      func() time.Time

	hits   uint64
	misses uint64
}

type entry[V any] struct {
	sig      Signature
	value    V
	storedAt time.Time
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithTTL overrides the entry lifetime.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity overrides the maximum entry count.
func WithCapacity[V any](n int) Option[V] {
	return func(c *Cache[V]) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// withClock substitutes the time source. Test use only.
func withClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// New creates an empty cache with the default TTL and capacity.
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		order:    list.New(),
		entries:  make(map[Signature]*list.Element),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for sig if present and not expired. An
// expired entry is removed and reported as a miss. A hit refreshes the
// entry's LRU position but not its TTL.
func (c *Cache[V]) Get(sig Signature) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[sig]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := el.Value.(*entry[V])
	if c.now().Sub(ent.storedAt) >= c.ttl {
		c.removeLocked(el)
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Set stores value under sig, replacing any existing entry and resetting
// its TTL. When the cache is at capacity the least recently used entry is
// evicted first.
func (c *Cache[V]) Set(sig Signature, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[sig]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	el := c.order.PushFront(&entry[V]{sig: sig, value: value, storedAt: c.now()})
	c.entries[sig] = el
}

// Len reports the current number of entries, including any that have
// expired but not yet been touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats reports cumulative hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[V])
	delete(c.entries, ent.sig)
	c.order.Remove(el)
}
