// Package cache provides a bounded in-memory query cache with hit/miss
// accounting. The search service fronts its query path with one of these;
// the diagnostics cache checker reads the same counters through Stats.
package cache

import (
	"container/list"
	"sync"
)

// Stats is a point-in-time snapshot of cache counters. All counters are
// cumulative since construction; Entries and MemoryBytes reflect current
// contents.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Errors      uint64
	Entries     int
	Capacity    int
	MemoryBytes int64
}

// HitRate returns hits / (hits + misses), or 1.0 when the cache has never
// been queried. An idle cache is healthy, not failing.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 1.0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	key   string
	value []byte
}

// Cache is a fixed-capacity LRU cache keyed by string. Safe for concurrent
// use. Values are copied on Put and Get so callers cannot alias internal
// state.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[string]*list.Element

	hits   uint64
	misses uint64
	errors uint64
	bytes  int64
}

// New creates a Cache holding at most capacity entries. Capacity must be
// at least 1.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the cached value for key and whether it was present,
// updating hit/miss counters.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	v := el.Value.(*entry).value
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.bytes += int64(len(cp)) - int64(len(e.value))
		e.value = cp
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	el := c.order.PushFront(&entry{key: key, value: cp})
	c.items[key] = el
	c.bytes += int64(len(key) + len(cp))
}

// evictOldest removes the least recently used entry. Caller holds mu.
func (c *Cache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
	c.bytes -= int64(len(e.key) + len(e.value))
}

// RecordError increments the error counter. Callers record lookup-path
// failures here (backend query errors, decode failures) so the cache
// checker can surface sustained error activity.
func (c *Cache) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

// Invalidate removes all entries. Counters are preserved.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.bytes = 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Errors:      c.errors,
		Entries:     c.order.Len(),
		Capacity:    c.capacity,
		MemoryBytes: c.bytes,
	}
}
