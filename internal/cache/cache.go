package cache

import "sync"

// Cache is an LRU cache whose entries carry a cost. When the total cost
// exceeds the budget, least recently used entries are evicted until it
// fits again. The most recent entry is never evicted, even when it alone
// exceeds the budget.
//
// Cache is safe for concurrent use and must not be copied after creation.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	order   lruList[K]
	cost    func(V) int64
	budget  int64
	total   int64

	hits, misses, evictions uint64
}

type entry[K comparable, V any] struct {
	value V
	cost  int64
	node  *lruNode[K]
}

// New creates a cache bounded by budget. A budget of 0 means unlimited.
// cost may be nil, in which case every entry costs 1.
func New[K comparable, V any](budget int64, cost func(V) int64) *Cache[K, V] {
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &Cache[K, V]{entries: make(map[K]*entry[K, V]), cost: cost, budget: budget}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.moveToFront(e.node)
	return e.value, true
}

// Set stores value under key, replacing any previous value.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cost := c.cost(value)
	if e, ok := c.entries[key]; ok {
		c.total += cost - e.cost
		e.value, e.cost = value, cost
		c.order.moveToFront(e.node)
	} else {
		c.entries[key] = &entry[K, V]{value: value, cost: cost, node: c.order.pushFront(key)}
		c.total += cost
	}
	c.evict()
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. load runs without the cache lock held; concurrent misses on the
// same key may load twice and the last one wins. Errors are not cached.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.remove(key, e)
	}
	return ok
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Len:       len(c.entries),
		Cost:      c.total,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if n := c.hits + c.misses; n > 0 {
		s.HitRate = float64(c.hits) / float64(n)
	}
	return s
}

// evict drops least recently used entries until the total fits the budget.
// Caller must hold c.mu.
func (c *Cache[K, V]) evict() {
	if c.budget <= 0 {
		return
	}
	for c.total > c.budget && c.order.len > 1 {
		n := c.order.back()
		c.remove(n.key, c.entries[n.key])
		c.evictions++
	}
}

func (c *Cache[K, V]) remove(key K, e *entry[K, V]) {
	c.order.unlink(e.node)
	delete(c.entries, key)
	c.total -= e.cost
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Cost      int64
	Budget    int64
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}
