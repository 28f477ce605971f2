// Package cache provides a thread-safe LRU cache bounded by the total cost
// of its entries rather than their count.
//
//	c := cache.New[string, []byte](64<<20, func(b []byte) int64 { return int64(len(b)) })
//	c.Set("key", data)
//	v, ok := c.Get("key")
//
// Training images are the main client: a large project holds far more
// pixels than fit in memory, and each camera is revisited once per epoch.
package cache
