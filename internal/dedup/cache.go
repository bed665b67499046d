// Package dedup keeps a bounded record of recently seen packet identities.
package dedup

import "sync"

// DefaultCapacity is the high-water mark used when none is configured.
const DefaultCapacity = 5000

// Cache is an approximate-recency seen-set. Once it grows past high it
// drops the oldest entries in bulk down to low, so very old packets may be
// accepted again after a long run.
type Cache struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	high  int
	low   int
}

// New creates a cache trimmed to low whenever it exceeds high.
// A non-positive high selects DefaultCapacity; low defaults to high/2.
func New(high, low int) *Cache {
	if high <= 0 {
		high = DefaultCapacity
	}
	if low <= 0 || low >= high {
		low = high / 2
	}
	return &Cache{
		seen:  make(map[string]struct{}, high+1),
		order: make([]string, 0, high+1),
		high:  high,
		low:   low,
	}
}

// SeenOrRecord reports whether key was already observed. An unseen key is
// recorded before returning false.
func (c *Cache) SeenOrRecord(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	c.order = append(c.order, key)
	if len(c.order) > c.high {
		c.trim()
	}
	return false
}

func (c *Cache) trim() {
	drop := len(c.order) - c.low
	for _, key := range c.order[:drop] {
		delete(c.seen, key)
	}
	kept := make([]string, c.low, c.high+1)
	copy(kept, c.order[drop:])
	c.order = kept
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
