// Package cache owns the per-symbol price history. Each symbol has its own
// ring and lock; the symbol map lock is held only to find or create a ring.
package cache

import (
	"sort"
	"sync"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
	"github.com/pxbt-dev/AiTradingCharts/internal/ringbuf"
)

const (
	// DefaultCapacity bounds live history per symbol.
	DefaultCapacity = 20000

	// DefaultBootstrapLimit bounds how much history Seed keeps.
	DefaultBootstrapLimit = 1000
)

// ErrOutOfOrder is returned by Append for a point older than the latest one.
var ErrOutOfOrder = ringbuf.ErrOutOfOrder

// Cache is a concurrent map of symbol → bounded price series.
type Cache struct {
	capacity int

	mu     sync.RWMutex
	series map[string]*ringbuf.Ring
}

// New creates a cache with the given per-symbol capacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		series:   make(map[string]*ringbuf.Ring),
	}
}

// Capacity returns the per-symbol capacity.
func (c *Cache) Capacity() int { return c.capacity }

// Append adds p to its symbol's series, evicting the oldest point on overflow.
func (c *Cache) Append(symbol string, p model.PricePoint) error {
	return c.ring(symbol, true).Push(p)
}

// Seed loads historical points for symbol, keeping at most limit of the most
// recent ones. Points older than what is already stored are skipped.
func (c *Cache) Seed(symbol string, points []model.PricePoint, limit int) int {
	if limit <= 0 {
		limit = DefaultBootstrapLimit
	}
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	r := c.ring(symbol, true)
	n := 0
	for _, p := range points {
		if err := r.Push(p); err == nil {
			n++
		}
	}
	return n
}

// Snapshot returns up to maxPoints of the newest points as an independent
// copy, oldest first. maxPoints <= 0 returns the whole series. Unknown
// symbols return nil.
func (c *Cache) Snapshot(symbol string, maxPoints int) []model.PricePoint {
	r := c.ring(symbol, false)
	if r == nil {
		return nil
	}
	return r.Last(maxPoints)
}

// Count returns the number of points stored for symbol.
func (c *Cache) Count(symbol string) int {
	r := c.ring(symbol, false)
	if r == nil {
		return 0
	}
	return r.Len()
}

// Latest returns the newest point for symbol.
func (c *Cache) Latest(symbol string) (model.PricePoint, bool) {
	r := c.ring(symbol, false)
	if r == nil {
		return model.PricePoint{}, false
	}
	return r.Latest()
}

// Symbols lists every symbol with a series, sorted.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.series))
	for s := range c.series {
		out = append(out, s)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Stats reports point counts per symbol.
func (c *Cache) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.series))
	for s, r := range c.series {
		out[s] = r.Len()
	}
	return out
}

func (c *Cache) ring(symbol string, create bool) *ringbuf.Ring {
	c.mu.RLock()
	r, ok := c.series[symbol]
	c.mu.RUnlock()
	if ok || !create {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok = c.series[symbol]; ok {
		return r
	}
	r = ringbuf.New(c.capacity)
	c.series[symbol] = r
	return r
}
