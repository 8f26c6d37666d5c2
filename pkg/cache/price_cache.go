// Package cache provides a sharded in-memory price cache so order
// monitors polling the same symbol share one ticker fetch.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// PriceCache is a sharded last-price cache keyed by symbol.
type PriceCache struct {
	shards [numShards]*priceShard
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]priceEntry
}

type priceEntry struct {
	price     float64
	updatedAt time.Time
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	c := &PriceCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &priceShard{items: make(map[string]priceEntry)}
	}
	return c
}

func (c *PriceCache) shard(key string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the latest price for a symbol.
func (c *PriceCache) Set(symbol string, price float64) {
	s := c.shard(symbol)
	s.mu.Lock()
	s.items[symbol] = priceEntry{price: price, updatedAt: time.Now()}
	s.mu.Unlock()
}

// Fresh returns the cached price when it is younger than maxAge.
func (c *PriceCache) Fresh(symbol string, maxAge time.Duration) (float64, bool) {
	s := c.shard(symbol)
	s.mu.RLock()
	entry, ok := s.items[symbol]
	s.mu.RUnlock()
	if !ok || time.Since(entry.updatedAt) > maxAge {
		return 0, false
	}
	return entry.price, true
}

// Len returns the number of cached symbols.
func (c *PriceCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Prune drops entries older than maxAge and returns how many were
// removed.
func (c *PriceCache) Prune(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, s := range c.shards {
		s.mu.Lock()
		for sym, entry := range s.items {
			if entry.updatedAt.Before(cutoff) {
				delete(s.items, sym)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Snapshot returns a copy of every cached price.
func (c *PriceCache) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, s := range c.shards {
		s.mu.RLock()
		for sym, entry := range s.items {
			out[sym] = entry.price
		}
		s.mu.RUnlock()
	}
	return out
}
