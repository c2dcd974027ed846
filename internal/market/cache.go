package market

import (
	"sync"
	"time"
)

type cacheEntry struct {
	quote    Quote
	storedAt time.Time
}

// QuoteCache is a TTL cache of quotes keyed by normalised symbol.
// Expired entries are evicted when read. It is safe for concurrent use.
type QuoteCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// CacheOption configures a QuoteCache.
type CacheOption func(*QuoteCache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *QuoteCache) {
		c.now = now
	}
}

// NewQuoteCache creates a cache whose entries live for ttl.
func NewQuoteCache(ttl time.Duration, opts ...CacheOption) *QuoteCache {
	c := &QuoteCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a fresh cached quote for symbol.
func (c *QuoteCache) Get(symbol string) (Quote, bool) {
	c.mu.RLock()
	entry, found := c.entries[symbol]
	c.mu.RUnlock()
	if !found {
		return Quote{}, false
	}

	if c.now().Sub(entry.storedAt) < c.ttl {
		return entry.quote, true
	}

	c.mu.Lock()
	// another writer may have refreshed the entry meanwhile
	if current, still := c.entries[symbol]; still && c.now().Sub(current.storedAt) >= c.ttl {
		delete(c.entries, symbol)
	}
	c.mu.Unlock()
	return Quote{}, false
}

// Set stores q under symbol.
func (c *QuoteCache) Set(symbol string, q Quote) {
	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: q, storedAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
