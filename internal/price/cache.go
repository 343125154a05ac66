package price

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Cache holds prices with a TTL. It is an explicit object constructed
// once per collector run and discarded at run end; there are no
// process-wide price singletons.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[Pair]cacheEntry
}

type cacheEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// NewCache builds a Cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Pair]cacheEntry),
	}
}

// Get returns a cached price if present and fresh.
func (c *Cache) Get(pair Pair) (decimal.Decimal, bool) {
	c.mu.RLock()
	entry, ok := c.entries[pair]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return decimal.Zero, false
	}
	return entry.price, true
}

// Put stores a price with the cache's TTL.
func (c *Cache) Put(pair Pair, price decimal.Decimal) {
	c.mu.Lock()
	c.entries[pair] = cacheEntry{price: price, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops a pair's entry.
func (c *Cache) Invalidate(pair Pair) {
	c.mu.Lock()
	delete(c.entries, pair)
	c.mu.Unlock()
}

// CachedFeed wraps a Feed with a Cache. Misses fall through to the
// inner feed; unavailable prices are not cached.
type CachedFeed struct {
	Inner Feed
	Cache *Cache
}

func (f CachedFeed) PriceInQuote(ctx context.Context, tokenIn, tokenOut common.Address) (decimal.Decimal, bool) {
	pair := Pair{TokenIn: tokenIn, TokenOut: tokenOut}
	if p, ok := f.Cache.Get(pair); ok {
		return p, true
	}
	p, ok := f.Inner.PriceInQuote(ctx, tokenIn, tokenOut)
	if ok {
		f.Cache.Put(pair, p)
	}
	return p, ok
}
