package rates

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Cache stores crypto prices keyed by crypto symbol; each entry carries the
// quotes against the fiats seen so far. Writers are last-writer-wins.
type Cache interface {
	Get(ctx context.Context, symbol, fiat string) (decimal.Decimal, bool)
	Set(ctx context.Context, symbol, fiat string, price decimal.Decimal)
}

type pricePoint struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// MemoryCache is the default in-process read-through cache.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]map[string]pricePoint
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]map[string]pricePoint),
	}
}

func (c *MemoryCache) Get(_ context.Context, symbol, fiat string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.entries[symbol][fiat]
	if !ok || c.now().Sub(p.fetchedAt) >= c.ttl {
		return decimal.Decimal{}, false
	}
	return p.price, true
}

func (c *MemoryCache) Set(_ context.Context, symbol, fiat string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[symbol]
	if !ok {
		e = make(map[string]pricePoint)
		c.entries[symbol] = e
	}
	e[fiat] = pricePoint{price: price, fetchedAt: c.now()}
}
