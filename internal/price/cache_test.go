package price

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	tokenA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(time.Minute)
	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	pair := Pair{TokenIn: tokenA, TokenOut: tokenB}
	cache.Put(pair, decimal.RequireFromString("0.5"))

	if _, ok := cache.Get(pair); !ok {
		t.Fatalf("fresh entry missing")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(pair); ok {
		t.Fatalf("stale entry served")
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewCache(time.Minute)
	pair := Pair{TokenIn: tokenA, TokenOut: tokenB}
	cache.Put(pair, decimal.RequireFromString("0.5"))
	cache.Invalidate(pair)
	if _, ok := cache.Get(pair); ok {
		t.Fatalf("invalidated entry served")
	}
}

type countingFeed struct {
	calls int
	price decimal.Decimal
	ok    bool
}

func (f *countingFeed) PriceInQuote(_ context.Context, _, _ common.Address) (decimal.Decimal, bool) {
	f.calls++
	return f.price, f.ok
}

func TestCachedFeedHitsInnerOnce(t *testing.T) {
	inner := &countingFeed{price: decimal.RequireFromString("1.25"), ok: true}
	feed := CachedFeed{Inner: inner, Cache: NewCache(time.Minute)}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p, ok := feed.PriceInQuote(ctx, tokenA, tokenB)
		if !ok || !p.Equal(inner.price) {
			t.Fatalf("price mismatch on call %d: %s ok=%v", i, p, ok)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner feed called %d times, want 1", inner.calls)
	}
}

func TestCachedFeedDoesNotCacheUnavailable(t *testing.T) {
	inner := &countingFeed{ok: false}
	feed := CachedFeed{Inner: inner, Cache: NewCache(time.Minute)}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, ok := feed.PriceInQuote(ctx, tokenA, tokenB); ok {
			t.Fatalf("unavailable price reported available")
		}
	}
	if inner.calls != 2 {
		t.Fatalf("unavailable result was cached")
	}
}

func TestStaticFeed(t *testing.T) {
	feed := Static{Prices: map[Pair]decimal.Decimal{
		{TokenIn: tokenA, TokenOut: tokenB}: decimal.RequireFromString("0.02"),
	}}

	p, ok := feed.PriceInQuote(context.Background(), tokenA, tokenB)
	if !ok || !p.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("static price mismatch: %s ok=%v", p, ok)
	}
	if _, ok := feed.PriceInQuote(context.Background(), tokenB, tokenA); ok {
		t.Fatalf("unknown pair should be unavailable")
	}
}
