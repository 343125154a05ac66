package price

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Feed supplies token prices in quote-token terms. The bool result is
// false when no price is available; unavailability is not an error and
// never panics a collection cycle. Callers treat a missing price as
// "unknown", never as zero.
type Feed interface {
	PriceInQuote(ctx context.Context, tokenIn, tokenOut common.Address) (decimal.Decimal, bool)
}

// Static is an explicit, operator-configured estimate. It exists so a
// deployment can pin a fallback price without burying a literal in
// code; tests use it to supply exact prices.
type Static struct {
	Prices map[Pair]decimal.Decimal
}

// Pair identifies a priced token pair.
type Pair struct {
	TokenIn  common.Address
	TokenOut common.Address
}

func (s Static) PriceInQuote(_ context.Context, tokenIn, tokenOut common.Address) (decimal.Decimal, bool) {
	p, ok := s.Prices[Pair{TokenIn: tokenIn, TokenOut: tokenOut}]
	return p, ok
}
