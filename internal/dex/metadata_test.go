package dex

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceToken0InToken1Unit(t *testing.T) {
	// sqrtPriceX96 = 2^96 encodes a raw price of exactly 1.
	state := PoolState{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96)}

	got, ok := state.PriceToken0InToken1(6, 6)
	if !ok {
		t.Fatalf("expected a usable price")
	}
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("price = %s, want 1", got)
	}
}

func TestPriceToken0InToken1DecimalAdjust(t *testing.T) {
	// Raw price of 1 token1-wei per token0-wei; with 18 vs 6 decimals a
	// whole token0 is worth 10^(18-6) whole token1.
	state := PoolState{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96)}

	got, ok := state.PriceToken0InToken1(18, 6)
	if !ok {
		t.Fatalf("expected a usable price")
	}
	if !got.Equal(decimal.New(1, 12)) {
		t.Fatalf("price = %s, want 1e12", got)
	}
}

func TestPriceToken0InToken1NoState(t *testing.T) {
	if _, ok := (PoolState{}).PriceToken0InToken1(18, 6); ok {
		t.Fatalf("nil sqrtPriceX96 should have no price")
	}
	if _, ok := (PoolState{SqrtPriceX96: big.NewInt(0)}).PriceToken0InToken1(18, 6); ok {
		t.Fatalf("zero sqrtPriceX96 should have no price")
	}
}

func TestInt24FromBigBounds(t *testing.T) {
	if _, err := int24FromBig(big.NewInt(1 << 23)); err == nil {
		t.Fatalf("expected overflow error")
	}
	got, err := int24FromBig(big.NewInt(-887272))
	if err != nil {
		t.Fatalf("in-range value rejected: %v", err)
	}
	if got != -887272 {
		t.Fatalf("got %d", got)
	}
}
