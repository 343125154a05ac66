package lending

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
)

// LensSource reads the supply rate through the protocol's Lens
// contract. The lens is the preferred vantage point; its market
// metadata tuple carries the supply rate as the second field.
type LensSource struct {
	Chain     *chain.Client
	Lens      common.Address
	Market    common.Address
	BlockTime time.Duration
}

func (s *LensSource) Name() string { return "lens" }

func (s *LensSource) SupplyRatePerSecond(ctx context.Context) (decimal.Decimal, bool, error) {
	resp, err := rawCall(ctx, s.Chain, s.Lens, callData("getMarketMetadata(address)", s.Market))
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(resp) < 64 {
		return decimal.Zero, false, nil
	}
	raw, err := wordAt(resp, 1)
	if err != nil {
		return decimal.Zero, false, err
	}
	return perSecondRate(raw, s.BlockTime), true, nil
}

// ComptrollerSource reads the supply rate from the comptroller, first
// through getMarketData, then the older supplyRatePerBlock accessor.
type ComptrollerSource struct {
	Chain       *chain.Client
	Comptroller common.Address
	Market      common.Address
	BlockTime   time.Duration
}

func (s *ComptrollerSource) Name() string { return "comptroller" }

func (s *ComptrollerSource) SupplyRatePerSecond(ctx context.Context) (decimal.Decimal, bool, error) {
	resp, err := rawCall(ctx, s.Chain, s.Comptroller, callData("getMarketData(address)", s.Market))
	if err == nil && len(resp) >= 32 {
		raw, err := wordAt(resp, 0)
		if err == nil {
			return perSecondRate(raw, s.BlockTime), true, nil
		}
	}

	resp, err = rawCall(ctx, s.Chain, s.Comptroller, callData("supplyRatePerBlock(address)", s.Market))
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(resp) < 32 {
		return decimal.Zero, false, nil
	}
	raw, err := wordAt(resp, 0)
	if err != nil {
		return decimal.Zero, false, err
	}
	return perSecondRate(raw, s.BlockTime), true, nil
}

// MarketSource reads supplyRatePerBlock directly off the market
// contract. Last resort when neither lens nor comptroller answers.
type MarketSource struct {
	Chain     *chain.Client
	Market    common.Address
	BlockTime time.Duration
}

func (s *MarketSource) Name() string { return "market" }

func (s *MarketSource) SupplyRatePerSecond(ctx context.Context) (decimal.Decimal, bool, error) {
	resp, err := rawCall(ctx, s.Chain, s.Market, callData("supplyRatePerBlock()"))
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(resp) < 32 {
		return decimal.Zero, false, nil
	}
	raw, err := wordAt(resp, 0)
	if err != nil {
		return decimal.Zero, false, err
	}
	return perSecondRate(raw, s.BlockTime), true, nil
}
