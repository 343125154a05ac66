package lending

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
)

// Market wraps the read-only calls against one cToken-style market.
type Market struct {
	Chain              *chain.Client
	Address            common.Address
	UnderlyingDecimals uint8
}

// ExchangeRateStored returns the raw 1e18-scaled cToken-to-underlying
// exchange rate mantissa.
func (m *Market) ExchangeRateStored(ctx context.Context) (decimal.Decimal, error) {
	resp, err := rawCall(ctx, m.Chain, m.Address, callData("exchangeRateStored()"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchangeRateStored: %w", err)
	}
	raw, err := wordAt(resp, 0)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchangeRateStored: %w", err)
	}
	return decimal.NewFromBigInt(raw, 0), nil
}

// TotalSupply returns the market's raw cToken supply.
func (m *Market) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	resp, err := rawCall(ctx, m.Chain, m.Address, callData("totalSupply()"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("totalSupply: %w", err)
	}
	raw, err := wordAt(resp, 0)
	if err != nil {
		return decimal.Zero, fmt.Errorf("totalSupply: %w", err)
	}
	return decimal.NewFromBigInt(raw, 0), nil
}

// UnderlyingSupply converts the cToken supply into underlying token
// units: supply * exchangeRate / 1e18, then shifted by the underlying's
// decimals.
func (m *Market) UnderlyingSupply(ctx context.Context) (decimal.Decimal, error) {
	supply, err := m.TotalSupply(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := m.ExchangeRateStored(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	underlyingWei := supply.Mul(rate).Shift(-exchangeRateMantissaDecimals)
	return underlyingWei.Shift(-int32(m.UnderlyingDecimals)), nil
}
