package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketRateSample holds the raw per-second figures read from a lending
// market in one cycle. It exists only to compute an APYBreakdown and is
// never persisted as-is.
type MarketRateSample struct {
	RatePerSecond           decimal.Decimal
	RewardSpeedPerSecond    decimal.Decimal
	RewardPriceInUnderlying *decimal.Decimal
	UnderlyingSupply        decimal.Decimal
}

// APYBreakdown splits a market's annual yield into the base supply rate
// and the reward-token distribution on top of it. TotalAPY is the
// additive combination; DistributionAPY is nil (not zero) when the
// reward leg could not be computed.
type APYBreakdown struct {
	SupplyRateAPY   decimal.Decimal  `json:"supply_rate_apy"`
	DistributionAPY *decimal.Decimal `json:"distribution_apy,omitempty"`
	TotalAPY        decimal.Decimal  `json:"total_apy"`
}

// MarketSnapshot is the persisted form of one market's APY reading.
type MarketSnapshot struct {
	Asset         string           `json:"asset"`
	MarketAddress string           `json:"market_address"`
	SupplyAPY     decimal.Decimal  `json:"supply_apy"`
	RewardAPY     *decimal.Decimal `json:"reward_apy,omitempty"`
	TotalAPY      decimal.Decimal  `json:"total_apy"`
	Timestamp     time.Time        `json:"timestamp"`
}
