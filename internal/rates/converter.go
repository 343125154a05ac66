package rates

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
)

// SecondsPerYear is the compounding horizon for annualized yields.
const SecondsPerYear = 365 * 24 * 60 * 60

// PriceFallback supplies a reward-token price in underlying terms when
// the sample itself carries none. Returns false when no estimate is
// available either; the reward leg then stays nil.
type PriceFallback func() (decimal.Decimal, bool)

// Converter turns per-second on-chain rates into annualized compounded
// yields.
type Converter struct{}

// NewConverter returns a Converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Annualize compounds a per-second simple rate over a year:
// ((1 + rate)^SecondsPerYear - 1) * 100, returned as a percentage.
// The rate must already be scaled down from the raw fixed-point
// on-chain integer (divide by 1e18 before calling). Extreme inputs
// saturate at the largest representable value instead of overflowing;
// callers clamp before persistence.
func (c *Converter) Annualize(ratePerSecond decimal.Decimal) decimal.Decimal {
	rate, _ := ratePerSecond.Float64()
	if rate == 0 {
		return decimal.Zero
	}
	// Log1p has no answer at or below -1; losing the whole principal
	// floors at -100%.
	if rate <= -1 {
		return decimal.NewFromInt(-100)
	}

	// expm1/log1p keep precision for the tiny per-second rates real
	// markets emit (~1e-9).
	apy := math.Expm1(float64(SecondsPerYear)*math.Log1p(rate)) * 100
	if math.IsInf(apy, 1) || apy > math.MaxFloat64/2 {
		return decimal.NewFromFloat(math.MaxFloat64 / 2)
	}
	return decimal.NewFromFloat(apy)
}

// Blend combines a base APY with a separately denominated reward
// emission. The reward speed is converted into underlying-token value
// per second, expressed relative to the supplied underlying, and
// annualized with the same compounding as the base leg. The two legs
// add; rewards are reported as an additive APY on top of base yield,
// not compounded together.
//
// When the sample carries no reward price the fallback is consulted;
// if that also fails, or the underlying supply is not positive, the
// reward leg is nil (unknown, distinct from a confirmed zero) and the
// total falls back to the base APY alone.
func (c *Converter) Blend(baseAPY decimal.Decimal, sample model.MarketRateSample, fallback PriceFallback) model.APYBreakdown {
	out := model.APYBreakdown{
		SupplyRateAPY: baseAPY,
		TotalAPY:      baseAPY,
	}

	price := sample.RewardPriceInUnderlying
	if price == nil && fallback != nil {
		if est, ok := fallback(); ok {
			price = &est
		}
	}
	if price == nil {
		return out
	}
	if sample.UnderlyingSupply.Sign() <= 0 {
		return out
	}

	rewardValuePerSecond := sample.RewardSpeedPerSecond.Mul(*price)
	rewardRate := rewardValuePerSecond.Div(sample.UnderlyingSupply)
	rewardAPY := c.Annualize(rewardRate)

	out.DistributionAPY = &rewardAPY
	out.TotalAPY = baseAPY.Add(rewardAPY)
	return out
}
