package rates

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
)

func TestAnnualizeZero(t *testing.T) {
	c := NewConverter()
	if got := c.Annualize(decimal.Zero); !got.IsZero() {
		t.Fatalf("annualize(0) = %s, want 0", got)
	}
}

func TestAnnualizeMonotonic(t *testing.T) {
	c := NewConverter()

	prev := decimal.RequireFromString("-1")
	for _, rate := range []string{"0", "1e-10", "1e-9", "1e-8", "1e-7", "1e-6", "1e-5", "1e-4", "1e-3", "0.01"} {
		got := c.Annualize(decimal.RequireFromString(rate))
		if got.Cmp(prev) <= 0 && rate != "0" {
			t.Fatalf("annualize not increasing at %s: %s <= %s", rate, got, prev)
		}
		prev = got
	}
}

func TestAnnualizeReference(t *testing.T) {
	c := NewConverter()

	// Raw on-chain value 1.5e9 over 1e18 gives 1.5e-9 per second.
	rate := 1.5e-9
	want := math.Expm1(float64(SecondsPerYear)*math.Log1p(rate)) * 100

	got, _ := c.Annualize(decimal.NewFromFloat(rate)).Float64()
	if math.Abs(got-want)/want > 1e-9 {
		t.Fatalf("annualize(1.5e-9) = %v, want ~%v", got, want)
	}
	// Sanity band around the hand-computed ~4.84%.
	if got < 4.5 || got > 5.2 {
		t.Fatalf("annualize(1.5e-9) = %v, outside plausible band", got)
	}
}

func TestAnnualizeRoundTrip(t *testing.T) {
	c := NewConverter()

	targetAPY := 7.25
	lo, hi := 0.0, 1e-6
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		apy, _ := c.Annualize(decimal.NewFromFloat(mid)).Float64()
		if apy < targetAPY {
			lo = mid
		} else {
			hi = mid
		}
	}

	apy, _ := c.Annualize(decimal.NewFromFloat((lo + hi) / 2)).Float64()
	if math.Abs(apy-targetAPY)/targetAPY > 1e-6 {
		t.Fatalf("round-trip apy %v, want %v", apy, targetAPY)
	}
}

func TestAnnualizeTotalLossFloors(t *testing.T) {
	c := NewConverter()
	want := decimal.NewFromInt(-100)

	for _, rate := range []string{"-1", "-1.5", "-100"} {
		if got := c.Annualize(decimal.RequireFromString(rate)); !got.Equal(want) {
			t.Fatalf("annualize(%s) = %s, want -100", rate, got)
		}
	}
}

func TestAnnualizeExtremeInputSaturates(t *testing.T) {
	c := NewConverter()
	got := c.Annualize(decimal.NewFromInt(1))
	if got.Sign() <= 0 {
		t.Fatalf("extreme input should produce a huge positive value, got %s", got)
	}
}

func TestBlendAdditive(t *testing.T) {
	c := NewConverter()

	price := decimal.RequireFromString("0.5")
	sample := model.MarketRateSample{
		RewardSpeedPerSecond:    decimal.RequireFromString("0.02"),
		RewardPriceInUnderlying: &price,
		UnderlyingSupply:        decimal.RequireFromString("1000000"),
	}
	base := decimal.RequireFromString("3.2")

	got := c.Blend(base, sample, nil)
	if got.DistributionAPY == nil {
		t.Fatalf("expected reward leg")
	}
	if !got.TotalAPY.Equal(base.Add(*got.DistributionAPY)) {
		t.Fatalf("total %s != base %s + reward %s", got.TotalAPY, base, got.DistributionAPY)
	}
	if got.DistributionAPY.Sign() <= 0 {
		t.Fatalf("reward apy should be positive, got %s", got.DistributionAPY)
	}
}

func TestBlendZeroSupplyDropsRewardLeg(t *testing.T) {
	c := NewConverter()

	price := decimal.RequireFromString("0.5")
	sample := model.MarketRateSample{
		RewardSpeedPerSecond:    decimal.RequireFromString("0.02"),
		RewardPriceInUnderlying: &price,
		UnderlyingSupply:        decimal.Zero,
	}
	base := decimal.RequireFromString("3.2")

	got := c.Blend(base, sample, nil)
	if got.DistributionAPY != nil {
		t.Fatalf("reward leg should be nil for zero supply")
	}
	if !got.TotalAPY.Equal(base) {
		t.Fatalf("total should fall back to base, got %s", got.TotalAPY)
	}
}

func TestBlendUsesFallbackPrice(t *testing.T) {
	c := NewConverter()

	sample := model.MarketRateSample{
		RewardSpeedPerSecond: decimal.RequireFromString("0.02"),
		UnderlyingSupply:     decimal.RequireFromString("1000000"),
	}
	base := decimal.RequireFromString("1.0")

	called := false
	got := c.Blend(base, sample, func() (decimal.Decimal, bool) {
		called = true
		return decimal.RequireFromString("0.25"), true
	})
	if !called {
		t.Fatalf("fallback not consulted")
	}
	if got.DistributionAPY == nil {
		t.Fatalf("expected reward leg from fallback price")
	}

	// Fallback that cannot estimate leaves the reward leg nil.
	got = c.Blend(base, sample, func() (decimal.Decimal, bool) {
		return decimal.Zero, false
	})
	if got.DistributionAPY != nil {
		t.Fatalf("reward leg should be nil when price is unavailable")
	}
	if !got.TotalAPY.Equal(base) {
		t.Fatalf("total should equal base, got %s", got.TotalAPY)
	}
}

func TestClampBounds(t *testing.T) {
	bounds := DefaultBounds()

	ok := decimal.RequireFromString("42.5")
	got, err := bounds.Clamp(ok)
	if err != nil || !got.Equal(ok) {
		t.Fatalf("in-range value modified: %s, err=%v", got, err)
	}

	huge := decimal.RequireFromString("1e12")
	got, err = bounds.Clamp(huge)
	var overflow *ValueOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("expected ValueOverflowError, got %v", err)
	}
	if !got.Equal(bounds.Max) {
		t.Fatalf("clamped to %s, want %s", got, bounds.Max)
	}
	if !overflow.Value.Equal(huge) {
		t.Fatalf("overflow error lost original value")
	}
}

type stubSource struct {
	name string
	rate decimal.Decimal
	ok   bool
	err  error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) SupplyRatePerSecond(ctx context.Context) (decimal.Decimal, bool, error) {
	return s.rate, s.ok, s.err
}

func TestResolveFirstSuccessWins(t *testing.T) {
	want := decimal.RequireFromString("1.5e-9")
	sources := []Source{
		stubSource{name: "lens", err: errors.New("execution reverted")},
		stubSource{name: "comptroller", ok: false},
		stubSource{name: "market", rate: want, ok: true},
		stubSource{name: "unreached", rate: decimal.Zero, ok: true},
	}

	rate, name, err := Resolve(context.Background(), sources, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "market" {
		t.Fatalf("source name mismatch: %s", name)
	}
	if !rate.Equal(want) {
		t.Fatalf("rate mismatch: %s", rate)
	}
}

func TestResolveAllFail(t *testing.T) {
	sources := []Source{
		stubSource{name: "lens", err: errors.New("boom")},
		stubSource{name: "comptroller", ok: false},
	}
	_, _, err := Resolve(context.Background(), sources, nil)
	if !errors.Is(err, ErrNoRateSource) {
		t.Fatalf("expected ErrNoRateSource, got %v", err)
	}
}
