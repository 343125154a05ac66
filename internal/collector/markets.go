package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/events"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/lending"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/price"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/rates"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage"
)

// MarketTarget identifies one lending market to collect.
type MarketTarget struct {
	Asset              string
	Address            common.Address
	Underlying         common.Address
	UnderlyingDecimals uint8
	RewardToken        common.Address
}

// StateStore persists the collector's last processed block per market.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// MarketsCollector reads each market's supply rate, aggregates its
// reward emissions over a trailing block window, and persists one APY
// snapshot per market. Markets are processed independently; a failure
// is logged and the cycle continues with the next market.
type MarketsCollector struct {
	Chain       *chain.Client
	Converter   *rates.Converter
	Aggregator  *events.Aggregator
	PriceFeed   price.Feed
	Bounds      rates.Bounds
	Writer      storage.SnapshotWriter
	State       StateStore
	Logger      *zap.Logger
	Comptroller common.Address
	Lens        common.Address

	// PriceFallback supplies a reward price estimate when the feed has
	// none; nil means no estimate, leaving the reward leg null.
	PriceFallback rates.PriceFallback

	BlockTime    time.Duration
	RewardWindow time.Duration

	Now func() time.Time
}

func (c *MarketsCollector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *MarketsCollector) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// Run collects one snapshot per market and persists the batch.
func (c *MarketsCollector) Run(ctx context.Context, targets []MarketTarget) error {
	log := c.logger()
	ts := c.now().UTC().Truncate(time.Second)

	snapshots := make([]model.MarketSnapshot, 0, len(targets))
	failed := 0
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := c.collectMarket(ctx, target, ts)
		if err != nil {
			failed++
			log.Error("market collection failed",
				zap.String("asset", target.Asset),
				zap.String("market", target.Address.Hex()),
				zap.Error(err),
			)
			continue
		}
		snapshots = append(snapshots, snap)
	}

	if len(snapshots) > 0 {
		if err := c.Writer.InsertMarketSnapshots(ctx, snapshots); err != nil {
			return fmt.Errorf("persist market snapshots: %w", err)
		}
	}
	if failed > 0 && failed == len(targets) {
		return fmt.Errorf("all %d markets failed", failed)
	}
	return nil
}

func (c *MarketsCollector) collectMarket(ctx context.Context, target MarketTarget, ts time.Time) (model.MarketSnapshot, error) {
	log := c.logger()

	rate, sourceName, err := rates.Resolve(ctx, c.sources(target), log)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("resolve supply rate: %w", err)
	}
	log.Debug("supply rate resolved",
		zap.String("asset", target.Asset),
		zap.String("source", sourceName),
		zap.String("rate_per_second", rate.String()),
	)

	baseAPY := c.Converter.Annualize(rate)
	sample := c.rewardSample(ctx, target, rate)
	breakdown := c.Converter.Blend(baseAPY, sample, c.PriceFallback)

	snap := model.MarketSnapshot{
		Asset:         target.Asset,
		MarketAddress: target.Address.Hex(),
		SupplyAPY:     c.clamp(target.Asset, "supply", breakdown.SupplyRateAPY),
		TotalAPY:      c.clamp(target.Asset, "total", breakdown.TotalAPY),
		Timestamp:     ts,
	}
	if breakdown.DistributionAPY != nil {
		clamped := c.clamp(target.Asset, "reward", *breakdown.DistributionAPY)
		snap.RewardAPY = &clamped
	}
	return snap, nil
}

// rewardSample builds the reward leg's inputs. Every piece is soft: a
// failed supply read, reward aggregation, or missing price leaves the
// corresponding field empty and the blend degrades to base-only.
func (c *MarketsCollector) rewardSample(ctx context.Context, target MarketTarget, rate decimal.Decimal) model.MarketRateSample {
	log := c.logger()
	sample := model.MarketRateSample{RatePerSecond: rate}

	market := &lending.Market{
		Chain:              c.Chain,
		Address:            target.Address,
		UnderlyingDecimals: target.UnderlyingDecimals,
	}
	supply, err := market.UnderlyingSupply(ctx)
	if err != nil {
		log.Warn("underlying supply read failed",
			zap.String("asset", target.Asset),
			zap.Error(err),
		)
		return sample
	}
	sample.UnderlyingSupply = supply

	speed, err := c.rewardSpeed(ctx, target)
	if err != nil {
		log.Warn("reward aggregation failed, reward leg omitted",
			zap.String("asset", target.Asset),
			zap.Error(err),
		)
		return sample
	}
	sample.RewardSpeedPerSecond = speed

	if c.PriceFeed != nil && target.RewardToken != (common.Address{}) {
		if p, ok := c.PriceFeed.PriceInQuote(ctx, target.RewardToken, target.Underlying); ok {
			sample.RewardPriceInUnderlying = &p
		}
	}
	return sample
}

// rewardSpeed sums the market's accrued interest over the trailing
// window and converts it to a per-second emission rate.
func (c *MarketsCollector) rewardSpeed(ctx context.Context, target MarketTarget) (decimal.Decimal, error) {
	latest, err := c.Chain.LatestBlockNumber(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest block: %w", err)
	}

	start := windowStart(latest, c.RewardWindow, c.BlockTime)
	if c.State != nil {
		name := stateName(target)
		if last, ok, err := c.State.LoadState(ctx, name); err != nil {
			c.logger().Warn("collector state load failed", zap.String("state", name), zap.Error(err))
		} else if ok && last+1 > start && last < latest {
			start = last + 1
		}
	}

	total, err := c.Aggregator.Aggregate(
		ctx,
		target.Address,
		lending.AccrueInterestSignature,
		start,
		latest,
		lending.DecodeInterestAccumulated(target.UnderlyingDecimals),
	)
	if err != nil {
		return decimal.Zero, err
	}

	if c.State != nil {
		if err := c.State.SaveState(ctx, stateName(target), latest); err != nil {
			c.logger().Warn("collector state save failed", zap.Error(err))
		}
	}

	seconds := windowSeconds(start, latest, c.BlockTime)
	if seconds.Sign() <= 0 {
		return decimal.Zero, nil
	}
	return total.Div(seconds), nil
}

func (c *MarketsCollector) sources(target MarketTarget) []rates.Source {
	var out []rates.Source
	if c.Lens != (common.Address{}) {
		out = append(out, &lending.LensSource{
			Chain:     c.Chain,
			Lens:      c.Lens,
			Market:    target.Address,
			BlockTime: c.BlockTime,
		})
	}
	if c.Comptroller != (common.Address{}) {
		out = append(out, &lending.ComptrollerSource{
			Chain:       c.Chain,
			Comptroller: c.Comptroller,
			Market:      target.Address,
			BlockTime:   c.BlockTime,
		})
	}
	out = append(out, &lending.MarketSource{
		Chain:     c.Chain,
		Market:    target.Address,
		BlockTime: c.BlockTime,
	})
	return out
}

func (c *MarketsCollector) clamp(asset, leg string, apy decimal.Decimal) decimal.Decimal {
	clamped, err := c.Bounds.Clamp(apy)
	var overflow *rates.ValueOverflowError
	if errors.As(err, &overflow) {
		c.logger().Warn("apy clamped to storage bounds",
			zap.String("asset", asset),
			zap.String("leg", leg),
			zap.String("value", overflow.Value.String()),
			zap.String("clamped", overflow.Clamped.String()),
		)
	}
	return clamped
}

func stateName(target MarketTarget) string {
	return "markets:" + target.Address.Hex()
}

// windowStart returns the first block of a trailing time window ending
// at latest.
func windowStart(latest uint64, window, blockTime time.Duration) uint64 {
	if blockTime <= 0 || window <= 0 {
		return latest
	}
	blocks := uint64(window / blockTime)
	if blocks >= latest {
		return 0
	}
	return latest - blocks
}

// windowSeconds converts an inclusive block span into seconds.
func windowSeconds(start, end uint64, blockTime time.Duration) decimal.Decimal {
	if end < start || blockTime <= 0 {
		return decimal.Zero
	}
	blocks := end - start + 1
	return decimal.NewFromInt(int64(blocks)).Mul(decimal.NewFromFloat(blockTime.Seconds()))
}
