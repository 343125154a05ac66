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
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/dex"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/ranges"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage"
)

// PositionsCollector snapshots every live position of the configured
// pools once per invocation. Pools are processed independently; one
// pool's failure is logged and the cycle moves on.
type PositionsCollector struct {
	Chain      *chain.Client
	Manager    *dex.PositionManager
	Classifier *ranges.Classifier
	TokenCache *dex.TokenMetaCache
	PoolCache  *dex.PoolMetaCache
	Writer     storage.SnapshotWriter
	Logger     *zap.Logger

	// Now is overridable for tests; zero value means time.Now.
	Now func() time.Time
}

func (c *PositionsCollector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *PositionsCollector) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// Run collects one snapshot cycle for each pool.
func (c *PositionsCollector) Run(ctx context.Context, pools []common.Address) error {
	log := c.logger()
	failed := 0
	for _, pool := range pools {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.collectPool(ctx, pool); err != nil {
			failed++
			log.Error("pool collection failed",
				zap.String("pool", pool.Hex()),
				zap.Error(err),
			)
			continue
		}
	}
	if failed > 0 && failed == len(pools) {
		return fmt.Errorf("all %d pools failed", failed)
	}
	return nil
}

func (c *PositionsCollector) collectPool(ctx context.Context, pool common.Address) error {
	log := c.logger()

	meta, ok := c.PoolCache.Get(pool)
	if !ok {
		fetched, err := dex.FetchPoolMeta(ctx, c.Chain, pool, c.TokenCache, log)
		if err != nil {
			return fmt.Errorf("pool meta: %w", err)
		}
		c.PoolCache.Set(pool, fetched)
		meta = fetched
	}

	state, err := dex.FetchPoolState(ctx, c.Chain, pool)
	if err != nil {
		return fmt.Errorf("pool state: %w", err)
	}

	positions, err := c.Manager.PositionsForPool(ctx, meta)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	ts := c.now().UTC().Truncate(time.Second)
	tvl := c.poolTVL(ctx, pool, meta, state)
	poolSnap, posSnaps := c.buildCycle(pool, meta, state, positions, tvl, ts)

	if err := c.Writer.InsertPoolCycle(ctx, poolSnap, posSnaps); err != nil {
		return fmt.Errorf("persist cycle: %w", err)
	}

	log.Info("pool cycle collected",
		zap.String("pool", pool.Hex()),
		zap.Int("positions", poolSnap.TotalPositions),
		zap.Int("active", poolSnap.ActivePositions),
	)
	return nil
}

// poolTVL values both pool reserves in token1 terms, converting token0
// at the pool's own spot price. When the quote token is a stable this
// is the pool's TVL in USD. Any failed read leaves it nil (unknown).
func (c *PositionsCollector) poolTVL(ctx context.Context, pool common.Address, meta dex.PoolMeta, state dex.PoolState) *decimal.Decimal {
	log := c.logger()

	meta0, ok0 := c.tokenMeta(meta.Token0)
	meta1, ok1 := c.tokenMeta(meta.Token1)
	if !ok0 || !ok1 {
		return nil
	}
	price, ok := state.PriceToken0InToken1(meta0.Decimals, meta1.Decimals)
	if !ok {
		return nil
	}

	balance0, err := dex.FetchTokenBalance(ctx, c.Chain, meta.Token0, pool)
	if err != nil {
		log.Warn("pool balance read failed", zap.String("token", meta.Token0.Hex()), zap.Error(err))
		return nil
	}
	balance1, err := dex.FetchTokenBalance(ctx, c.Chain, meta.Token1, pool)
	if err != nil {
		log.Warn("pool balance read failed", zap.String("token", meta.Token1.Hex()), zap.Error(err))
		return nil
	}

	amount0 := balance0.Shift(-int32(meta0.Decimals))
	amount1 := balance1.Shift(-int32(meta1.Decimals))
	tvl := amount1.Add(amount0.Mul(price))
	return &tvl
}

// buildCycle classifies positions and assembles the snapshot records
// for one cycle. Positions with malformed tick bounds are rejected and
// logged, never silently categorized.
func (c *PositionsCollector) buildCycle(
	pool common.Address,
	meta dex.PoolMeta,
	state dex.PoolState,
	positions []dex.Position,
	tvl *decimal.Decimal,
	ts time.Time,
) (model.PoolSnapshot, []model.PositionSnapshot) {
	log := c.logger()

	var (
		price   decimal.Decimal
		priceOK bool
		dec0    uint8
		dec1    uint8
	)
	if meta0, ok := c.tokenMeta(meta.Token0); ok {
		if meta1, ok := c.tokenMeta(meta.Token1); ok {
			dec0, dec1 = meta0.Decimals, meta1.Decimals
			price, priceOK = state.PriceToken0InToken1(dec0, dec1)
		}
	}

	snaps := make([]model.PositionSnapshot, 0, len(positions))
	active := 0
	for _, pos := range positions {
		widthTicks, widthPct, category, err := c.Classifier.Classify(pos.TickLower, pos.TickUpper)
		if err != nil {
			var invalid *ranges.InvalidRangeError
			if errors.As(err, &invalid) {
				log.Warn("rejecting position with malformed range",
					zap.Uint64("token_id", pos.TokenID),
					zap.Int32("tick_lower", pos.TickLower),
					zap.Int32("tick_upper", pos.TickUpper),
				)
				continue
			}
			log.Warn("position classification failed",
				zap.Uint64("token_id", pos.TokenID),
				zap.Error(err),
			)
			continue
		}

		inRange := ranges.IsInRange(state.CurrentTick, pos.TickLower, pos.TickUpper)
		if inRange {
			active++
		}

		snap := model.PositionSnapshot{
			TokenID:           pos.TokenID,
			PoolAddress:       pool.Hex(),
			TickLower:         pos.TickLower,
			TickUpper:         pos.TickUpper,
			Liquidity:         pos.Liquidity,
			IsInRange:         inRange,
			RangeWidthTicks:   widthTicks,
			RangeWidthPercent: widthPct,
			RangeCategory:     category,
			Timestamp:         ts,
		}
		// Uncollected fees valued in token1 terms; a confirmed zero is
		// recorded, an unpriceable amount stays nil.
		if priceOK {
			fees := pos.TokensOwed0.Shift(-int32(dec0)).Mul(price).
				Add(pos.TokensOwed1.Shift(-int32(dec1)))
			snap.Fees24hUSD = &fees
		}
		snaps = append(snaps, snap)
	}

	poolSnap := model.PoolSnapshot{
		PoolAddress:     pool.Hex(),
		Token0Symbol:    c.tokenSymbol(meta.Token0),
		Token1Symbol:    c.tokenSymbol(meta.Token1),
		CurrentTick:     state.CurrentTick,
		Liquidity:       state.Liquidity,
		TVLUSD:          tvl,
		TotalPositions:  len(snaps),
		ActivePositions: active,
		Timestamp:       ts,
	}
	return poolSnap, snaps
}

func (c *PositionsCollector) tokenSymbol(token common.Address) string {
	if meta, ok := c.tokenMeta(token); ok {
		return meta.Symbol
	}
	return ""
}

func (c *PositionsCollector) tokenMeta(token common.Address) (dex.TokenMeta, bool) {
	if c.TokenCache == nil {
		return dex.TokenMeta{}, false
	}
	return c.TokenCache.Get(token)
}
