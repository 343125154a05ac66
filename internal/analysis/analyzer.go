package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage"
)

// ErrNoSnapshots reports that a pool has no persisted snapshots, as
// opposed to having snapshots with zero yield.
var ErrNoSnapshots = errors.New("no snapshots for pool")

// UnavailableError wraps a storage read failure during analytics. It is
// surfaced to the caller, never retried here.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("analysis unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Analyzer derives category-level statistics from persisted position
// snapshots. It holds no state between calls; every query recomputes
// from storage.
type Analyzer struct {
	reader storage.SnapshotReader
	logger *zap.Logger
	now    func() time.Time
}

func NewAnalyzer(reader storage.SnapshotReader, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		reader: reader,
		logger: logger,
		now:    time.Now,
	}
}

// Distribution groups one cycle's position snapshots by range category.
// A zero at selects the pool's latest snapshot time. Categories with no
// positions are omitted; an empty map means no data, not zero yield.
func (a *Analyzer) Distribution(ctx context.Context, pool string, at time.Time) (map[model.RangeCategory]model.RangeCategoryStats, error) {
	if at.IsZero() {
		latest, ok, err := a.reader.LatestSnapshotTime(ctx, pool)
		if err != nil {
			return nil, &UnavailableError{Op: "latest snapshot time", Err: err}
		}
		if !ok {
			return map[model.RangeCategory]model.RangeCategoryStats{}, nil
		}
		at = latest
	}

	snapshots, err := a.reader.PositionSnapshotsAt(ctx, pool, at)
	if err != nil {
		return nil, &UnavailableError{Op: "position snapshots", Err: err}
	}

	groups := make(map[model.RangeCategory][]model.PositionSnapshot)
	for _, s := range snapshots {
		groups[s.RangeCategory] = append(groups[s.RangeCategory], s)
	}

	out := make(map[model.RangeCategory]model.RangeCategoryStats, len(groups))
	for cat, members := range groups {
		out[cat] = buildCategoryStats(cat, members)
	}
	return out, nil
}

func buildCategoryStats(cat model.RangeCategory, members []model.PositionSnapshot) model.RangeCategoryStats {
	stats := model.RangeCategoryStats{
		Category:      cat,
		PositionCount: len(members),
	}

	var (
		widthSum  decimal.Decimal
		feeAPRs   []decimal.Decimal
		incAPRs   []decimal.Decimal
		totalAPRs []decimal.Decimal
	)
	for _, m := range members {
		if m.IsInRange {
			stats.ActiveCount++
		}
		stats.TotalLiquidity = stats.TotalLiquidity.Add(m.Liquidity)
		if m.AmountUSD != nil {
			stats.TotalTVLUSD = stats.TotalTVLUSD.Add(*m.AmountUSD)
		}
		if m.Fees24hUSD != nil {
			stats.TotalFees24hUSD = stats.TotalFees24hUSD.Add(*m.Fees24hUSD)
		}
		widthSum = widthSum.Add(m.RangeWidthPercent)
		if m.FeeAPR != nil {
			feeAPRs = append(feeAPRs, *m.FeeAPR)
		}
		if m.IncentiveAPR != nil {
			incAPRs = append(incAPRs, *m.IncentiveAPR)
		}
		if m.TotalAPR != nil {
			totalAPRs = append(totalAPRs, *m.TotalAPR)
		}
	}

	count := decimal.NewFromInt(int64(len(members)))
	stats.ActivePct = decimal.NewFromInt(int64(stats.ActiveCount)).Div(count).Mul(decimal.NewFromInt(100))
	stats.AvgRangeWidthPct = widthSum.Div(count)
	stats.AvgFeeAPR = average(feeAPRs)
	stats.AvgIncentiveAPR = average(incAPRs)
	stats.AvgTotalAPR = average(totalAPRs)

	if len(totalAPRs) > 0 {
		min, max := totalAPRs[0], totalAPRs[0]
		for _, v := range totalAPRs[1:] {
			if v.LessThan(min) {
				min = v
			}
			if v.GreaterThan(max) {
				max = v
			}
		}
		stats.MinAPR = &min
		stats.MaxAPR = &max
	}

	return stats
}

func average(values []decimal.Decimal) *decimal.Decimal {
	if len(values) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(values))))
	return &avg
}

// Summary combines the latest pool snapshot with the category
// distribution at the same instant and picks the best category by
// average total APR. Returns ErrNoSnapshots when the pool has never
// been collected.
func (a *Analyzer) Summary(ctx context.Context, pool string) (model.PoolAnalysisSummary, error) {
	poolSnap, ok, err := a.reader.LatestPoolSnapshot(ctx, pool)
	if err != nil {
		return model.PoolAnalysisSummary{}, &UnavailableError{Op: "latest pool snapshot", Err: err}
	}
	if !ok {
		return model.PoolAnalysisSummary{}, fmt.Errorf("pool %s: %w", pool, ErrNoSnapshots)
	}

	categories, err := a.Distribution(ctx, pool, poolSnap.Timestamp)
	if err != nil {
		return model.PoolAnalysisSummary{}, err
	}

	summary := model.PoolAnalysisSummary{
		PoolAddress:     poolSnap.PoolAddress,
		Token0Symbol:    poolSnap.Token0Symbol,
		Token1Symbol:    poolSnap.Token1Symbol,
		SnapshotTime:    poolSnap.Timestamp,
		TotalPositions:  poolSnap.TotalPositions,
		ActivePositions: poolSnap.ActivePositions,
		Categories:      categories,
	}
	if poolSnap.TVLUSD != nil {
		summary.TotalTVLUSD = *poolSnap.TVLUSD
	}
	if poolSnap.TotalPositions > 0 {
		summary.ActivePct = decimal.NewFromInt(int64(poolSnap.ActivePositions)).
			Div(decimal.NewFromInt(int64(poolSnap.TotalPositions))).
			Mul(decimal.NewFromInt(100))
	}

	// Fixed iteration order doubles as the tie-break.
	for _, cat := range model.RangeCategories() {
		stats, ok := categories[cat]
		if !ok || stats.AvgTotalAPR == nil {
			continue
		}
		if summary.BestCategoryAPR == nil || stats.AvgTotalAPR.GreaterThan(*summary.BestCategoryAPR) {
			summary.BestCategory = cat
			summary.BestCategoryAPR = stats.AvgTotalAPR
		}
	}

	return summary, nil
}
