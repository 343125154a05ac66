package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RangeCategoryStats aggregates position snapshots for one category at
// one snapshot time. Derived on every query, never persisted.
type RangeCategoryStats struct {
	Category         RangeCategory    `json:"category"`
	PositionCount    int              `json:"position_count"`
	ActiveCount      int              `json:"active_count"`
	ActivePct        decimal.Decimal  `json:"active_pct"`
	TotalLiquidity   decimal.Decimal  `json:"total_liquidity"`
	TotalTVLUSD      decimal.Decimal  `json:"total_tvl_usd"`
	AvgRangeWidthPct decimal.Decimal  `json:"avg_range_width_pct"`
	AvgFeeAPR        *decimal.Decimal `json:"avg_fee_apr,omitempty"`
	AvgIncentiveAPR  *decimal.Decimal `json:"avg_incentive_apr,omitempty"`
	AvgTotalAPR      *decimal.Decimal `json:"avg_total_apr,omitempty"`
	MinAPR           *decimal.Decimal `json:"min_apr,omitempty"`
	MaxAPR           *decimal.Decimal `json:"max_apr,omitempty"`
	TotalFees24hUSD  decimal.Decimal  `json:"total_fees_24h_usd"`
}

// PoolAnalysisSummary combines pool-level metadata with the per-category
// distribution and the best-performing category.
type PoolAnalysisSummary struct {
	PoolAddress     string                               `json:"pool_address"`
	Token0Symbol    string                               `json:"token0_symbol"`
	Token1Symbol    string                               `json:"token1_symbol"`
	SnapshotTime    time.Time                            `json:"snapshot_time"`
	TotalTVLUSD     decimal.Decimal                      `json:"total_tvl_usd"`
	TotalPositions  int                                  `json:"total_positions"`
	ActivePositions int                                  `json:"active_positions"`
	ActivePct       decimal.Decimal                      `json:"active_pct"`
	Categories      map[RangeCategory]RangeCategoryStats `json:"categories"`
	BestCategory    RangeCategory                        `json:"best_category,omitempty"`
	BestCategoryAPR *decimal.Decimal                     `json:"best_category_apr,omitempty"`
}

// PositionPerformance ranks a single position over a trailing window.
type PositionPerformance struct {
	TokenID            uint64           `json:"token_id"`
	PoolAddress        string           `json:"pool_address"`
	RangeCategory      RangeCategory    `json:"range_category"`
	RangeWidthPct      decimal.Decimal  `json:"range_width_pct"`
	AvgAPR             *decimal.Decimal `json:"avg_apr,omitempty"`
	TotalFeesUSD       decimal.Decimal  `json:"total_fees_usd"`
	TimeInRangePct     decimal.Decimal  `json:"time_in_range_pct"`
	SnapshotCount      int              `json:"snapshot_count"`
	CurrentLiquidity   decimal.Decimal  `json:"current_liquidity"`
	IsCurrentlyInRange bool             `json:"is_currently_in_range"`
}

// TrendPoint is one calendar-day sample in a per-category APR series.
type TrendPoint struct {
	Day    time.Time       `json:"day"`
	AvgAPR decimal.Decimal `json:"avg_apr"`
}
