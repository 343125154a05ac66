package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RangeCategory buckets a position by the width of its tick range.
type RangeCategory string

const (
	RangeNarrow RangeCategory = "narrow"
	RangeMedium RangeCategory = "medium"
	RangeWide   RangeCategory = "wide"
)

// RangeCategories returns all categories in their fixed iteration order.
// The order doubles as the tie-break for best-category selection.
func RangeCategories() []RangeCategory {
	return []RangeCategory{RangeNarrow, RangeMedium, RangeWide}
}

// PositionSnapshot is one collection cycle's view of a concentrated
// liquidity position. Snapshots are immutable once written; the next
// cycle supersedes them with new rows.
type PositionSnapshot struct {
	TokenID           uint64           `json:"token_id"`
	PoolAddress       string           `json:"pool_address"`
	TickLower         int32            `json:"tick_lower"`
	TickUpper         int32            `json:"tick_upper"`
	Liquidity         decimal.Decimal  `json:"liquidity"`
	IsInRange         bool             `json:"is_in_range"`
	RangeWidthTicks   int32            `json:"range_width_ticks"`
	RangeWidthPercent decimal.Decimal  `json:"range_width_percent"`
	RangeCategory     RangeCategory    `json:"range_category"`
	FeeAPR            *decimal.Decimal `json:"fee_apr,omitempty"`
	IncentiveAPR      *decimal.Decimal `json:"incentive_apr,omitempty"`
	TotalAPR          *decimal.Decimal `json:"total_apr,omitempty"`
	AmountUSD         *decimal.Decimal `json:"amount_usd,omitempty"`
	Fees24hUSD        *decimal.Decimal `json:"fees_24h_usd,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
}

// PoolSnapshot captures pool-level state at the same instant as its
// child position snapshots. ActivePositions must equal the count of
// child snapshots with IsInRange=true at the same timestamp; the store
// checks this at insert time.
type PoolSnapshot struct {
	PoolAddress     string           `json:"pool_address"`
	Token0Symbol    string           `json:"token0_symbol"`
	Token1Symbol    string           `json:"token1_symbol"`
	CurrentTick     int32            `json:"current_tick"`
	Liquidity       decimal.Decimal  `json:"liquidity"`
	TVLUSD          *decimal.Decimal `json:"tvl_usd,omitempty"`
	TotalPositions  int              `json:"total_positions"`
	ActivePositions int              `json:"active_positions"`
	Timestamp       time.Time        `json:"timestamp"`
}
