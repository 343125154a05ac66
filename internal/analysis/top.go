package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
)

// TopPositions ranks positions by average total APR over the trailing
// days, descending; ties break on token id ascending so repeated runs
// order identically. Positions with no APR readings sort last. An empty
// category matches all categories.
func (a *Analyzer) TopPositions(ctx context.Context, pool string, days, limit int, category model.RangeCategory) ([]model.PositionPerformance, error) {
	since := a.now().UTC().AddDate(0, 0, -days)
	snapshots, err := a.reader.PositionSnapshotsSince(ctx, pool, since)
	if err != nil {
		return nil, &UnavailableError{Op: "position snapshots since", Err: err}
	}

	type track struct {
		aprSum   decimal.Decimal
		aprCount int64
		fees     decimal.Decimal
		inRange  int
		total    int
		latest   model.PositionSnapshot
		latestAt time.Time
	}
	tracks := make(map[uint64]*track)
	for _, s := range snapshots {
		if category != "" && s.RangeCategory != category {
			continue
		}
		t, ok := tracks[s.TokenID]
		if !ok {
			t = &track{}
			tracks[s.TokenID] = t
		}
		t.total++
		if s.IsInRange {
			t.inRange++
		}
		if s.TotalAPR != nil {
			t.aprSum = t.aprSum.Add(*s.TotalAPR)
			t.aprCount++
		}
		if s.Fees24hUSD != nil {
			t.fees = t.fees.Add(*s.Fees24hUSD)
		}
		if t.latestAt.IsZero() || s.Timestamp.After(t.latestAt) {
			t.latest = s
			t.latestAt = s.Timestamp
		}
	}

	out := make([]model.PositionPerformance, 0, len(tracks))
	for tokenID, t := range tracks {
		perf := model.PositionPerformance{
			TokenID:            tokenID,
			PoolAddress:        t.latest.PoolAddress,
			RangeCategory:      t.latest.RangeCategory,
			RangeWidthPct:      t.latest.RangeWidthPercent,
			TotalFeesUSD:       t.fees,
			SnapshotCount:      t.total,
			CurrentLiquidity:   t.latest.Liquidity,
			IsCurrentlyInRange: t.latest.IsInRange,
		}
		if t.total > 0 {
			perf.TimeInRangePct = decimal.NewFromInt(int64(t.inRange)).
				Div(decimal.NewFromInt(int64(t.total))).
				Mul(decimal.NewFromInt(100))
		}
		if t.aprCount > 0 {
			avg := t.aprSum.Div(decimal.NewFromInt(t.aprCount))
			perf.AvgAPR = &avg
		}
		out = append(out, perf)
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].AvgAPR, out[j].AvgAPR
		switch {
		case ai == nil && aj == nil:
			return out[i].TokenID < out[j].TokenID
		case ai == nil:
			return false
		case aj == nil:
			return true
		case ai.Equal(*aj):
			return out[i].TokenID < out[j].TokenID
		default:
			return ai.GreaterThan(*aj)
		}
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
