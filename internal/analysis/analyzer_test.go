package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage/memory"
)

const testPool = "0xPooL0000000000000000000000000000000000001"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func snapshot(tokenID uint64, cat model.RangeCategory, inRange bool, totalAPR *decimal.Decimal, ts time.Time) model.PositionSnapshot {
	return model.PositionSnapshot{
		TokenID:           tokenID,
		PoolAddress:       testPool,
		TickLower:         -100,
		TickUpper:         100,
		Liquidity:         dec("1000"),
		IsInRange:         inRange,
		RangeWidthTicks:   200,
		RangeWidthPercent: dec("2.02"),
		RangeCategory:     cat,
		TotalAPR:          totalAPR,
		Timestamp:         ts,
	}
}

func insertCycle(t *testing.T, store *memory.Store, ts time.Time, positions []model.PositionSnapshot) {
	t.Helper()
	active := 0
	for _, p := range positions {
		if p.IsInRange {
			active++
		}
	}
	pool := model.PoolSnapshot{
		PoolAddress:     testPool,
		Token0Symbol:    "WFLR",
		Token1Symbol:    "USDC",
		CurrentTick:     0,
		Liquidity:       dec("5000"),
		TotalPositions:  len(positions),
		ActivePositions: active,
		Timestamp:       ts,
	}
	if err := store.InsertPoolCycle(context.Background(), pool, positions); err != nil {
		t.Fatalf("insert cycle: %v", err)
	}
}

func TestDistributionEmpty(t *testing.T) {
	analyzer := NewAnalyzer(memory.NewStore(), nil)

	dist, err := analyzer.Distribution(context.Background(), testPool, time.Time{})
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if len(dist) != 0 {
		t.Fatalf("expected empty mapping, got %d categories", len(dist))
	}
}

func TestDistributionGroupsAndStats(t *testing.T) {
	store := memory.NewStore()
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	insertCycle(t, store, ts, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("4"), ts),
		snapshot(2, model.RangeNarrow, false, decPtr("6"), ts),
		snapshot(3, model.RangeWide, true, nil, ts),
	})

	analyzer := NewAnalyzer(store, nil)
	dist, err := analyzer.Distribution(context.Background(), testPool, time.Time{})
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if len(dist) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(dist))
	}
	if _, ok := dist[model.RangeMedium]; ok {
		t.Fatalf("medium category should be absent, not zero-filled")
	}

	narrow := dist[model.RangeNarrow]
	if narrow.PositionCount != 2 || narrow.ActiveCount != 1 {
		t.Fatalf("narrow counts: %d/%d", narrow.ActiveCount, narrow.PositionCount)
	}
	if !narrow.ActivePct.Equal(dec("50")) {
		t.Fatalf("narrow active pct = %s", narrow.ActivePct)
	}
	if narrow.AvgTotalAPR == nil || !narrow.AvgTotalAPR.Equal(dec("5")) {
		t.Fatalf("narrow avg apr = %v", narrow.AvgTotalAPR)
	}
	if narrow.MinAPR == nil || !narrow.MinAPR.Equal(dec("4")) {
		t.Fatalf("narrow min apr = %v", narrow.MinAPR)
	}
	if narrow.MaxAPR == nil || !narrow.MaxAPR.Equal(dec("6")) {
		t.Fatalf("narrow max apr = %v", narrow.MaxAPR)
	}

	wide := dist[model.RangeWide]
	if wide.AvgTotalAPR != nil {
		t.Fatalf("wide avg apr should be nil without readings, got %s", wide.AvgTotalAPR)
	}
}

func TestSummaryBestCategory(t *testing.T) {
	store := memory.NewStore()
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	insertCycle(t, store, ts, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("5.0"), ts),
		snapshot(2, model.RangeMedium, true, decPtr("7.0"), ts),
		snapshot(3, model.RangeWide, true, nil, ts),
	})

	analyzer := NewAnalyzer(store, nil)
	summary, err := analyzer.Summary(context.Background(), testPool)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.BestCategory != model.RangeMedium {
		t.Fatalf("best category = %s, want medium", summary.BestCategory)
	}
	if summary.BestCategoryAPR == nil || !summary.BestCategoryAPR.Equal(dec("7.0")) {
		t.Fatalf("best category apr = %v", summary.BestCategoryAPR)
	}
	if summary.TotalPositions != 3 || summary.ActivePositions != 3 {
		t.Fatalf("summary counts: %d/%d", summary.ActivePositions, summary.TotalPositions)
	}
	if !summary.ActivePct.Equal(dec("100")) {
		t.Fatalf("active pct = %s", summary.ActivePct)
	}
}

func TestSummaryTieBreaksOnFixedOrder(t *testing.T) {
	store := memory.NewStore()
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	insertCycle(t, store, ts, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("6"), ts),
		snapshot(2, model.RangeMedium, true, decPtr("6"), ts),
	})

	analyzer := NewAnalyzer(store, nil)
	summary, err := analyzer.Summary(context.Background(), testPool)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.BestCategory != model.RangeNarrow {
		t.Fatalf("tie should break to narrow, got %s", summary.BestCategory)
	}
}

func TestSummaryNoSnapshots(t *testing.T) {
	analyzer := NewAnalyzer(memory.NewStore(), nil)
	_, err := analyzer.Summary(context.Background(), testPool)
	if !errors.Is(err, ErrNoSnapshots) {
		t.Fatalf("expected ErrNoSnapshots, got %v", err)
	}
}

func TestTrendBucketsByDay(t *testing.T) {
	store := memory.NewStore()
	day1 := time.Date(2026, 8, 18, 6, 0, 0, 0, time.UTC)
	day1b := time.Date(2026, 8, 18, 18, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 19, 6, 0, 0, 0, time.UTC)

	insertCycle(t, store, day1, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("4"), day1),
	})
	insertCycle(t, store, day1b, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("6"), day1b),
	})
	insertCycle(t, store, day2, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("8"), day2),
	})

	analyzer := NewAnalyzer(store, nil)
	analyzer.now = func() time.Time { return time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC) }

	trend, err := analyzer.Trend(context.Background(), testPool, 7)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	series, ok := trend[model.RangeNarrow]
	if !ok {
		t.Fatalf("narrow series missing")
	}
	if series.Len() != 2 {
		t.Fatalf("series has %d points, want 2", series.Len())
	}

	p1, ok := series.Next()
	if !ok {
		t.Fatalf("first point missing")
	}
	if !p1.Day.Equal(time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first day = %s", p1.Day)
	}
	if !p1.AvgAPR.Equal(dec("5")) {
		t.Fatalf("first day avg = %s, want 5", p1.AvgAPR)
	}

	p2, _ := series.Next()
	if !p2.AvgAPR.Equal(dec("8")) {
		t.Fatalf("second day avg = %s, want 8", p2.AvgAPR)
	}
	if _, ok := series.Next(); ok {
		t.Fatalf("series should be exhausted")
	}

	series.Reset()
	if again, ok := series.Next(); !ok || !again.Day.Equal(p1.Day) {
		t.Fatalf("reset did not rewind the series")
	}
}

func TestTrendExcludesOldSnapshots(t *testing.T) {
	store := memory.NewStore()
	old := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertCycle(t, store, old, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("4"), old),
	})

	analyzer := NewAnalyzer(store, nil)
	analyzer.now = func() time.Time { return time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC) }

	trend, err := analyzer.Trend(context.Background(), testPool, 7)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(trend) != 0 {
		t.Fatalf("snapshots outside the window should be excluded")
	}
}

func TestTopPositionsOrdering(t *testing.T) {
	store := memory.NewStore()
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	insertCycle(t, store, ts, []model.PositionSnapshot{
		snapshot(3, model.RangeNarrow, true, decPtr("5"), ts),
		snapshot(1, model.RangeMedium, true, decPtr("9"), ts),
		snapshot(2, model.RangeNarrow, false, decPtr("9"), ts),
		snapshot(4, model.RangeWide, true, nil, ts),
	})

	analyzer := NewAnalyzer(store, nil)
	analyzer.now = func() time.Time { return ts }

	top, err := analyzer.TopPositions(context.Background(), testPool, 7, 0, "")
	if err != nil {
		t.Fatalf("top positions: %v", err)
	}
	if len(top) != 4 {
		t.Fatalf("got %d positions, want 4", len(top))
	}
	wantOrder := []uint64{1, 2, 3, 4}
	for i, want := range wantOrder {
		if top[i].TokenID != want {
			t.Fatalf("position %d token = %d, want %d", i, top[i].TokenID, want)
		}
	}
	if top[3].AvgAPR != nil {
		t.Fatalf("position without readings should have nil avg apr")
	}
}

func TestTopPositionsLimitAndCategory(t *testing.T) {
	store := memory.NewStore()
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	insertCycle(t, store, ts, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("5"), ts),
		snapshot(2, model.RangeMedium, true, decPtr("9"), ts),
		snapshot(3, model.RangeNarrow, true, decPtr("7"), ts),
	})

	analyzer := NewAnalyzer(store, nil)
	analyzer.now = func() time.Time { return ts }

	top, err := analyzer.TopPositions(context.Background(), testPool, 7, 1, model.RangeNarrow)
	if err != nil {
		t.Fatalf("top positions: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("got %d positions, want 1", len(top))
	}
	if top[0].TokenID != 3 {
		t.Fatalf("top narrow token = %d, want 3", top[0].TokenID)
	}
}

func TestTopPositionsTimeInRange(t *testing.T) {
	store := memory.NewStore()
	ts1 := time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)
	ts2 := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	insertCycle(t, store, ts1, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, true, decPtr("4"), ts1),
	})
	insertCycle(t, store, ts2, []model.PositionSnapshot{
		snapshot(1, model.RangeNarrow, false, decPtr("6"), ts2),
	})

	analyzer := NewAnalyzer(store, nil)
	analyzer.now = func() time.Time { return ts2 }

	top, err := analyzer.TopPositions(context.Background(), testPool, 7, 0, "")
	if err != nil {
		t.Fatalf("top positions: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("got %d positions, want 1", len(top))
	}
	perf := top[0]
	if perf.SnapshotCount != 2 {
		t.Fatalf("snapshot count = %d", perf.SnapshotCount)
	}
	if !perf.TimeInRangePct.Equal(dec("50")) {
		t.Fatalf("time in range = %s, want 50", perf.TimeInRangePct)
	}
	if perf.AvgAPR == nil || !perf.AvgAPR.Equal(dec("5")) {
		t.Fatalf("avg apr = %v, want 5", perf.AvgAPR)
	}
	if perf.IsCurrentlyInRange {
		t.Fatalf("latest snapshot is out of range")
	}
}

type failingReader struct{}

func (failingReader) LatestSnapshotTime(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, fmt.Errorf("connection refused")
}

func (failingReader) PositionSnapshotsAt(context.Context, string, time.Time) ([]model.PositionSnapshot, error) {
	return nil, fmt.Errorf("connection refused")
}

func (failingReader) PositionSnapshotsSince(context.Context, string, time.Time) ([]model.PositionSnapshot, error) {
	return nil, fmt.Errorf("connection refused")
}

func (failingReader) LatestPoolSnapshot(context.Context, string) (model.PoolSnapshot, bool, error) {
	return model.PoolSnapshot{}, false, fmt.Errorf("connection refused")
}

func TestReaderFailureSurfacesUnavailable(t *testing.T) {
	analyzer := NewAnalyzer(failingReader{}, nil)

	_, err := analyzer.Distribution(context.Background(), testPool, time.Time{})
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("distribution error = %v, want UnavailableError", err)
	}

	if _, err := analyzer.Summary(context.Background(), testPool); !errors.As(err, &unavailable) {
		t.Fatalf("summary error = %v, want UnavailableError", err)
	}
	if _, err := analyzer.Trend(context.Background(), testPool, 7); !errors.As(err, &unavailable) {
		t.Fatalf("trend error = %v, want UnavailableError", err)
	}
	if _, err := analyzer.TopPositions(context.Background(), testPool, 7, 0, ""); !errors.As(err, &unavailable) {
		t.Fatalf("top positions error = %v, want UnavailableError", err)
	}
}
