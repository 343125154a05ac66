package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
)

// TrendSeries is a restartable iterator over a category's per-day APR
// points, ordered oldest first.
type TrendSeries struct {
	points []model.TrendPoint
	idx    int
}

// Next returns the next point, false when the series is exhausted.
func (s *TrendSeries) Next() (model.TrendPoint, bool) {
	if s.idx >= len(s.points) {
		return model.TrendPoint{}, false
	}
	p := s.points[s.idx]
	s.idx++
	return p, true
}

// Reset rewinds the series to its first point.
func (s *TrendSeries) Reset() { s.idx = 0 }

// Len reports the number of points in the series.
func (s *TrendSeries) Len() int { return len(s.points) }

// Points returns the underlying slice, for callers that want it whole.
func (s *TrendSeries) Points() []model.TrendPoint { return s.points }

// Trend buckets the trailing days of position snapshots by UTC calendar
// day and range category, averaging total APR per bucket. Days without
// any APR reading are omitted from a category's series; categories with
// no points at all are omitted from the map.
func (a *Analyzer) Trend(ctx context.Context, pool string, days int) (map[model.RangeCategory]*TrendSeries, error) {
	since := a.now().UTC().AddDate(0, 0, -days)
	snapshots, err := a.reader.PositionSnapshotsSince(ctx, pool, since)
	if err != nil {
		return nil, &UnavailableError{Op: "position snapshots since", Err: err}
	}

	type bucket struct {
		sum   decimal.Decimal
		count int64
	}
	buckets := make(map[model.RangeCategory]map[time.Time]*bucket)
	for _, s := range snapshots {
		if s.TotalAPR == nil {
			continue
		}
		day := s.Timestamp.UTC().Truncate(24 * time.Hour)
		byDay, ok := buckets[s.RangeCategory]
		if !ok {
			byDay = make(map[time.Time]*bucket)
			buckets[s.RangeCategory] = byDay
		}
		b, ok := byDay[day]
		if !ok {
			b = &bucket{}
			byDay[day] = b
		}
		b.sum = b.sum.Add(*s.TotalAPR)
		b.count++
	}

	out := make(map[model.RangeCategory]*TrendSeries, len(buckets))
	for cat, byDay := range buckets {
		points := make([]model.TrendPoint, 0, len(byDay))
		for day, b := range byDay {
			points = append(points, model.TrendPoint{
				Day:    day,
				AvgAPR: b.sum.Div(decimal.NewFromInt(b.count)),
			})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })
		out[cat] = &TrendSeries{points: points}
	}
	return out, nil
}
