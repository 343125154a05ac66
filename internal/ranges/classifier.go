package ranges

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
)

// Default category thresholds, in percent of price range. Positions at
// or below NarrowMaxPct are narrow, at or below MediumMaxPct are
// medium, anything wider is wide.
const (
	DefaultNarrowMaxPct = "1.0"
	DefaultMediumMaxPct = "5.0"
)

// MinTick and MaxTick bound the usable V3 tick domain. Pools never
// mint positions outside it, so wider bounds are a corrupt contract
// response, not a wide position.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// InvalidRangeError reports malformed tick bounds.
type InvalidRangeError struct {
	TickLower int32
	TickUpper int32
	Reason    string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid tick range [%d, %d]: %s", e.TickLower, e.TickUpper, e.Reason)
}

// Thresholds partition range widths into categories.
type Thresholds struct {
	NarrowMaxPct decimal.Decimal
	MediumMaxPct decimal.Decimal
}

// DefaultThresholds returns the default narrow/medium cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NarrowMaxPct: decimal.RequireFromString(DefaultNarrowMaxPct),
		MediumMaxPct: decimal.RequireFromString(DefaultMediumMaxPct),
	}
}

// Classifier turns tick ranges into width metrics and categories.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier builds a Classifier, validating the threshold ordering.
func NewClassifier(thresholds Thresholds) (*Classifier, error) {
	if thresholds.NarrowMaxPct.Sign() <= 0 {
		return nil, fmt.Errorf("narrow threshold must be positive, got %s", thresholds.NarrowMaxPct)
	}
	if thresholds.MediumMaxPct.Cmp(thresholds.NarrowMaxPct) <= 0 {
		return nil, fmt.Errorf("medium threshold %s must exceed narrow threshold %s",
			thresholds.MediumMaxPct, thresholds.NarrowMaxPct)
	}
	return &Classifier{thresholds: thresholds}, nil
}

// WidthPercent converts a tick range into a price-range percentage.
// Price ratio per tick step is 1.0001, so the full range covers
// (1.0001^(upper-lower) - 1) * 100 percent.
func (c *Classifier) WidthPercent(tickLower, tickUpper int32) (decimal.Decimal, error) {
	if tickLower >= tickUpper {
		return decimal.Zero, &InvalidRangeError{TickLower: tickLower, TickUpper: tickUpper, Reason: "lower >= upper"}
	}
	// int24-sized ticks beyond the usable domain would push the
	// exponential past float64 range.
	if tickLower < MinTick || tickUpper > MaxTick {
		return decimal.Zero, &InvalidRangeError{TickLower: tickLower, TickUpper: tickUpper, Reason: "outside usable tick bounds"}
	}
	ratio := math.Pow(1.0001, float64(tickUpper-tickLower))
	return decimal.NewFromFloat((ratio - 1) * 100), nil
}

// Categorize maps a non-negative width percentage onto exactly one
// category. Boundaries are closed on the upper edge of each bucket.
func (c *Classifier) Categorize(widthPercent decimal.Decimal) model.RangeCategory {
	if widthPercent.Cmp(c.thresholds.NarrowMaxPct) <= 0 {
		return model.RangeNarrow
	}
	if widthPercent.Cmp(c.thresholds.MediumMaxPct) <= 0 {
		return model.RangeMedium
	}
	return model.RangeWide
}

// IsInRange reports whether the pool's current tick falls inside the
// position's bounds. The interval is half-open, [lower, upper), the
// convention V3-style pools use for active liquidity.
func IsInRange(currentTick, tickLower, tickUpper int32) bool {
	return currentTick >= tickLower && currentTick < tickUpper
}

// Classify computes the width metrics and category for a tick range in
// one step.
func (c *Classifier) Classify(tickLower, tickUpper int32) (widthTicks int32, widthPercent decimal.Decimal, category model.RangeCategory, err error) {
	widthPercent, err = c.WidthPercent(tickLower, tickUpper)
	if err != nil {
		return 0, decimal.Zero, "", err
	}
	return tickUpper - tickLower, widthPercent, c.Categorize(widthPercent), nil
}
