package rates

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultMaxAPYPercent bounds what the snapshot columns can hold.
// Illiquid markets occasionally produce absurd compounded figures;
// those are clamped and logged rather than failing the cycle.
const DefaultMaxAPYPercent = "1000000"

// ValueOverflowError reports an APY outside the persistable range. It
// is soft: the caller stores the clamped value and logs the original.
type ValueOverflowError struct {
	Value   decimal.Decimal
	Clamped decimal.Decimal
}

func (e *ValueOverflowError) Error() string {
	return fmt.Sprintf("apy %s exceeds storage bounds, clamped to %s", e.Value, e.Clamped)
}

// Bounds is the persistable APY interval.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultBounds returns the symmetric default interval.
func DefaultBounds() Bounds {
	max := decimal.RequireFromString(DefaultMaxAPYPercent)
	return Bounds{Min: max.Neg(), Max: max}
}

// Clamp forces an APY into the bounds. The returned error, when
// non-nil, is always a *ValueOverflowError carrying both values.
func (b Bounds) Clamp(apy decimal.Decimal) (decimal.Decimal, error) {
	if apy.Cmp(b.Max) > 0 {
		return b.Max, &ValueOverflowError{Value: apy, Clamped: b.Max}
	}
	if apy.Cmp(b.Min) < 0 {
		return b.Min, &ValueOverflowError{Value: apy, Clamped: b.Min}
	}
	return apy, nil
}
