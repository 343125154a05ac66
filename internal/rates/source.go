package rates

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoRateSource means every configured source declined or failed.
var ErrNoRateSource = errors.New("no rate source produced a supply rate")

// Source reads a market's per-second supply rate from one vantage
// point (a lens contract, a comptroller, the market itself). The bool
// result distinguishes "this source cannot answer" from a transport
// error; either way resolution moves on to the next source.
type Source interface {
	Name() string
	SupplyRatePerSecond(ctx context.Context) (decimal.Decimal, bool, error)
}

// Resolve tries each source in order and returns the first rate
// produced, along with the name of the source that produced it.
func Resolve(ctx context.Context, sources []Source, logger *zap.Logger) (decimal.Decimal, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, src := range sources {
		rate, ok, err := src.SupplyRatePerSecond(ctx)
		if err != nil {
			logger.Warn("rate source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		if !ok {
			logger.Debug("rate source declined", zap.String("source", src.Name()))
			continue
		}
		return rate, src.Name(), nil
	}

	return decimal.Zero, "", ErrNoRateSource
}
