package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/events"
)

// Event signatures emitted by cToken markets and their reward tokens.
const (
	AccrueInterestSignature = "AccrueInterest(uint256,uint256,uint256,uint256)"
	MintSignature           = "Mint(address,uint256,uint256)"
	TransferSignature       = "Transfer(address,address,uint256)"
)

// DecodeInterestAccumulated extracts interestAccumulated from an
// AccrueInterest log (data words: cashPrior, interestAccumulated,
// borrowIndex, totalBorrows) and scales it to underlying token units.
func DecodeInterestAccumulated(underlyingDecimals uint8) events.DecodeFunc {
	return func(log types.Log) (decimal.Decimal, error) {
		raw, err := events.WordAt(log.Data, 1)
		if err != nil {
			return decimal.Zero, fmt.Errorf("interestAccumulated: %w", err)
		}
		return decimal.NewFromBigInt(raw, -int32(underlyingDecimals)), nil
	}
}

// DecodeMintUnderlying extracts mintTokens from a Mint log (data words:
// mintAmount, mintTokens) and converts the cToken amount to underlying
// units via the market's stored exchange rate. The emitted mintAmount
// is unreliable on some markets, so conversion goes through mintTokens.
func DecodeMintUnderlying(exchangeRate decimal.Decimal, underlyingDecimals uint8) events.DecodeFunc {
	return func(log types.Log) (decimal.Decimal, error) {
		raw, err := events.WordAt(log.Data, 1)
		if err != nil {
			return decimal.Zero, fmt.Errorf("mintTokens: %w", err)
		}
		underlyingWei := decimal.NewFromBigInt(raw, 0).
			Mul(exchangeRate).
			Shift(-exchangeRateMantissaDecimals)
		return underlyingWei.Shift(-int32(underlyingDecimals)), nil
	}
}

// DecodeTransferAmount extracts the amount from an ERC20 Transfer log,
// scaled to token units.
func DecodeTransferAmount(decimals uint8) events.DecodeFunc {
	return func(log types.Log) (decimal.Decimal, error) {
		raw, err := events.WordAt(log.Data, 0)
		if err != nil {
			return decimal.Zero, fmt.Errorf("transfer amount: %w", err)
		}
		return decimal.NewFromBigInt(raw, -int32(decimals)), nil
	}
}
