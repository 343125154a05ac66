package lending

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
)

// Lending markets here are Compound-style cTokens: rates come back as
// 1e18-scaled per-block mantissas, balances as cToken units convertible
// to underlying through exchangeRateStored.

const (
	// rateMantissaDecimals scales per-block rate mantissas.
	rateMantissaDecimals = 18
	// exchangeRateMantissaDecimals scales exchangeRateStored.
	exchangeRateMantissaDecimals = 18
	// defaultBlockTime matches Flare's ~2s block interval.
	defaultBlockTime = 2 * time.Second
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func callData(signature string, args ...common.Address) []byte {
	data := selector(signature)
	for _, arg := range args {
		data = append(data, common.LeftPadBytes(arg.Bytes(), 32)...)
	}
	return data
}

func rawCall(ctx context.Context, client *chain.Client, to common.Address, data []byte) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	return client.CallContract(ctx, msg, nil)
}

// wordAt reads the 32-byte big-endian word at index from a call return
// or log data segment.
func wordAt(data []byte, index int) (*big.Int, error) {
	start := index * 32
	end := start + 32
	if start < 0 || len(data) < end {
		return nil, fmt.Errorf("return data too short: need word %d, have %d bytes", index, len(data))
	}
	return new(big.Int).SetBytes(data[start:end]), nil
}

// perSecondRate converts a 1e18-scaled per-block rate mantissa into a
// per-second simple rate.
func perSecondRate(rawPerBlock *big.Int, blockTime time.Duration) decimal.Decimal {
	if blockTime <= 0 {
		blockTime = defaultBlockTime
	}
	perBlock := decimal.NewFromBigInt(rawPerBlock, -rateMantissaDecimals)
	return perBlock.Div(decimal.NewFromFloat(blockTime.Seconds()))
}
