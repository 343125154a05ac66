package price

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
)

const pairABIJSON = `[
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint112", "name": "reserve0", "type": "uint112"},
      {"internalType": "uint112", "name": "reserve1", "type": "uint112"},
      {"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "token0",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	pairABI     abi.ABI
	pairABIOnce sync.Once
	pairABIErr  error
)

func getPairABI() (abi.ABI, error) {
	pairABIOnce.Do(func() {
		pairABI, pairABIErr = abi.JSON(strings.NewReader(pairABIJSON))
	})
	return pairABI, pairABIErr
}

// PairConfig maps a token pair onto a V2-style DEX pair contract.
type PairConfig struct {
	PairAddress common.Address
	// Token0 is the pair contract's token0; prices invert when the
	// requested tokenIn is token1.
	Token0         common.Address
	Token0Decimals uint8
	Token1         common.Address
	Token1Decimals uint8
}

// DexFeed reads spot prices from V2-style DEX pair reserves. A price
// that cannot be read (missing pair, reverted call, empty reserves)
// comes back as unavailable, never as an error.
type DexFeed struct {
	Chain  *chain.Client
	Pairs  map[Pair]PairConfig
	Logger *zap.Logger
}

func (f *DexFeed) PriceInQuote(ctx context.Context, tokenIn, tokenOut common.Address) (decimal.Decimal, bool) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, ok := f.Pairs[Pair{TokenIn: tokenIn, TokenOut: tokenOut}]
	if !ok {
		return decimal.Zero, false
	}

	reserve0, reserve1, err := f.fetchReserves(ctx, cfg.PairAddress)
	if err != nil {
		logger.Warn("pair reserves fetch failed",
			zap.String("pair", cfg.PairAddress.Hex()),
			zap.Error(err),
		)
		return decimal.Zero, false
	}
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return decimal.Zero, false
	}

	amount0 := decimal.NewFromBigInt(reserve0, -int32(cfg.Token0Decimals))
	amount1 := decimal.NewFromBigInt(reserve1, -int32(cfg.Token1Decimals))

	if tokenIn == cfg.Token0 {
		return amount1.Div(amount0), true
	}
	return amount0.Div(amount1), true
}

func (f *DexFeed) fetchReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	parsed, err := getPairABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse pair abi: %w", err)
	}

	data, err := parsed.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("pack getReserves: %w", err)
	}

	msg := ethereum.CallMsg{To: &pair, Data: data}
	resp, err := f.Chain.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("call getReserves: %w", err)
	}

	values, err := parsed.Unpack("getReserves", resp)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack getReserves: %w", err)
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("getReserves returned %d values", len(values))
	}

	reserve0, ok := values[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("reserve0 unexpected type %T", values[0])
	}
	reserve1, ok := values[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("reserve1 unexpected type %T", values[1])
	}
	return reserve0, reserve1, nil
}
