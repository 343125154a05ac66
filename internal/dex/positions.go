package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
)

// Position is one NFT-represented liquidity position read from the
// position manager. TokensOwed are the uncollected fees, in raw token
// units.
type Position struct {
	TokenID     uint64
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickLower   int32
	TickUpper   int32
	Liquidity   decimal.Decimal
	TokensOwed0 decimal.Decimal
	TokensOwed1 decimal.Decimal
}

// PositionManager enumerates concentrated liquidity positions held on an
// NFT position manager contract.
type PositionManager struct {
	chain   *chain.Client
	address common.Address
	logger  *zap.Logger
}

func NewPositionManager(chainClient *chain.Client, address common.Address, logger *zap.Logger) *PositionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionManager{chain: chainClient, address: address, logger: logger}
}

// TotalSupply returns the number of minted position NFTs.
func (m *PositionManager) TotalSupply(ctx context.Context) (uint64, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return 0, fmt.Errorf("parse position manager abi: %w", err)
	}
	values, err := callMethod(ctx, m.chain, m.address, parsed, "totalSupply")
	if err != nil {
		return 0, err
	}
	supply, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("totalSupply: %w", err)
	}
	return supply.Uint64(), nil
}

// TokenByIndex returns the token id at an enumeration index.
func (m *PositionManager) TokenByIndex(ctx context.Context, index uint64) (uint64, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return 0, fmt.Errorf("parse position manager abi: %w", err)
	}
	values, err := callMethod(ctx, m.chain, m.address, parsed, "tokenByIndex", new(big.Int).SetUint64(index))
	if err != nil {
		return 0, err
	}
	id, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("tokenByIndex: %w", err)
	}
	return id.Uint64(), nil
}

// Position reads a single position's fields.
func (m *PositionManager) Position(ctx context.Context, tokenID uint64) (Position, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return Position{}, fmt.Errorf("parse position manager abi: %w", err)
	}
	values, err := callMethod(ctx, m.chain, m.address, parsed, "positions", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return Position{}, err
	}
	if len(values) < 12 {
		return Position{}, fmt.Errorf("positions returned %d values", len(values))
	}

	token0, err := asAddress(values[2])
	if err != nil {
		return Position{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return Position{}, fmt.Errorf("token1: %w", err)
	}
	feeInt, err := asBigInt(values[4])
	if err != nil {
		return Position{}, fmt.Errorf("fee: %w", err)
	}
	lowerInt, err := asBigInt(values[5])
	if err != nil {
		return Position{}, fmt.Errorf("tickLower: %w", err)
	}
	lower, err := int24FromBig(lowerInt)
	if err != nil {
		return Position{}, fmt.Errorf("tickLower: %w", err)
	}
	upperInt, err := asBigInt(values[6])
	if err != nil {
		return Position{}, fmt.Errorf("tickUpper: %w", err)
	}
	upper, err := int24FromBig(upperInt)
	if err != nil {
		return Position{}, fmt.Errorf("tickUpper: %w", err)
	}
	liq, err := asBigInt(values[7])
	if err != nil {
		return Position{}, fmt.Errorf("liquidity: %w", err)
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return Position{}, fmt.Errorf("tokensOwed0: %w", err)
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return Position{}, fmt.Errorf("tokensOwed1: %w", err)
	}

	return Position{
		TokenID:     tokenID,
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(feeInt.Uint64()),
		TickLower:   lower,
		TickUpper:   upper,
		Liquidity:   decimal.NewFromBigInt(liq, 0),
		TokensOwed0: decimal.NewFromBigInt(owed0, 0),
		TokensOwed1: decimal.NewFromBigInt(owed1, 0),
	}, nil
}

// PositionsForPool walks the full NFT enumeration and keeps positions
// whose token pair and fee match the pool's. Positions with zero
// liquidity are skipped; individually unreadable token ids are logged
// and skipped so one burned NFT does not abort the walk.
func (m *PositionManager) PositionsForPool(ctx context.Context, meta PoolMeta) ([]Position, error) {
	supply, err := m.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}

	var out []Position
	for i := uint64(0); i < supply; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tokenID, err := m.TokenByIndex(ctx, i)
		if err != nil {
			m.logger.Warn("token enumeration failed",
				zap.Uint64("index", i),
				zap.Error(err),
			)
			continue
		}

		pos, err := m.Position(ctx, tokenID)
		if err != nil {
			m.logger.Warn("position read failed",
				zap.Uint64("token_id", tokenID),
				zap.Error(err),
			)
			continue
		}

		if pos.Token0 != meta.Token0 || pos.Token1 != meta.Token1 || pos.Fee != meta.Fee {
			continue
		}
		if pos.Liquidity.Sign() == 0 {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}
