package collector

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/config"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ParseAddress converts one required address string.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseMarketTargets converts configured market entries into collection
// targets.
func ParseMarketTargets(entries []config.MarketConfig) ([]MarketTarget, error) {
	targets := make([]MarketTarget, 0, len(entries))
	for _, entry := range entries {
		if entry.Asset == "" {
			return nil, fmt.Errorf("market entry missing asset name")
		}
		address, err := ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", entry.Asset, err)
		}
		target := MarketTarget{
			Asset:              entry.Asset,
			Address:            address,
			UnderlyingDecimals: entry.UnderlyingDecimals,
		}
		if entry.Underlying != "" {
			underlying, err := ParseAddress(entry.Underlying)
			if err != nil {
				return nil, fmt.Errorf("market %s underlying: %w", entry.Asset, err)
			}
			target.Underlying = underlying
		}
		if entry.RewardToken != "" {
			reward, err := ParseAddress(entry.RewardToken)
			if err != nil {
				return nil, fmt.Errorf("market %s reward token: %w", entry.Asset, err)
			}
			target.RewardToken = reward
		}
		targets = append(targets, target)
	}
	return targets, nil
}
