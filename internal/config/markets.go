package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// MarketConfig identifies one lending market to collect.
type MarketConfig struct {
	Asset              string `mapstructure:"asset"`
	Address            string `mapstructure:"address"`
	Underlying         string `mapstructure:"underlying"`
	UnderlyingDecimals uint8  `mapstructure:"underlying-decimals"`
	RewardToken        string `mapstructure:"reward-token"`
	RewardDecimals     uint8  `mapstructure:"reward-decimals"`
}

// PricePairConfig maps a reward/underlying token pair onto a V2-style
// DEX pair contract used for reward pricing.
type PricePairConfig struct {
	Pair             string `mapstructure:"pair"`
	TokenIn          string `mapstructure:"token-in"`
	TokenInDecimals  uint8  `mapstructure:"token-in-decimals"`
	TokenOut         string `mapstructure:"token-out"`
	TokenOutDecimals uint8  `mapstructure:"token-out-decimals"`
}

// MarketsConfig drives one market-collection cycle.
type MarketsConfig struct {
	RPCURL        string
	Comptroller   string
	Lens          string
	Markets       []MarketConfig
	PricePairs    []PricePairConfig
	BlockTime     time.Duration
	RewardWindow  time.Duration
	ChunkSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	MaxAPYPct     string
	PriceCacheTTL time.Duration
	CallTimeout   time.Duration
	PGDSN         string
	Out           string
	StateFile     string
	LogLevel      string
}

// LoadMarkets merges config file, environment variables, and flags into
// MarketsConfig. Market entries come from the config file's markets
// list.
func LoadMarkets(cfgFile string, flags *pflag.FlagSet) (MarketsConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return MarketsConfig{}, err
	}

	v.SetDefault("block-time", 2*time.Second)
	v.SetDefault("reward-window", 24*time.Hour)
	v.SetDefault("chunk-size", uint64(30))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("max-apy-pct", "1000000")
	v.SetDefault("price-cache-ttl", 5*time.Minute)
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("out", "./data/market_snapshots.jsonl")
	v.SetDefault("log-level", "info")

	cfg := MarketsConfig{
		RPCURL:        v.GetString("rpc"),
		Comptroller:   v.GetString("comptroller"),
		Lens:          v.GetString("lens"),
		BlockTime:     v.GetDuration("block-time"),
		RewardWindow:  v.GetDuration("reward-window"),
		ChunkSize:     v.GetUint64("chunk-size"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		MaxAPYPct:     v.GetString("max-apy-pct"),
		PriceCacheTTL: v.GetDuration("price-cache-ttl"),
		CallTimeout:   v.GetDuration("call-timeout"),
		PGDSN:         v.GetString("pg-dsn"),
		Out:           v.GetString("out"),
		StateFile:     v.GetString("state-file"),
		LogLevel:      v.GetString("log-level"),
	}

	if v.IsSet("markets") {
		if err := v.UnmarshalKey("markets", &cfg.Markets); err != nil {
			return MarketsConfig{}, fmt.Errorf("parse markets: %w", err)
		}
	}
	if v.IsSet("price-pairs") {
		if err := v.UnmarshalKey("price-pairs", &cfg.PricePairs); err != nil {
			return MarketsConfig{}, fmt.Errorf("parse price pairs: %w", err)
		}
	}

	return cfg, nil
}
