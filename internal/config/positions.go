package config

import (
	"time"

	"github.com/spf13/pflag"
)

// PositionsConfig drives one position-collection cycle.
type PositionsConfig struct {
	RPCURL          string
	PositionManager string
	Pools           []string
	NarrowMaxPct    string
	MediumMaxPct    string
	PriceCacheTTL   time.Duration
	CallTimeout     time.Duration
	PGDSN           string
	Out             string
	LogLevel        string
}

// LoadPositions merges config file, environment variables, and flags
// into PositionsConfig.
func LoadPositions(cfgFile string, flags *pflag.FlagSet) (PositionsConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return PositionsConfig{}, err
	}

	v.SetDefault("narrow-max-pct", "1.0")
	v.SetDefault("medium-max-pct", "5.0")
	v.SetDefault("price-cache-ttl", 5*time.Minute)
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("out", "./data/position_snapshots.jsonl")
	v.SetDefault("log-level", "info")

	cfg := PositionsConfig{
		RPCURL:          v.GetString("rpc"),
		PositionManager: v.GetString("position-manager"),
		Pools:           getStringSlice(v, "pool"),
		NarrowMaxPct:    v.GetString("narrow-max-pct"),
		MediumMaxPct:    v.GetString("medium-max-pct"),
		PriceCacheTTL:   v.GetDuration("price-cache-ttl"),
		CallTimeout:     v.GetDuration("call-timeout"),
		PGDSN:           v.GetString("pg-dsn"),
		Out:             v.GetString("out"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}
