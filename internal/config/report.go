package config

import (
	"github.com/spf13/pflag"
)

// ReportConfig drives the analytics report command.
type ReportConfig struct {
	PGDSN    string
	Pools    []string
	Days     int
	Limit    int
	Out      string
	LogLevel string
}

// LoadReport merges config file, environment variables, and flags into
// ReportConfig.
func LoadReport(cfgFile string, flags *pflag.FlagSet) (ReportConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ReportConfig{}, err
	}

	v.SetDefault("days", 7)
	v.SetDefault("limit", 10)
	v.SetDefault("log-level", "info")

	cfg := ReportConfig{
		PGDSN:    v.GetString("pg-dsn"),
		Pools:    getStringSlice(v, "pool"),
		Days:     v.GetInt("days"),
		Limit:    v.GetInt("limit"),
		Out:      v.GetString("out"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}
