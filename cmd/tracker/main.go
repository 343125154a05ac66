package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/collector"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/config"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/dex"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/ranges"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "tracker",
		Short:        "DeFi yield tracker",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	positionsCmd := &cobra.Command{
		Use:   "positions",
		Short: "Collect one snapshot cycle of concentrated liquidity positions",
		RunE:  runPositions,
	}

	positionsCmd.Flags().String("rpc", "", "chain RPC URL")
	positionsCmd.Flags().String("position-manager", "", "NFT position manager address")
	positionsCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	positionsCmd.Flags().String("narrow-max-pct", "1.0", "narrow category upper bound, percent")
	positionsCmd.Flags().String("medium-max-pct", "5.0", "medium category upper bound, percent")
	positionsCmd.Flags().Duration("price-cache-ttl", 5*time.Minute, "price cache TTL")
	positionsCmd.Flags().Duration("call-timeout", 30*time.Second, "per-cycle RPC timeout")
	positionsCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty writes JSONL)")
	positionsCmd.Flags().String("out", "./data/position_snapshots.jsonl", "JSONL output path")
	positionsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(positionsCmd)

	marketsCmd := &cobra.Command{
		Use:   "markets",
		Short: "Collect one APY snapshot per configured lending market",
		RunE:  runMarkets,
	}

	marketsCmd.Flags().String("rpc", "", "chain RPC URL")
	marketsCmd.Flags().String("comptroller", "", "comptroller address")
	marketsCmd.Flags().String("lens", "", "lens contract address")
	marketsCmd.Flags().Duration("block-time", 2*time.Second, "chain block interval")
	marketsCmd.Flags().Duration("reward-window", 24*time.Hour, "trailing window for reward aggregation")
	marketsCmd.Flags().Uint64("chunk-size", 30, "max blocks per eth_getLogs query")
	marketsCmd.Flags().Int("max-retries", 5, "maximum retry attempts per chunk")
	marketsCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	marketsCmd.Flags().String("max-apy-pct", "1000000", "APY clamp bound, percent")
	marketsCmd.Flags().Duration("price-cache-ttl", 5*time.Minute, "reward price cache TTL")
	marketsCmd.Flags().Duration("call-timeout", 30*time.Second, "per-cycle RPC timeout")
	marketsCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty writes JSONL)")
	marketsCmd.Flags().String("out", "./data/market_snapshots.jsonl", "JSONL output path")
	marketsCmd.Flags().String("state-file", "", "local state file for reward-window progress (JSONL mode)")
	marketsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(marketsCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Produce a per-pool analysis report from persisted snapshots",
		RunE:  runReport,
	}

	reportCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	reportCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	reportCmd.Flags().Int("days", 7, "trailing window in days for trend and rankings")
	reportCmd.Flags().Int("limit", 10, "top positions per pool")
	reportCmd.Flags().String("out", "", "output JSON path (empty writes stdout)")
	reportCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reportCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPositions(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPositions(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	manager, err := collector.ParseAddress(cfg.PositionManager)
	if err != nil {
		return fmt.Errorf("position manager: %w", err)
	}
	pools, err := collector.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("pool list is required")
	}

	classifier, err := newClassifier(cfg.NarrowMaxPct, cfg.MediumMaxPct)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	writer, closeWriter, err := newWriter(ctx, cfg.PGDSN, cfg.Out)
	if err != nil {
		return err
	}
	defer closeWriter()

	c := &collector.PositionsCollector{
		Chain:      chainClient,
		Manager:    dex.NewPositionManager(chainClient, manager, logger),
		Classifier: classifier,
		TokenCache: dex.NewTokenMetaCache(),
		PoolCache:  dex.NewPoolMetaCache(),
		Writer:     writer,
		Logger:     logger,
	}

	logger.Info("positions cycle start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("position_manager", manager.Hex()),
		zap.Int("pools", len(pools)),
		zap.String("narrow_max_pct", cfg.NarrowMaxPct),
		zap.String("medium_max_pct", cfg.MediumMaxPct),
	)

	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}

	return c.Run(ctx, pools)
}

func newClassifier(narrowMaxPct, mediumMaxPct string) (*ranges.Classifier, error) {
	narrow, err := decimal.NewFromString(narrowMaxPct)
	if err != nil {
		return nil, fmt.Errorf("narrow threshold: %w", err)
	}
	medium, err := decimal.NewFromString(mediumMaxPct)
	if err != nil {
		return nil, fmt.Errorf("medium threshold: %w", err)
	}
	return ranges.NewClassifier(ranges.Thresholds{
		NarrowMaxPct: narrow,
		MediumMaxPct: medium,
	})
}

// newWriter picks Postgres when a DSN is configured, JSONL otherwise.
func newWriter(ctx context.Context, dsn, out string) (storage.SnapshotWriter, func(), error) {
	if dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, store.Close, nil
	}
	return storage.NewJsonlWriter(out), func() {}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
