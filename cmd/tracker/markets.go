package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/chain"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/collector"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/config"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/events"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/price"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/rates"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage/postgres"
)

func runMarkets(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadMarkets(cfgFile, cmd.Flags())
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

	targets, err := collector.ParseMarketTargets(cfg.Markets)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("markets list is required")
	}

	var comptroller, lens common.Address
	if cfg.Comptroller != "" {
		if comptroller, err = collector.ParseAddress(cfg.Comptroller); err != nil {
			return fmt.Errorf("comptroller: %w", err)
		}
	}
	if cfg.Lens != "" {
		if lens, err = collector.ParseAddress(cfg.Lens); err != nil {
			return fmt.Errorf("lens: %w", err)
		}
	}

	maxAPY, err := decimal.NewFromString(cfg.MaxAPYPct)
	if err != nil {
		return fmt.Errorf("max apy: %w", err)
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

	var state collector.StateStore
	if store, ok := writer.(*postgres.Store); ok {
		state = store
	} else if cfg.StateFile != "" {
		state = collector.NewFileStateStore(cfg.StateFile)
	}

	aggregator := events.NewAggregator(events.Config{
		ChunkSize:    cfg.ChunkSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, logger)

	feed, err := newPriceFeed(cfg, chainClient, logger)
	if err != nil {
		return err
	}

	c := &collector.MarketsCollector{
		Chain:        chainClient,
		Converter:    rates.NewConverter(),
		Aggregator:   aggregator,
		PriceFeed:    feed,
		Bounds:       rates.Bounds{Min: maxAPY.Neg(), Max: maxAPY},
		Writer:       writer,
		State:        state,
		Logger:       logger,
		Comptroller:  comptroller,
		Lens:         lens,
		BlockTime:    cfg.BlockTime,
		RewardWindow: cfg.RewardWindow,
	}

	logger.Info("markets cycle start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("markets", len(targets)),
		zap.Duration("reward_window", cfg.RewardWindow),
		zap.Uint64("chunk_size", cfg.ChunkSize),
	)

	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}

	return c.Run(ctx, targets)
}

// newPriceFeed builds the reward price feed from configured DEX pairs.
// Each pair serves both quote directions; no pairs means no feed and
// reward legs stay null.
func newPriceFeed(cfg config.MarketsConfig, chainClient *chain.Client, logger *zap.Logger) (price.Feed, error) {
	if len(cfg.PricePairs) == 0 {
		return nil, nil
	}

	pairs := make(map[price.Pair]price.PairConfig, len(cfg.PricePairs)*2)
	for _, entry := range cfg.PricePairs {
		pairAddress, err := collector.ParseAddress(entry.Pair)
		if err != nil {
			return nil, fmt.Errorf("price pair: %w", err)
		}
		tokenIn, err := collector.ParseAddress(entry.TokenIn)
		if err != nil {
			return nil, fmt.Errorf("price pair token-in: %w", err)
		}
		tokenOut, err := collector.ParseAddress(entry.TokenOut)
		if err != nil {
			return nil, fmt.Errorf("price pair token-out: %w", err)
		}

		pairCfg := price.PairConfig{
			PairAddress:    pairAddress,
			Token0:         tokenIn,
			Token0Decimals: entry.TokenInDecimals,
			Token1:         tokenOut,
			Token1Decimals: entry.TokenOutDecimals,
		}
		pairs[price.Pair{TokenIn: tokenIn, TokenOut: tokenOut}] = pairCfg
		pairs[price.Pair{TokenIn: tokenOut, TokenOut: tokenIn}] = pairCfg
	}

	return price.CachedFeed{
		Inner: &price.DexFeed{Chain: chainClient, Pairs: pairs, Logger: logger},
		Cache: price.NewCache(cfg.PriceCacheTTL),
	}, nil
}
