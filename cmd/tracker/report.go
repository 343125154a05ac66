package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/analysis"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/collector"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/config"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/model"
	"github.com/MichiganTokenizers/DefiTracker-sub000/internal/storage/postgres"
)

type poolReport struct {
	Summary      model.PoolAnalysisSummary                  `json:"summary"`
	Trend        map[model.RangeCategory][]model.TrendPoint `json:"trend"`
	TopPositions []model.PositionPerformance                `json:"top_positions"`
}

type report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Days        int                   `json:"days"`
	Pools       map[string]poolReport `json:"pools"`
	// NoData lists pools with no snapshots, distinguishing "never
	// collected" from "collected with zero yield".
	NoData []string `json:"no_data,omitempty"`
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReport(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	pools, err := collector.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("pool list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	analyzer := analysis.NewAnalyzer(store, logger)

	out := report{
		GeneratedAt: time.Now().UTC(),
		Days:        cfg.Days,
		Pools:       make(map[string]poolReport, len(pools)),
	}

	for _, pool := range pools {
		address := pool.Hex()

		summary, err := analyzer.Summary(ctx, address)
		if errors.Is(err, analysis.ErrNoSnapshots) {
			logger.Warn("no snapshots for pool", zap.String("pool", address))
			out.NoData = append(out.NoData, address)
			continue
		}
		if err != nil {
			return err
		}

		trend, err := analyzer.Trend(ctx, address, cfg.Days)
		if err != nil {
			return err
		}
		trendPoints := make(map[model.RangeCategory][]model.TrendPoint, len(trend))
		for cat, series := range trend {
			trendPoints[cat] = series.Points()
		}

		top, err := analyzer.TopPositions(ctx, address, cfg.Days, cfg.Limit, "")
		if err != nil {
			return err
		}

		out.Pools[address] = poolReport{
			Summary:      summary,
			Trend:        trendPoints,
			TopPositions: top,
		}
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	encoded = append(encoded, '\n')

	if cfg.Out == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(cfg.Out, encoded, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	logger.Info("report written",
		zap.String("out", cfg.Out),
		zap.Int("pools", len(out.Pools)),
		zap.Int("no_data", len(out.NoData)),
	)
	return nil
}
