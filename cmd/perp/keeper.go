package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"perpetuals/internal/config"
	"perpetuals/internal/feed"
	"perpetuals/internal/keeper"
	"perpetuals/internal/metrics"
	"perpetuals/internal/store/postgres"
)

func newKeeperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keeper",
		Short: "Sweep open positions and liquidate the ones past their liquidation price",
		RunE:  runKeeper,
	}
	cmd.Flags().String("liquidator", "", "liquidator address that receives liquidation fees")
	cmd.Flags().Duration("interval", 0, "sweep interval (0 sweeps once)")
	cmd.Flags().Int("batch-size", 100, "positions per checkpointed batch")
	cmd.Flags().String("checkpoint", "./data/keeper.json", "checkpoint file path (file state only)")
	cmd.Flags().String("state-name", "keeper", "keeper_state row name (postgres store only)")
	cmd.Flags().StringSlice("feeds", nil, "observation feeds as custody-or-mint=spec (comma-separated)")
	cmd.Flags().String("metrics-addr", "", "listen address for /metrics (empty disables)")
	return cmd
}

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadKeeper(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	liquidator, err := parseAddress("liquidator", cfg.Liquidator)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	e, err := openEnv(cmd, cfg.Config, recorder)
	if err != nil {
		return err
	}
	defer e.Close()

	feeds, err := e.keeperFeeds(cfg.Feeds)
	if err != nil {
		return err
	}

	var state keeper.StateStore = &keeper.FileStateStore{Path: cfg.Checkpoint}
	if pg, ok := e.store.(*postgres.Store); ok {
		state = &keeper.DBStateStore{Store: pg, Name: cfg.StateName}
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(recorder), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	runner := keeper.NewRunner(keeper.RunConfig{
		Liquidator: liquidator,
		BatchSize:  cfg.BatchSize,
		Interval:   cfg.Interval,
		OnSweep: func(s keeper.Summary) {
			recorder.ObserveSweep(s.Liquidated, s.Skipped, s.Failed)
		},
	}, e.engine, feeds, state, e.logger)

	e.logger.Info("keeper start",
		zap.String("liquidator", liquidator.Hex()),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("interval", cfg.Interval),
		zap.Int("feeds", len(feeds)),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	err = runner.Run(e.ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func metricsMux(recorder *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	return mux
}

// keeperFeeds resolves feed entries keyed by custody key or mint into
// retrying sources keyed by custody.
func (e *env) keeperFeeds(entries map[string]string) (map[common.Hash]feed.Source, error) {
	out := make(map[common.Hash]feed.Source, len(entries))
	if len(entries) == 0 {
		return out, nil
	}

	byMint := map[common.Address][]common.Hash{}
	pools, err := e.engine.Pools(e.ctx)
	if err != nil {
		return nil, err
	}
	for _, pool := range pools {
		custodies, err := e.engine.Custodies(e.ctx, pool.Key)
		if err != nil {
			return nil, err
		}
		for _, c := range custodies {
			byMint[c.Mint] = append(byMint[c.Mint], c.Key)
		}
	}

	for target, spec := range entries {
		src, err := feed.ParseSpec(spec, e.deps)
		if err != nil {
			return nil, err
		}
		retrying := feed.Retrying{
			Source:     src,
			MaxRetries: e.cfg.MaxRetries,
			Backoff:    e.cfg.RetryBackoff,
			Logger:     e.logger,
			Name:       target,
		}

		if key, err := parseHash("feed", target); err == nil {
			out[key] = retrying
			continue
		}
		mint, err := parseMint(target)
		if err != nil {
			return nil, err
		}
		keys, ok := byMint[mint]
		if !ok {
			return nil, fmt.Errorf("feed %s: no custody for mint %s", target, mint.Hex())
		}
		for _, key := range keys {
			out[key] = retrying
		}
	}
	return out, nil
}
