package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"perpetuals/internal/config"
	"perpetuals/internal/model"
	"perpetuals/internal/snapshot"
	"perpetuals/internal/store/postgres"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write custody snapshots to JSONL and/or Postgres",
		RunE:  runSnapshot,
	}
	cmd.Flags().String("out", "", "output JSONL path ({date} rotates files by UTC day)")
	cmd.Flags().Bool("fsync", false, "sync the JSONL file to disk after every batch")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the custody_snapshots table")
	cmd.Flags().Duration("interval", 0, "repeat every interval (0 writes once)")
	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSnapshot(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	interval, _ := cmd.Flags().GetDuration("interval")

	e, err := openEnv(cmd, cfg.Config, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	var sinks multiSink
	if cfg.Out != "" {
		sinks = append(sinks, snapshot.NewJSONLSink(cfg.Out, cfg.Fsync))
	}
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(e.ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	collector := snapshot.NewCollector(e.engine, sinks, e.logger)
	e.logger.Info("snapshot start",
		zap.String("out", cfg.Out),
		zap.Bool("fsync", cfg.Fsync),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Duration("interval", interval),
	)

	for {
		if _, err := collector.Collect(e.ctx); err != nil {
			return err
		}
		if interval <= 0 {
			return nil
		}
		select {
		case <-e.ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// multiSink fans a batch out to every sink in order.
type multiSink []snapshot.Sink

func (m multiSink) PutSnapshots(ctx context.Context, rows []model.CustodySnapshot) error {
	for _, sink := range m {
		if err := sink.PutSnapshots(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}
