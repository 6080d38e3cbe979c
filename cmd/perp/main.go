package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "perp",
		Short:        "Perpetuals exchange engine",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("store", "sqlite", "record store backend (sqlite, postgres, memory)")
	flags.String("dsn", "./data/perpetuals.db", "sqlite path or postgres DSN")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("rpc", "", "RPC URL for chain feeds")
	flags.Uint64("chain-id", 0, "expected chain id of the RPC endpoint (0 accepts any)")
	flags.String("redis-addr", "", "redis address for redis feeds")
	flags.Int("max-retries", 5, "maximum feed fetch retries")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial feed retry backoff")

	root.AddCommand(
		newInitCmd(),
		newAddPoolCmd(),
		newAddCustodyCmd(),
		newUpdatePriceCmd(),
		newSetPermissionsCmd(),
		newCreateMintCmd(),
		newMintToCmd(),
		newBalanceCmd(),
		newAddLiquidityCmd(),
		newRemoveLiquidityCmd(),
		newOpenCmd(),
		newMarkCmd(),
		newCloseCmd(),
		newLiquidateCmd(),
		newShowCmd(),
		newEncodeObservationCmd(),
		newSnapshotCmd(),
		newKeeperCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
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
