// Package config loads command settings from flags, environment and an
// optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PERP"

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the settings shared by every command.
type Config struct {
	Store        string
	DSN          string
	LogLevel     string
	RPCURL       string
	ChainID      uint64
	RedisAddr    string
	MaxRetries   int
	RetryBackoff time.Duration
}

// KeeperConfig holds configuration for the liquidation keeper.
type KeeperConfig struct {
	Config
	Liquidator  string
	Interval    time.Duration
	BatchSize   int
	Checkpoint  string
	StateName   string
	Feeds       map[string]string
	MetricsAddr string
}

// SnapshotConfig holds configuration for the snapshot command.
type SnapshotConfig struct {
	Config
	Out   string
	Fsync bool
	PGDSN string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return base(v)
}

// LoadKeeper merges config file, environment variables, and flags into KeeperConfig.
func LoadKeeper(cfgFile string, flags *pflag.FlagSet) (KeeperConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return KeeperConfig{}, err
	}
	cfg, err := base(v)
	if err != nil {
		return KeeperConfig{}, err
	}

	kc := KeeperConfig{
		Config:      cfg,
		Liquidator:  v.GetString("liquidator"),
		Interval:    v.GetDuration("interval"),
		BatchSize:   v.GetInt("batch-size"),
		Checkpoint:  v.GetString("checkpoint"),
		StateName:   v.GetString("state-name"),
		Feeds:       getStringMap(v, "feeds"),
		MetricsAddr: v.GetString("metrics-addr"),
	}
	if kc.BatchSize <= 0 {
		return KeeperConfig{}, fmt.Errorf("batch-size must be greater than zero")
	}
	if kc.Interval < 0 {
		return KeeperConfig{}, fmt.Errorf("interval must not be negative")
	}
	return kc, nil
}

// LoadSnapshot merges config file, environment variables, and flags into SnapshotConfig.
func LoadSnapshot(cfgFile string, flags *pflag.FlagSet) (SnapshotConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return SnapshotConfig{}, err
	}
	cfg, err := base(v)
	if err != nil {
		return SnapshotConfig{}, err
	}
	sc := SnapshotConfig{
		Config: cfg,
		Out:    v.GetString("out"),
		Fsync:  v.GetBool("fsync"),
		PGDSN:  v.GetString("pg-dsn"),
	}
	if sc.Out == "" && sc.PGDSN == "" {
		return SnapshotConfig{}, fmt.Errorf("one of out or pg-dsn is required")
	}
	return sc, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreSQLite)
	v.SetDefault("dsn", "./data/perpetuals.db")
	v.SetDefault("log-level", "info")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("batch-size", 100)
	v.SetDefault("interval", time.Duration(0))
	v.SetDefault("checkpoint", "./data/keeper.json")
	v.SetDefault("state-name", "keeper")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func base(v *viper.Viper) (Config, error) {
	cfg := Config{
		Store:        strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DSN:          v.GetString("dsn"),
		LogLevel:     v.GetString("log-level"),
		RPCURL:       v.GetString("rpc"),
		ChainID:      v.GetUint64("chain-id"),
		RedisAddr:    v.GetString("redis-addr"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
	switch cfg.Store {
	case StoreSQLite, StorePostgres:
		if cfg.DSN == "" {
			return Config{}, fmt.Errorf("dsn is required for store %s", cfg.Store)
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("unknown store backend: %s", cfg.Store)
	}
	return cfg, nil
}
