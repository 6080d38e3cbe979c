package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"perpetuals/internal/chain"
	"perpetuals/internal/config"
	"perpetuals/internal/feed"
	"perpetuals/internal/model"
	"perpetuals/internal/perp"
	"perpetuals/internal/store"
	"perpetuals/internal/store/postgres"
	"perpetuals/internal/store/sqlite"
	"perpetuals/internal/token"
)

// env is the set of connections a command runs against.
type env struct {
	ctx    context.Context
	cfg    config.Config
	logger *zap.Logger
	store  store.Store
	ledger *token.Ledger
	engine *perp.Engine
	deps   feed.Deps

	closers []func()
}

func openEnv(cmd *cobra.Command, cfg config.Config, observer perp.Observer) (*env, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	e := &env{ctx: ctx, cfg: cfg, logger: logger, ledger: token.NewLedger()}
	e.closers = append(e.closers, stop, func() { _ = logger.Sync() })

	st, err := openStore(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, func() {
		if err := st.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	})

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		e.deps.Redis = client
		e.closers = append(e.closers, func() { _ = client.Close() })
	}
	if cfg.RPCURL != "" {
		client, err := chain.Dial(ctx, cfg.RPCURL, cfg.ChainID)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		logger.Info("rpc connected", zap.Uint64("chain_id", client.ChainID()))
		e.deps.Chain = client
		e.closers = append(e.closers, client.Close)
	}

	e.engine = perp.NewEngine(st, e.ledger, perp.SystemClock{}, logger, observer)
	logger.Debug("environment ready", zap.String("command", cmd.Name()), zap.String("store", cfg.Store))
	return e, nil
}

// Close releases connections in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		st, err := sqlite.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.StorePostgres:
		st, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store)
	}
}

// loadBase reads the shared config for cmd.
func loadBase(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

// withEnv loads config, opens the environment and runs fn against it.
func withEnv(cmd *cobra.Command, fn func(e *env) error) error {
	cfg, err := loadBase(cmd)
	if err != nil {
		return err
	}
	e, err := openEnv(cmd, cfg, nil)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

// observation fetches the raw observation named by a feed spec.
func (e *env) observation(spec string) ([]byte, error) {
	src, err := feed.ParseSpec(spec, e.deps)
	if err != nil {
		return nil, err
	}
	return feed.Retrying{
		Source:     src,
		MaxRetries: e.cfg.MaxRetries,
		Backoff:    e.cfg.RetryBackoff,
		Logger:     e.logger,
		Name:       spec,
	}.Fetch(e.ctx)
}

// parseAddress accepts a hex address.
func parseAddress(name, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, input)
	}
	return common.HexToAddress(input), nil
}

// parseMint accepts a hex address or a symbol, which is mapped to its
// derived mint address.
func parseMint(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("mint is required")
	}
	if common.IsHexAddress(input) {
		return common.HexToAddress(input), nil
	}
	return model.MintAddress(strings.ToUpper(input)), nil
}

// parseHash accepts a 0x-prefixed 32-byte key.
func parseHash(name, input string) (common.Hash, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(input))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: invalid key %q: %w", name, input, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s: key %q is %d bytes, want %d", name, input, len(raw), common.HashLength)
	}
	return common.BytesToHash(raw), nil
}

func parsePrice(name, input string) (uint64, error) {
	price, err := model.ParseAmount(input, model.USDDecimals)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return price, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
