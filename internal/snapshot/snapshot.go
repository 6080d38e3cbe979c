// Package snapshot renders custody state into reporting rows.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perpetuals/internal/model"
	"perpetuals/internal/perp"
)

// Build renders one row per custody of pool. Token amounts use the
// custody's decimals; prices and USD values use six.
func Build(pool model.Pool, custodies []model.Custody, takenAt time.Time) ([]model.CustodySnapshot, error) {
	poolValue, err := perp.TotalValue(custodies)
	if err != nil {
		return nil, fmt.Errorf("pool %s value: %w", pool.Name, err)
	}

	rows := make([]model.CustodySnapshot, 0, len(custodies))
	for _, c := range custodies {
		ownedUSD, err := perp.AssetValue(c.Assets.Owned, c.Pricing.CurrentPrice)
		if err != nil {
			return nil, fmt.Errorf("custody %s owned value: %w", c.Mint.Hex(), err)
		}
		rows = append(rows, model.CustodySnapshot{
			PoolKey:            pool.Key.Hex(),
			PoolName:           pool.Name,
			CustodyKey:         c.Key.Hex(),
			Mint:               c.Mint.Hex(),
			TakenAt:            takenAt.UTC(),
			OracleType:         c.OracleType.String(),
			Price:              usd(c.Pricing.CurrentPrice),
			EMAPrice:           usd(c.Pricing.EMAPrice),
			PriceUpdatedAt:     c.Pricing.LastUpdateTime,
			Owned:              model.FormatAmount(c.Assets.Owned, c.Decimals),
			Locked:             model.FormatAmount(c.Assets.Locked, c.Decimals),
			Collateral:         model.FormatAmount(c.Assets.Collateral, c.Decimals),
			ProtocolFees:       model.FormatAmount(c.Assets.ProtocolFees, c.Decimals),
			OwnedUSD:           usd(ownedUSD),
			OILongUSD:          usd(c.TradeStats.OILongUSD),
			OIShortUSD:         usd(c.TradeStats.OIShortUSD),
			AddLiquidityUSD:    usd(c.VolumeStats.AddLiquidityUSD),
			RemoveLiquidityUSD: usd(c.VolumeStats.RemoveLiquidityUSD),
			OpenPositionUSD:    usd(c.VolumeStats.OpenPositionUSD),
			ClosePositionUSD:   usd(c.VolumeStats.ClosePositionUSD),
			LiquidationUSD:     usd(c.VolumeStats.LiquidationUSD),
			PoolValueUSD:       usd(poolValue),
		})
	}
	return rows, nil
}

func usd(v uint64) string {
	return model.FormatAmount(v, model.USDDecimals)
}

// Source is the read side of the engine a collector needs.
type Source interface {
	Pools(ctx context.Context) ([]model.Pool, error)
	Custodies(ctx context.Context, pool common.Hash) ([]model.Custody, error)
}

// Collector snapshots every custody of every pool into a sink.
type Collector struct {
	source Source
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewCollector(source Source, sink Sink, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{source: source, sink: sink, logger: logger, now: time.Now}
}

// Collect writes one snapshot batch and returns the number of rows.
func (c *Collector) Collect(ctx context.Context) (int, error) {
	pools, err := c.source.Pools(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pools: %w", err)
	}
	takenAt := c.now().UTC().Truncate(time.Second)

	var rows []model.CustodySnapshot
	for _, pool := range pools {
		custodies, err := c.source.Custodies(ctx, pool.Key)
		if err != nil {
			return 0, fmt.Errorf("list custodies of %s: %w", pool.Name, err)
		}
		built, err := Build(pool, custodies, takenAt)
		if err != nil {
			return 0, err
		}
		rows = append(rows, built...)
	}
	if err := c.sink.PutSnapshots(ctx, rows); err != nil {
		return 0, fmt.Errorf("store snapshots: %w", err)
	}
	c.logger.Info("snapshot written", zap.Int("pools", len(pools)), zap.Int("rows", len(rows)), zap.Time("taken_at", takenAt))
	return len(rows), nil
}
