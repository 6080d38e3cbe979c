package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perpetuals/internal/feed"
	"perpetuals/internal/model"
	"perpetuals/internal/perp"
)

// RunConfig holds runtime settings for the keeper.
type RunConfig struct {
	Liquidator common.Address
	BatchSize  int
	// Interval between sweeps; zero runs a single sweep.
	Interval time.Duration
	// OnSweep, when set, receives each completed sweep summary.
	OnSweep func(Summary)
}

// Engine is the part of the perpetuals engine the keeper drives.
type Engine interface {
	PositionKeys(ctx context.Context) ([]common.Hash, error)
	Position(ctx context.Context, key common.Hash) (model.Position, error)
	LiquidatePosition(ctx context.Context, p perp.LiquidateParams) (perp.LiquidationResult, error)
}

// Summary counts the outcomes of one sweep.
type Summary struct {
	Round      uint64
	Checked    int
	Liquidated int
	Skipped    int
	Failed     int
}

// Runner sweeps open positions and liquidates the ones past their
// liquidation price. Each position is evaluated in its own transaction
// against a freshly fetched observation.
type Runner struct {
	cfg    RunConfig
	engine Engine
	feeds  map[common.Hash]feed.Source
	state  StateStore
	logger *zap.Logger
}

// NewRunner builds a Runner. feeds maps custody keys to observation
// sources; custodies without a source are evaluated with no observation.
func NewRunner(cfg RunConfig, engine Engine, feeds map[common.Hash]feed.Source, state StateStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if feeds == nil {
		feeds = map[common.Hash]feed.Source{}
	}
	return &Runner{cfg: cfg, engine: engine, feeds: feeds, state: state, logger: logger}
}

// Run sweeps once, or repeatedly when an interval is configured, until ctx
// is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		summary, err := r.Sweep(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("sweep complete",
			zap.Uint64("round", summary.Round),
			zap.Int("checked", summary.Checked),
			zap.Int("liquidated", summary.Liquidated),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
		if r.cfg.OnSweep != nil {
			r.cfg.OnSweep(summary)
		}
		if r.cfg.Interval <= 0 {
			return nil
		}

		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Sweep evaluates every open position once, resuming an interrupted round
// from its checkpoint.
func (r *Runner) Sweep(ctx context.Context) (Summary, error) {
	if r.engine == nil {
		return Summary{}, fmt.Errorf("engine is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return Summary{}, fmt.Errorf("batch size must be greater than zero")
	}

	progress := Progress{Round: 1}
	if r.state != nil {
		cp, ok, err := r.state.Load(ctx)
		if err != nil {
			return Summary{}, err
		}
		switch {
		case ok && cp.Complete:
			progress = Progress{Round: cp.Round + 1}
		case ok:
			progress = cp
			r.logger.Info("resume from checkpoint", zap.Uint64("round", cp.Round), zap.String("last_key", cp.LastKey))
		}
	}

	keys, err := r.engine.PositionKeys(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list positions: %w", err)
	}
	keys = resumeAfter(keys, progress.LastKey)

	summary := Summary{Round: progress.Round}
	batches, err := SplitBatches(len(keys), r.cfg.BatchSize)
	if err != nil {
		return Summary{}, err
	}
	for _, batch := range batches {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		for _, key := range keys[batch.From:batch.To] {
			summary.Checked++
			switch outcome := r.evaluate(ctx, key); outcome {
			case outcomeLiquidated:
				summary.Liquidated++
			case outcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
		}

		progress.LastKey = keys[batch.To-1].Hex()
		if r.state != nil {
			if err := r.state.Save(ctx, progress); err != nil {
				return summary, err
			}
		}
		r.logger.Debug("batch complete", zap.Int("from", batch.From), zap.Int("to", batch.To))
	}

	progress.Complete = true
	if r.state != nil {
		if err := r.state.Save(ctx, progress); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

type outcome int

const (
	outcomeLiquidated outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (r *Runner) evaluate(ctx context.Context, key common.Hash) outcome {
	pos, err := r.engine.Position(ctx, key)
	if errors.Is(err, perp.ErrPositionNotFound) {
		return outcomeSkipped
	}
	if err != nil {
		r.logger.Warn("load position failed", zap.String("position", key.Hex()), zap.Error(err))
		return outcomeFailed
	}

	var observation []byte
	if src, ok := r.feeds[pos.Custody]; ok {
		observation, err = src.Fetch(ctx)
		if err != nil {
			r.logger.Warn("fetch observation failed", zap.String("position", key.Hex()), zap.Error(err))
			return outcomeFailed
		}
	}

	res, err := r.engine.LiquidatePosition(ctx, perp.LiquidateParams{
		Liquidator:  r.cfg.Liquidator,
		Position:    key,
		Observation: observation,
	})
	switch {
	case errors.Is(err, perp.ErrPositionNotLiquidatable), errors.Is(err, perp.ErrPositionNotFound):
		return outcomeSkipped
	case err != nil:
		r.logger.Warn("liquidation failed", zap.String("position", key.Hex()), zap.Error(err))
		return outcomeFailed
	}
	r.logger.Info("position liquidated",
		zap.String("position", key.Hex()),
		zap.String("owner", res.Position.Owner.Hex()),
		zap.Uint64("price", res.Price),
		zap.Uint64("liquidation_price", res.LiquidationPrice),
		zap.Uint64("liquidator_fee", res.LiquidatorFee),
	)
	return outcomeLiquidated
}

// resumeAfter drops keys up to and including last. Keys are sorted.
func resumeAfter(keys []common.Hash, last string) []common.Hash {
	if last == "" {
		return keys
	}
	lastKey := common.HexToHash(last)
	for i, key := range keys {
		if key.Cmp(lastKey) > 0 {
			return keys[i:]
		}
	}
	return nil
}
