package perp

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
)

func (e *Engine) Perpetuals(ctx context.Context) (model.Perpetuals, error) {
	var perps model.Perpetuals
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		perps, err = e.loadPerpetuals(ctx, tx)
		return err
	})
	return perps, err
}

func (e *Engine) Pool(ctx context.Context, key common.Hash) (model.Pool, error) {
	var pool model.Pool
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		pool, err = e.loadPool(ctx, tx, key)
		return err
	})
	return pool, err
}

// Pools lists pools in registration order.
func (e *Engine) Pools(ctx context.Context) ([]model.Pool, error) {
	var pools []model.Pool
	err := e.store.View(ctx, func(tx store.Tx) error {
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		for _, key := range perps.Pools {
			pool, err := e.loadPool(ctx, tx, key)
			if err != nil {
				return err
			}
			pools = append(pools, pool)
		}
		return nil
	})
	return pools, err
}

func (e *Engine) Custody(ctx context.Context, pool common.Hash, mint common.Address) (model.Custody, error) {
	var custody model.Custody
	err := e.store.View(ctx, func(tx store.Tx) error {
		p, err := e.loadPool(ctx, tx, pool)
		if err != nil {
			return err
		}
		custody, err = e.loadCustody(ctx, tx, p, mint)
		return err
	})
	return custody, err
}

// Custodies returns a pool's custodies in the order they were added.
func (e *Engine) Custodies(ctx context.Context, pool common.Hash) ([]model.Custody, error) {
	var custodies []model.Custody
	err := e.store.View(ctx, func(tx store.Tx) error {
		p, err := e.loadPool(ctx, tx, pool)
		if err != nil {
			return err
		}
		custodies, err = e.poolCustodies(ctx, tx, p)
		return err
	})
	return custodies, err
}

func (e *Engine) Position(ctx context.Context, key common.Hash) (model.Position, error) {
	var pos model.Position
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		pos, err = e.loadPosition(ctx, tx, key)
		return err
	})
	return pos, err
}

// PositionKeys lists every open position key in ascending order.
func (e *Engine) PositionKeys(ctx context.Context) ([]common.Hash, error) {
	var keys []common.Hash
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		keys, err = tx.Keys(ctx, store.KindPosition)
		return err
	})
	return keys, err
}

// Positions loads every open position.
func (e *Engine) Positions(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := e.store.View(ctx, func(tx store.Tx) error {
		keys, err := tx.Keys(ctx, store.KindPosition)
		if err != nil {
			return err
		}
		for _, key := range keys {
			pos, err := e.loadPosition(ctx, tx, key)
			if err != nil {
				return err
			}
			positions = append(positions, pos)
		}
		return nil
	})
	return positions, err
}

// PoolValue returns the pool's value at stored custody prices.
func (e *Engine) PoolValue(ctx context.Context, pool common.Hash) (uint64, error) {
	custodies, err := e.Custodies(ctx, pool)
	if err != nil {
		return 0, err
	}
	return PoolValue(custodies)
}

// PositionLiquidationPrice returns the liquidation price of an open
// position.
func (e *Engine) PositionLiquidationPrice(ctx context.Context, key common.Hash) (uint64, error) {
	pos, err := e.Position(ctx, key)
	if err != nil {
		return 0, err
	}
	return LiquidationPrice(pos.Side, pos.EntryPrice, pos.Leverage)
}

// ClaimSupply returns the outstanding claim tokens of a pool.
func (e *Engine) ClaimSupply(ctx context.Context, pool common.Hash) (uint64, error) {
	var supply uint64
	err := e.store.View(ctx, func(tx store.Tx) error {
		p, err := e.loadPool(ctx, tx, pool)
		if err != nil {
			return err
		}
		supply, err = e.tokens.Supply(ctx, tx, p.ClaimMint)
		return err
	})
	return supply, err
}
