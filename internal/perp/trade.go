package perp

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
)

type OpenPositionParams struct {
	Owner            common.Address
	Pool             common.Hash
	Mint             common.Address
	Side             model.Side
	CollateralAmount uint64
	Leverage         uint64
	AcceptablePrice  uint64
	// Observation is the raw oracle payload for Pyth and custom custodies.
	Observation []byte
}

type MarkParams struct {
	Position    common.Hash
	Observation []byte
}

type CloseParams struct {
	Caller      common.Address
	Position    common.Hash
	Observation []byte
}

type LiquidateParams struct {
	Liquidator  common.Address
	Position    common.Hash
	Observation []byte
}

// CloseResult describes a settled close.
type CloseResult struct {
	Position model.Position
	Price    uint64
	PnL      int64
	Fee      uint64
	Payout   uint64
}

// LiquidationResult describes a settled liquidation.
type LiquidationResult struct {
	Position         model.Position
	Price            uint64
	LiquidationPrice uint64
	PnL              int64
	OwnerAmount      uint64
	LiquidatorFee    uint64
}

// OpenPosition debits collateral plus the open fee from the owner and
// records a new position at the oracle price.
func (e *Engine) OpenPosition(ctx context.Context, p OpenPositionParams) (model.Position, error) {
	var pos model.Position
	fields := []zap.Field{
		zap.String("owner", p.Owner.Hex()),
		zap.String("mint", p.Mint.Hex()),
		zap.Stringer("side", p.Side),
		zap.Uint64("collateral", p.CollateralAmount),
		zap.Uint64("leverage", p.Leverage),
	}
	err := e.run(ctx, "open_position", fields, func(tx store.Tx, t *touched) error {
		if p.Side != model.Long && p.Side != model.Short {
			return fmt.Errorf("side %s: %w", p.Side, ErrInvalidAmount)
		}
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := Allow(perps.Permissions, ActionOpenPosition); err != nil {
			return err
		}
		pool, err := e.loadPool(ctx, tx, p.Pool)
		if err != nil {
			return err
		}
		custody, err := e.loadCustody(ctx, tx, pool, p.Mint)
		if err != nil {
			return err
		}
		quote, err := QuoteOpen(p.CollateralAmount, p.Leverage, custody.Fees.OpenPosition)
		if err != nil {
			return err
		}
		if custody.Pricing.MaxLeverage > 0 && p.Leverage*BPSPower > custody.Pricing.MaxLeverage {
			return fmt.Errorf("leverage %d above custody limit: %w", p.Leverage, ErrInvalidLeverage)
		}

		key := model.PositionKey(p.Owner, pool.Key, custody.Key)
		var existing model.Position
		ok, err := tx.Get(ctx, store.KindPosition, key, &existing)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("position %s: %w", key.Hex(), ErrPositionExists)
		}

		price, err := GetPrice(custody, p.Observation, e.clock.Now())
		if err != nil {
			return err
		}
		if err := CheckSlippage(p.Side, price, p.AcceptablePrice); err != nil {
			return err
		}

		if err := addOpenInterest(&custody, p.Side, quote.SizeUSD); err != nil {
			return err
		}
		limit := custody.Pricing.MaxGlobalLongSizeUSD
		if p.Side == model.Short {
			limit = custody.Pricing.MaxGlobalShortSizeUSD
		}
		if limit > 0 && *openInterest(&custody, p.Side) > limit {
			return fmt.Errorf("%s open interest above %d: %w", p.Side, limit, ErrMaxGlobalSizeExceeded)
		}

		if err := e.tokens.Transfer(ctx, tx, custody.Mint, p.Owner, pool.Signer, p.Owner, quote.Debit); err != nil {
			return walletErr("debit collateral", err, ErrInvalidCollateralAmount)
		}
		if err := addCollateral(&custody, p.CollateralAmount); err != nil {
			return err
		}
		if err := accrueProtocolFee(&custody, quote.Fee); err != nil {
			return err
		}
		if err := addVolume(&custody.VolumeStats.OpenPositionUSD, quote.SizeUSD); err != nil {
			return err
		}

		pos = model.Position{
			Key:              key,
			Owner:            p.Owner,
			Pool:             pool.Key,
			Custody:          custody.Key,
			Side:             p.Side,
			CollateralAmount: p.CollateralAmount,
			Leverage:         p.Leverage,
			SizeUSD:          quote.SizeUSD,
			EntryPrice:       price,
			EntryTimestamp:   e.clock.Now(),
		}
		if err := tx.Put(ctx, store.KindPosition, key, pos); err != nil {
			return err
		}
		if err := tx.Put(ctx, store.KindCustody, custody.Key, custody); err != nil {
			return err
		}
		t.add(pool, custody)
		return nil
	})
	return pos, err
}

// MarkToMarket stores the position's unrealized PnL at the oracle price.
func (e *Engine) MarkToMarket(ctx context.Context, p MarkParams) (model.Position, error) {
	var pos model.Position
	err := e.run(ctx, "mark_to_market", []zap.Field{zap.String("position", p.Position.Hex())}, func(tx store.Tx, _ *touched) error {
		var err error
		if pos, err = e.loadPosition(ctx, tx, p.Position); err != nil {
			return err
		}
		pool, err := e.loadPool(ctx, tx, pos.Pool)
		if err != nil {
			return err
		}
		custody, err := e.loadCustodyByKey(ctx, tx, pool, pos.Custody)
		if err != nil {
			return err
		}
		price, err := GetPrice(custody, p.Observation, e.clock.Now())
		if err != nil {
			return err
		}
		if pos.UnrealizedPnL, err = PnL(pos.Side, pos.EntryPrice, price, pos.SizeUSD); err != nil {
			return err
		}
		return tx.Put(ctx, store.KindPosition, pos.Key, pos)
	})
	return pos, err
}

// ClosePosition settles a position in full and pays the owner.
func (e *Engine) ClosePosition(ctx context.Context, p CloseParams) (CloseResult, error) {
	var res CloseResult
	fields := []zap.Field{zap.String("position", p.Position.Hex()), zap.String("caller", p.Caller.Hex())}
	err := e.run(ctx, "close_position", fields, func(tx store.Tx, t *touched) error {
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := Allow(perps.Permissions, ActionClosePosition); err != nil {
			return err
		}
		pos, err := e.loadPosition(ctx, tx, p.Position)
		if err != nil {
			return err
		}
		if pos.Owner != p.Caller {
			return fmt.Errorf("caller %s does not own position: %w", p.Caller.Hex(), ErrUnauthorized)
		}
		pool, err := e.loadPool(ctx, tx, pos.Pool)
		if err != nil {
			return err
		}
		custody, err := e.loadCustodyByKey(ctx, tx, pool, pos.Custody)
		if err != nil {
			return err
		}
		price, err := GetPrice(custody, p.Observation, e.clock.Now())
		if err != nil {
			return err
		}
		pnl, err := PnL(pos.Side, pos.EntryPrice, price, pos.SizeUSD)
		if err != nil {
			return err
		}
		fee, err := Fee(pos.SizeUSD, custody.Fees.ClosePosition)
		if err != nil {
			return err
		}
		balance, err := e.tokens.Balance(ctx, tx, custody.Mint, pool.Signer)
		if err != nil {
			return fmt.Errorf("custody balance: %w", err)
		}
		payout, err := SettleClose(pos.CollateralAmount, pnl, fee, balance)
		if err != nil {
			return err
		}

		if err := e.tokens.Transfer(ctx, tx, custody.Mint, pool.Signer, pos.Owner, pool.Signer, payout); err != nil {
			return tokenErr("pay owner", err)
		}
		if err := releaseCollateral(&custody, pos.CollateralAmount); err != nil {
			return err
		}
		if err := accrueProtocolFee(&custody, fee); err != nil {
			return err
		}
		if err := removeOpenInterest(&custody, pos.Side, pos.SizeUSD); err != nil {
			return err
		}
		if err := addVolume(&custody.VolumeStats.ClosePositionUSD, pos.SizeUSD); err != nil {
			return err
		}
		if err := tx.Put(ctx, store.KindCustody, custody.Key, custody); err != nil {
			return err
		}
		if err := tx.Delete(ctx, store.KindPosition, pos.Key); err != nil {
			return err
		}
		t.add(pool, custody)
		pos.UnrealizedPnL = pnl
		res = CloseResult{Position: pos, Price: price, PnL: pnl, Fee: fee, Payout: payout}
		return nil
	})
	return res, err
}

// LiquidatePosition closes a position whose mark has crossed its
// liquidation price. The liquidator is paid from the remaining collateral.
func (e *Engine) LiquidatePosition(ctx context.Context, p LiquidateParams) (LiquidationResult, error) {
	var res LiquidationResult
	fields := []zap.Field{zap.String("position", p.Position.Hex()), zap.String("liquidator", p.Liquidator.Hex())}
	err := e.run(ctx, "liquidate_position", fields, func(tx store.Tx, t *touched) error {
		pos, err := e.loadPosition(ctx, tx, p.Position)
		if err != nil {
			return err
		}
		pool, err := e.loadPool(ctx, tx, pos.Pool)
		if err != nil {
			return err
		}
		custody, err := e.loadCustodyByKey(ctx, tx, pool, pos.Custody)
		if err != nil {
			return err
		}
		price, err := GetPrice(custody, p.Observation, e.clock.Now())
		if err != nil {
			return err
		}
		liqPrice, err := LiquidationPrice(pos.Side, pos.EntryPrice, pos.Leverage)
		if err != nil {
			return err
		}
		if !Liquidatable(pos.Side, price, liqPrice) {
			return fmt.Errorf("price %d, liquidation at %d: %w", price, liqPrice, ErrPositionNotLiquidatable)
		}
		pnl, err := PnL(pos.Side, pos.EntryPrice, price, pos.SizeUSD)
		if err != nil {
			return err
		}
		ownerAmount, liqFee, err := SettleLiquidation(pos.CollateralAmount, pnl, pos.SizeUSD, custody.Fees.Liquidation)
		if err != nil {
			return err
		}

		if err := e.tokens.Transfer(ctx, tx, custody.Mint, pool.Signer, p.Liquidator, pool.Signer, liqFee); err != nil {
			return tokenErr("pay liquidator", err)
		}
		if err := e.tokens.Transfer(ctx, tx, custody.Mint, pool.Signer, pos.Owner, pool.Signer, ownerAmount); err != nil {
			return tokenErr("pay owner", err)
		}
		if err := releaseCollateral(&custody, pos.CollateralAmount); err != nil {
			return err
		}
		if err := removeOpenInterest(&custody, pos.Side, pos.SizeUSD); err != nil {
			return err
		}
		if err := addVolume(&custody.VolumeStats.LiquidationUSD, pos.SizeUSD); err != nil {
			return err
		}
		if err := tx.Put(ctx, store.KindCustody, custody.Key, custody); err != nil {
			return err
		}
		if err := tx.Delete(ctx, store.KindPosition, pos.Key); err != nil {
			return err
		}
		t.add(pool, custody)
		pos.UnrealizedPnL = pnl
		res = LiquidationResult{
			Position:         pos,
			Price:            price,
			LiquidationPrice: liqPrice,
			PnL:              pnl,
			OwnerAmount:      ownerAmount,
			LiquidatorFee:    liqFee,
		}
		return nil
	})
	return res, err
}
