package perp

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perpetuals/internal/store"
)

type AddLiquidityParams struct {
	Owner       common.Address
	Pool        common.Hash
	Mint        common.Address
	AmountIn    uint64
	MinClaimOut uint64
}

type RemoveLiquidityParams struct {
	Owner        common.Address
	Pool         common.Hash
	Mint         common.Address
	ClaimIn      uint64
	MinAmountOut uint64
}

// LiquidityResult describes the token movements of a liquidity operation.
type LiquidityResult struct {
	// ClaimAmount is minted on deposit and burned on withdrawal.
	ClaimAmount uint64
	// TokenAmount is deposited into or paid out of the custody.
	TokenAmount uint64
	Fee         uint64
	ValueUSD    uint64
}

// AddLiquidity deposits AmountIn of a custody's mint and issues claim
// tokens against the current pool value. The first deposit mints 1:1.
func (e *Engine) AddLiquidity(ctx context.Context, p AddLiquidityParams) (LiquidityResult, error) {
	var res LiquidityResult
	fields := []zap.Field{zap.String("owner", p.Owner.Hex()), zap.String("mint", p.Mint.Hex()), zap.Uint64("amount_in", p.AmountIn)}
	err := e.run(ctx, "add_liquidity", fields, func(tx store.Tx, t *touched) error {
		if p.AmountIn == 0 {
			return ErrInvalidAmount
		}
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := Allow(perps.Permissions, ActionAddLiquidity); err != nil {
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
		custodies, err := e.poolCustodies(ctx, tx, pool)
		if err != nil {
			return err
		}
		poolValue, err := PoolValue(custodies)
		if err != nil {
			return err
		}
		supply, err := e.tokens.Supply(ctx, tx, pool.ClaimMint)
		if err != nil {
			return fmt.Errorf("claim supply: %w", err)
		}

		claimOut, err := QuoteMint(p.AmountIn, poolValue, supply)
		if err != nil {
			return err
		}
		if claimOut == 0 {
			return fmt.Errorf("deposit of %d mints nothing: %w", p.AmountIn, ErrInvalidAmount)
		}
		valueUSD, err := AssetValue(p.AmountIn, custody.Pricing.CurrentPrice)
		if err != nil {
			return err
		}
		if claimOut < p.MinClaimOut {
			return fmt.Errorf("claim %d below minimum %d: %w", claimOut, p.MinClaimOut, ErrSlippageExceeded)
		}
		net, fee, err := Net(p.AmountIn, custody.Fees.AddLiquidity)
		if err != nil {
			return err
		}

		if err := e.tokens.Transfer(ctx, tx, custody.Mint, p.Owner, pool.Signer, p.Owner, p.AmountIn); err != nil {
			return walletErr("deposit", err, ErrInvalidAmount)
		}
		if err := e.tokens.MintTo(ctx, tx, pool.ClaimMint, p.Owner, pool.Signer, claimOut); err != nil {
			return tokenErr("mint claim", err)
		}

		if err := addOwned(&custody, net); err != nil {
			return err
		}
		if err := accrueProtocolFee(&custody, fee); err != nil {
			return err
		}
		if err := addVolume(&custody.VolumeStats.AddLiquidityUSD, valueUSD); err != nil {
			return err
		}
		if err := e.refreshAUM(ctx, tx, &pool, custody); err != nil {
			return err
		}
		t.add(pool, custody)
		res = LiquidityResult{ClaimAmount: claimOut, TokenAmount: p.AmountIn, Fee: fee, ValueUSD: valueUSD}
		return nil
	})
	return res, err
}

// RemoveLiquidity burns ClaimIn claim tokens and pays out the matching
// share of the custody balance less the withdrawal fee.
func (e *Engine) RemoveLiquidity(ctx context.Context, p RemoveLiquidityParams) (LiquidityResult, error) {
	var res LiquidityResult
	fields := []zap.Field{zap.String("owner", p.Owner.Hex()), zap.String("mint", p.Mint.Hex()), zap.Uint64("claim_in", p.ClaimIn)}
	err := e.run(ctx, "remove_liquidity", fields, func(tx store.Tx, t *touched) error {
		if p.ClaimIn == 0 {
			return ErrInvalidAmount
		}
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := Allow(perps.Permissions, ActionRemoveLiquidity); err != nil {
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
		supply, err := e.tokens.Supply(ctx, tx, pool.ClaimMint)
		if err != nil {
			return fmt.Errorf("claim supply: %w", err)
		}
		balance, err := e.tokens.Balance(ctx, tx, custody.Mint, pool.Signer)
		if err != nil {
			return fmt.Errorf("custody balance: %w", err)
		}

		gross, err := QuoteRedeem(p.ClaimIn, balance, supply)
		if err != nil {
			return err
		}
		amountOut, fee, err := Net(gross, custody.Fees.RemoveLiquidity)
		if err != nil {
			return err
		}
		if amountOut < p.MinAmountOut {
			return fmt.Errorf("payout %d below minimum %d: %w", amountOut, p.MinAmountOut, ErrSlippageExceeded)
		}
		if balance < gross {
			return fmt.Errorf("custody holds %d, owes %d: %w", balance, gross, ErrInsufficientLiquidity)
		}

		if err := e.tokens.Burn(ctx, tx, pool.ClaimMint, p.Owner, p.Owner, p.ClaimIn); err != nil {
			return walletErr("burn claim", err, ErrInvalidAmount)
		}
		if err := e.tokens.Transfer(ctx, tx, custody.Mint, pool.Signer, p.Owner, pool.Signer, amountOut); err != nil {
			return tokenErr("withdraw", err)
		}

		if err := removeOwned(&custody, gross); err != nil {
			return err
		}
		if err := accrueProtocolFee(&custody, fee); err != nil {
			return err
		}
		valueUSD, err := AssetValue(gross, custody.Pricing.CurrentPrice)
		if err != nil {
			return err
		}
		if err := addVolume(&custody.VolumeStats.RemoveLiquidityUSD, valueUSD); err != nil {
			return err
		}
		if err := e.refreshAUM(ctx, tx, &pool, custody); err != nil {
			return err
		}
		t.add(pool, custody)
		res = LiquidityResult{ClaimAmount: p.ClaimIn, TokenAmount: amountOut, Fee: fee, ValueUSD: valueUSD}
		return nil
	})
	return res, err
}
