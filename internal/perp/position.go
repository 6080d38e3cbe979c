package perp

import (
	"fmt"

	"perpetuals/internal/model"
)

// PnL returns the unrealized profit of a position of size sizeUSD entered
// at entry and marked at current. Division truncates toward zero.
func PnL(side model.Side, entry, current, sizeUSD uint64) (int64, error) {
	if entry == 0 || current == 0 {
		return 0, ErrInvalidOraclePrice
	}
	switch side {
	case model.Long:
		return signedMulDiv(current, entry, sizeUSD, entry)
	case model.Short:
		return signedMulDiv(entry, current, sizeUSD, entry)
	default:
		return 0, fmt.Errorf("side %s: %w", side, ErrInvalidAmount)
	}
}

// LiquidationPrice is the mark at which a position has lost the threshold
// share of its collateral.
func LiquidationPrice(side model.Side, entry, leverage uint64) (uint64, error) {
	if leverage == 0 {
		return 0, ErrInvalidLeverage
	}
	denom, err := CheckedMul(BPSPower, leverage)
	if err != nil {
		return 0, err
	}
	delta, err := MulDiv(entry, LiquidationThresholdBPS, denom)
	if err != nil {
		return 0, err
	}
	if side == model.Short {
		return CheckedAdd(entry, delta)
	}
	return SaturatingSub(entry, delta), nil
}

// Liquidatable reports whether price has crossed the liquidation price.
func Liquidatable(side model.Side, price, liquidationPrice uint64) bool {
	if side == model.Short {
		return price >= liquidationPrice
	}
	return price <= liquidationPrice
}

// CheckSlippage rejects a long filled above acceptable or a short filled
// below it.
func CheckSlippage(side model.Side, price, acceptable uint64) error {
	switch {
	case side == model.Long && price > acceptable:
		return fmt.Errorf("long at %d above %d: %w", price, acceptable, ErrPriceSlippageExceeded)
	case side == model.Short && price < acceptable:
		return fmt.Errorf("short at %d below %d: %w", price, acceptable, ErrPriceSlippageExceeded)
	}
	return nil
}

// OpenQuote is the sizing of a new position.
type OpenQuote struct {
	SizeUSD uint64
	Fee     uint64
	// Debit is collateral plus fee, taken from the owner.
	Debit uint64
}

// QuoteOpen validates leverage and collateral and sizes a new position.
func QuoteOpen(collateral, leverage, openFeeBps uint64) (OpenQuote, error) {
	if leverage == 0 || leverage > MaxLeverage {
		return OpenQuote{}, fmt.Errorf("leverage %d: %w", leverage, ErrInvalidLeverage)
	}
	if collateral < MinCollateral {
		return OpenQuote{}, fmt.Errorf("collateral %d below %d: %w", collateral, MinCollateral, ErrInvalidCollateralAmount)
	}
	size, err := CheckedMul(collateral, leverage)
	if err != nil {
		return OpenQuote{}, err
	}
	fee, err := Fee(size, openFeeBps)
	if err != nil {
		return OpenQuote{}, err
	}
	debit, err := CheckedAdd(collateral, fee)
	if err != nil {
		return OpenQuote{}, err
	}
	return OpenQuote{SizeUSD: size, Fee: fee, Debit: debit}, nil
}

// SettleClose returns what the owner receives on close: collateral plus
// profit or minus loss, less the close fee, capped at the custody balance.
func SettleClose(collateral uint64, pnl int64, fee, balance uint64) (uint64, error) {
	payout := collateral
	if pnl >= 0 {
		var err error
		if payout, err = CheckedAdd(payout, uint64(pnl)); err != nil {
			return 0, err
		}
	} else {
		payout = SaturatingSub(payout, negMagnitude(pnl))
	}
	payout = SaturatingSub(payout, fee)
	if payout > balance {
		payout = balance
	}
	return payout, nil
}

// SettleLiquidation splits what is left of a liquidated position's
// collateral between its owner and the liquidator.
func SettleLiquidation(collateral uint64, pnl int64, sizeUSD, liquidationFeeBps uint64) (owner, liquidator uint64, err error) {
	remaining := collateral
	if pnl < 0 {
		remaining = SaturatingSub(remaining, negMagnitude(pnl))
	}
	fee, err := Fee(sizeUSD, liquidationFeeBps)
	if err != nil {
		return 0, 0, err
	}
	if fee > remaining {
		fee = remaining
	}
	return remaining - fee, fee, nil
}

func negMagnitude(v int64) uint64 {
	return uint64(-(v + 1)) + 1
}
