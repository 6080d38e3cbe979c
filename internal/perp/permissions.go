package perp

import (
	"fmt"

	"perpetuals/internal/model"
)

// Action is a mutating operation gated by a permission switch.
type Action int

const (
	ActionSwap Action = iota
	ActionAddLiquidity
	ActionRemoveLiquidity
	ActionOpenPosition
	ActionClosePosition
	ActionPnLWithdrawal
	ActionCollateralWithdrawal
	ActionSizeChange
)

var actionNames = map[Action]string{
	ActionSwap:                 "swap",
	ActionAddLiquidity:         "add_liquidity",
	ActionRemoveLiquidity:      "remove_liquidity",
	ActionOpenPosition:         "open_position",
	ActionClosePosition:        "close_position",
	ActionPnLWithdrawal:        "pnl_withdrawal",
	ActionCollateralWithdrawal: "collateral_withdrawal",
	ActionSizeChange:           "size_change",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Allow returns ErrActionNotAllowed unless the switch for action is on.
func Allow(p model.Permissions, action Action) error {
	var on bool
	switch action {
	case ActionSwap:
		on = p.AllowSwap
	case ActionAddLiquidity:
		on = p.AllowAddLiquidity
	case ActionRemoveLiquidity:
		on = p.AllowRemoveLiquidity
	case ActionOpenPosition:
		on = p.AllowOpenPosition
	case ActionClosePosition:
		on = p.AllowClosePosition
	case ActionPnLWithdrawal:
		on = p.AllowPnLWithdrawal
	case ActionCollateralWithdrawal:
		on = p.AllowCollateralWithdrawal
	case ActionSizeChange:
		on = p.AllowSizeChange
	}
	if !on {
		return fmt.Errorf("%s: %w", action, ErrActionNotAllowed)
	}
	return nil
}
