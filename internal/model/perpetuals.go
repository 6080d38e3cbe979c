package model

import "github.com/ethereum/go-ethereum/common"

const (
	// MaxAdmins bounds the admin set stored on the perpetuals record.
	MaxAdmins = 5
	// MaxPools bounds the number of pools a venue can list.
	MaxPools = 10
)

// Perpetuals is the venue-wide record created by initialize.
type Perpetuals struct {
	AdminAuthority common.Address   `json:"admin_authority"`
	MinSignatures  uint8            `json:"min_signatures"`
	Admins         []common.Address `json:"admins"`
	Pools          []common.Hash    `json:"pools"`
	Permissions    Permissions      `json:"permissions"`
}

// IsAdmin reports whether addr may run admin operations.
func (p Perpetuals) IsAdmin(addr common.Address) bool {
	if addr == p.AdminAuthority {
		return true
	}
	for _, admin := range p.Admins {
		if admin == addr {
			return true
		}
	}
	return false
}

// Permissions holds the feature switches consulted before mutating operations.
type Permissions struct {
	AllowSwap                 bool `json:"allow_swap"`
	AllowAddLiquidity         bool `json:"allow_add_liquidity"`
	AllowRemoveLiquidity      bool `json:"allow_remove_liquidity"`
	AllowOpenPosition         bool `json:"allow_open_position"`
	AllowClosePosition        bool `json:"allow_close_position"`
	AllowPnLWithdrawal        bool `json:"allow_pnl_withdrawal"`
	AllowCollateralWithdrawal bool `json:"allow_collateral_withdrawal"`
	AllowSizeChange           bool `json:"allow_size_change"`
}

// AllowAll returns a permission set with every switch enabled.
func AllowAll() Permissions {
	return Permissions{
		AllowSwap:                 true,
		AllowAddLiquidity:         true,
		AllowRemoveLiquidity:      true,
		AllowOpenPosition:         true,
		AllowClosePosition:        true,
		AllowPnLWithdrawal:        true,
		AllowCollateralWithdrawal: true,
		AllowSizeChange:           true,
	}
}
