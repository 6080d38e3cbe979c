package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// OracleType selects how a custody's price is resolved.
type OracleType uint8

const (
	OracleNone OracleType = iota
	OraclePyth
	OracleCustom
)

func (t OracleType) String() string {
	switch t {
	case OracleNone:
		return "none"
	case OraclePyth:
		return "pyth"
	case OracleCustom:
		return "custom"
	default:
		return fmt.Sprintf("oracle(%d)", uint8(t))
	}
}

// ParseOracleType converts a textual oracle type into OracleType.
func ParseOracleType(input string) (OracleType, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "none", "fixed":
		return OracleNone, nil
	case "pyth":
		return OraclePyth, nil
	case "custom":
		return OracleCustom, nil
	default:
		return OracleNone, fmt.Errorf("unknown oracle type: %s", input)
	}
}

// Custody is the per-asset sub-ledger of a pool.
type Custody struct {
	Key          common.Hash      `json:"key"`
	Pool         common.Hash      `json:"pool"`
	Mint         common.Address   `json:"mint"`
	TokenAccount common.Hash      `json:"token_account"`
	Decimals     uint8            `json:"decimals"`
	IsStable     bool             `json:"is_stable"`
	OracleType   OracleType       `json:"oracle_type"`
	FeedID       string           `json:"feed_id,omitempty"`
	Pricing      PricingParams    `json:"pricing"`
	Fees         Fees             `json:"fees"`
	BorrowRate   BorrowRateParams `json:"borrow_rate"`
	Assets       Assets           `json:"assets"`
	VolumeStats  VolumeStats      `json:"volume_stats"`
	TradeStats   TradeStats       `json:"trade_stats"`
}

// PricingParams holds the custody's pricing configuration and live prices.
// Prices carry six implied decimals.
type PricingParams struct {
	UseEMA                bool   `json:"use_ema"`
	UseUnrealizedPnLInAum bool   `json:"use_unrealized_pnl_in_aum"`
	TradeSpreadLong       uint64 `json:"trade_spread_long"`
	TradeSpreadShort      uint64 `json:"trade_spread_short"`
	SwapSpread            uint64 `json:"swap_spread"`
	MaxLeverage           uint64 `json:"max_leverage"`
	MaxGlobalLongSizeUSD  uint64 `json:"max_global_long_size_usd"`
	MaxGlobalShortSizeUSD uint64 `json:"max_global_short_size_usd"`
	CurrentPrice          uint64 `json:"current_price"`
	EMAPrice              uint64 `json:"ema_price"`
	LastUpdateTime        int64  `json:"last_update_time"`
}

// Fees are basis-point rates out of 10,000.
type Fees struct {
	SwapIn          uint64 `json:"swap_in"`
	SwapOut         uint64 `json:"swap_out"`
	StableSwapIn    uint64 `json:"stable_swap_in"`
	StableSwapOut   uint64 `json:"stable_swap_out"`
	AddLiquidity    uint64 `json:"add_liquidity"`
	RemoveLiquidity uint64 `json:"remove_liquidity"`
	OpenPosition    uint64 `json:"open_position"`
	ClosePosition   uint64 `json:"close_position"`
	Liquidation     uint64 `json:"liquidation"`
	ProtocolShare   uint64 `json:"protocol_share"`
}

// Rates lists every configured rate, used for bulk validation.
func (f Fees) Rates() []uint64 {
	return []uint64{
		f.SwapIn, f.SwapOut, f.StableSwapIn, f.StableSwapOut,
		f.AddLiquidity, f.RemoveLiquidity, f.OpenPosition, f.ClosePosition,
		f.Liquidation, f.ProtocolShare,
	}
}

// BorrowRateParams is stored for funding accrual computed elsewhere.
type BorrowRateParams struct {
	BaseRate           uint64 `json:"base_rate"`
	Slope1             uint64 `json:"slope1"`
	Slope2             uint64 `json:"slope2"`
	OptimalUtilization uint64 `json:"optimal_utilization"`
}

// Assets are the custody's token counters.
type Assets struct {
	Collateral   uint64 `json:"collateral"`
	ProtocolFees uint64 `json:"protocol_fees"`
	Owned        uint64 `json:"owned"`
	Locked       uint64 `json:"locked"`
}

// VolumeStats are cumulative USD volumes per operation family.
type VolumeStats struct {
	SwapUSD            uint64 `json:"swap_usd"`
	AddLiquidityUSD    uint64 `json:"add_liquidity_usd"`
	RemoveLiquidityUSD uint64 `json:"remove_liquidity_usd"`
	OpenPositionUSD    uint64 `json:"open_position_usd"`
	ClosePositionUSD   uint64 `json:"close_position_usd"`
	LiquidationUSD     uint64 `json:"liquidation_usd"`
}

// TradeStats tracks open interest per side and cumulative funding.
type TradeStats struct {
	OILongUSD         uint64 `json:"oi_long_usd"`
	OIShortUSD        uint64 `json:"oi_short_usd"`
	TotalLongFunding  int64  `json:"total_long_funding"`
	TotalShortFunding int64  `json:"total_short_funding"`
}
