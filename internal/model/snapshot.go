package model

import "time"

// CustodySnapshot is a point-in-time view of one custody for reporting.
// Amount fields are decimal strings.
type CustodySnapshot struct {
	PoolKey            string    `json:"pool_key"`
	PoolName           string    `json:"pool_name"`
	CustodyKey         string    `json:"custody_key"`
	Mint               string    `json:"mint"`
	TakenAt            time.Time `json:"taken_at"`
	OracleType         string    `json:"oracle_type"`
	Price              string    `json:"price"`
	EMAPrice           string    `json:"ema_price"`
	PriceUpdatedAt     int64     `json:"price_updated_at"`
	Owned              string    `json:"owned"`
	Locked             string    `json:"locked"`
	Collateral         string    `json:"collateral"`
	ProtocolFees       string    `json:"protocol_fees"`
	OwnedUSD           string    `json:"owned_usd"`
	OILongUSD          string    `json:"oi_long_usd"`
	OIShortUSD         string    `json:"oi_short_usd"`
	AddLiquidityUSD    string    `json:"add_liquidity_usd"`
	RemoveLiquidityUSD string    `json:"remove_liquidity_usd"`
	OpenPositionUSD    string    `json:"open_position_usd"`
	ClosePositionUSD   string    `json:"close_position_usd"`
	LiquidationUSD     string    `json:"liquidation_usd"`
	PoolValueUSD       string    `json:"pool_value_usd"`
}
