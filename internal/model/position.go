package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the direction of a position.
type Side uint8

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// ParseSide converts "long"/"short" into Side.
func ParseSide(input string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return Long, fmt.Errorf("unknown side: %s", input)
	}
}

// Position is one leveraged trade against a custody.
type Position struct {
	Key              common.Hash    `json:"key"`
	Owner            common.Address `json:"owner"`
	Pool             common.Hash    `json:"pool"`
	Custody          common.Hash    `json:"custody"`
	Side             Side           `json:"side"`
	CollateralAmount uint64         `json:"collateral_amount"`
	Leverage         uint64         `json:"leverage"`
	SizeUSD          uint64         `json:"size_usd"`
	EntryPrice       uint64         `json:"entry_price"`
	EntryTimestamp   int64          `json:"entry_timestamp"`
	UnrealizedPnL    int64          `json:"unrealized_pnl"`
}
