package model

import "github.com/ethereum/go-ethereum/common"

// Mint describes a fungible asset.
type Mint struct {
	Address   common.Address `json:"address"`
	Symbol    string         `json:"symbol,omitempty"`
	Decimals  uint8          `json:"decimals"`
	Supply    uint64         `json:"supply"`
	Authority common.Address `json:"authority"`
}

// TokenAccount holds one owner's balance of one mint.
type TokenAccount struct {
	Key    common.Hash    `json:"key"`
	Mint   common.Address `json:"mint"`
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount"`
}
