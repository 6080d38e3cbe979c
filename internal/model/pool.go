package model

import "github.com/ethereum/go-ethereum/common"

const (
	// MaxPoolNameLen is the longest accepted pool name in bytes.
	MaxPoolNameLen = 64
	// MaxCustodies bounds the custodies attached to one pool.
	MaxCustodies = 10
)

// Pool represents one liquidity venue and the custodies it owns.
type Pool struct {
	Key           common.Hash    `json:"key"`
	Name          string         `json:"name"`
	Custodies     []common.Hash  `json:"custodies"`
	AumUSD        uint64         `json:"aum_usd"`
	InceptionTime int64          `json:"inception_time"`
	ClaimMint     common.Address `json:"claim_mint"`
	Signer        common.Address `json:"signer"`
}

// HasCustody reports whether key is attached to the pool.
func (p Pool) HasCustody(key common.Hash) bool {
	for _, c := range p.Custodies {
		if c == key {
			return true
		}
	}
	return false
}
