package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Record keys are Keccak256 digests over a seed label and the identities the
// record belongs to, so every party derives the same key independently.

// DeriveKey hashes the given seeds into a record key.
func DeriveKey(seeds ...[]byte) common.Hash {
	return crypto.Keccak256Hash(seeds...)
}

// DeriveAddress hashes the given seeds into an address-sized identity.
func DeriveAddress(seeds ...[]byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256(seeds...)[12:])
}

// PerpetualsKey is the key of the venue-wide record.
func PerpetualsKey() common.Hash {
	return DeriveKey([]byte("perpetuals"))
}

// PoolKey derives a pool key from its name.
func PoolKey(name string) common.Hash {
	return DeriveKey([]byte("pool"), []byte(name))
}

// PoolSigner is the signing identity that owns a pool's token accounts and
// claim mint.
func PoolSigner(pool common.Hash) common.Address {
	return DeriveAddress([]byte("pool_signer"), pool.Bytes())
}

// ClaimMint derives the claim-token mint address of a pool.
func ClaimMint(pool common.Hash) common.Address {
	return DeriveAddress([]byte("lp_token_mint"), pool.Bytes())
}

// CustodyKey derives the custody key for a mint within a pool.
func CustodyKey(pool common.Hash, mint common.Address) common.Hash {
	return DeriveKey([]byte("custody"), pool.Bytes(), mint.Bytes())
}

// PositionKey derives the position key for an owner's trade on a custody.
func PositionKey(owner common.Address, pool common.Hash, custody common.Hash) common.Hash {
	return DeriveKey([]byte("position"), owner.Bytes(), pool.Bytes(), custody.Bytes())
}

// TokenAccountKey derives the account holding owner's balance of mint.
func TokenAccountKey(mint common.Address, owner common.Address) common.Hash {
	return DeriveKey([]byte("token_account"), mint.Bytes(), owner.Bytes())
}

// MintAddress derives a mint address from its symbol.
func MintAddress(symbol string) common.Address {
	return DeriveAddress([]byte("mint"), []byte(symbol))
}
