// Package token keeps fungible-token mints and balances in the record store.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
)

var (
	ErrMintNotFound      = errors.New("mint not found")
	ErrMintExists        = errors.New("mint already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("authority does not own account")
	ErrOverflow          = errors.New("token amount overflow")
)

// Ledger moves balances inside the caller's store transaction, so token
// effects commit or roll back together with the rest of the operation.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) CreateMint(ctx context.Context, tx store.Tx, mint model.Mint) error {
	key := mintKey(mint.Address)
	var existing model.Mint
	ok, err := tx.Get(ctx, store.KindMint, key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("create mint %s: %w", mint.Address.Hex(), ErrMintExists)
	}
	mint.Supply = 0
	return tx.Put(ctx, store.KindMint, key, mint)
}

func (l *Ledger) Mint(ctx context.Context, tx store.Tx, address common.Address) (model.Mint, error) {
	var mint model.Mint
	err := store.MustGet(ctx, tx, store.KindMint, mintKey(address), &mint)
	if errors.Is(err, store.ErrNotFound) {
		return model.Mint{}, fmt.Errorf("mint %s: %w", address.Hex(), ErrMintNotFound)
	}
	if err != nil {
		return model.Mint{}, err
	}
	return mint, nil
}

// Account returns the owner's account for mint, creating an empty one
// in memory when it does not exist yet.
func (l *Ledger) Account(ctx context.Context, tx store.Tx, mint, owner common.Address) (model.TokenAccount, error) {
	key := model.TokenAccountKey(mint, owner)
	var acct model.TokenAccount
	ok, err := tx.Get(ctx, store.KindTokenAccount, key, &acct)
	if err != nil {
		return model.TokenAccount{}, err
	}
	if !ok {
		acct = model.TokenAccount{Key: key, Mint: mint, Owner: owner}
	}
	return acct, nil
}

// CreateAccount persists an empty account if none exists.
func (l *Ledger) CreateAccount(ctx context.Context, tx store.Tx, mint, owner common.Address) (model.TokenAccount, error) {
	if _, err := l.Mint(ctx, tx, mint); err != nil {
		return model.TokenAccount{}, err
	}
	acct, err := l.Account(ctx, tx, mint, owner)
	if err != nil {
		return model.TokenAccount{}, err
	}
	if err := tx.Put(ctx, store.KindTokenAccount, acct.Key, acct); err != nil {
		return model.TokenAccount{}, err
	}
	return acct, nil
}

func (l *Ledger) Balance(ctx context.Context, tx store.Tx, mint, owner common.Address) (uint64, error) {
	acct, err := l.Account(ctx, tx, mint, owner)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

func (l *Ledger) Supply(ctx context.Context, tx store.Tx, mint common.Address) (uint64, error) {
	m, err := l.Mint(ctx, tx, mint)
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

// Transfer moves amount of mint from one owner to another. authority must
// be the source owner.
func (l *Ledger) Transfer(ctx context.Context, tx store.Tx, mint, from, to, authority common.Address, amount uint64) error {
	if authority != from {
		return fmt.Errorf("transfer from %s: %w", from.Hex(), ErrUnauthorized)
	}
	if _, err := l.Mint(ctx, tx, mint); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return nil
	}
	src, err := l.Account(ctx, tx, mint, from)
	if err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("transfer %d from %s holding %d: %w", amount, from.Hex(), src.Amount, ErrInsufficientFunds)
	}
	dst, err := l.Account(ctx, tx, mint, to)
	if err != nil {
		return err
	}
	if dst.Amount+amount < dst.Amount {
		return fmt.Errorf("transfer to %s: %w", to.Hex(), ErrOverflow)
	}
	src.Amount -= amount
	dst.Amount += amount
	if err := tx.Put(ctx, store.KindTokenAccount, src.Key, src); err != nil {
		return err
	}
	return tx.Put(ctx, store.KindTokenAccount, dst.Key, dst)
}

// MintTo issues new tokens. authority must be the mint authority.
func (l *Ledger) MintTo(ctx context.Context, tx store.Tx, mint, to, authority common.Address, amount uint64) error {
	m, err := l.Mint(ctx, tx, mint)
	if err != nil {
		return err
	}
	if m.Authority != authority {
		return fmt.Errorf("mint %s: %w", mint.Hex(), ErrUnauthorized)
	}
	dst, err := l.Account(ctx, tx, mint, to)
	if err != nil {
		return err
	}
	if m.Supply+amount < m.Supply || dst.Amount+amount < dst.Amount {
		return fmt.Errorf("mint %d of %s: %w", amount, mint.Hex(), ErrOverflow)
	}
	m.Supply += amount
	dst.Amount += amount
	if err := tx.Put(ctx, store.KindMint, mintKey(mint), m); err != nil {
		return err
	}
	return tx.Put(ctx, store.KindTokenAccount, dst.Key, dst)
}

// Burn destroys tokens held by from. authority must be the holder.
func (l *Ledger) Burn(ctx context.Context, tx store.Tx, mint, from, authority common.Address, amount uint64) error {
	if authority != from {
		return fmt.Errorf("burn from %s: %w", from.Hex(), ErrUnauthorized)
	}
	m, err := l.Mint(ctx, tx, mint)
	if err != nil {
		return err
	}
	src, err := l.Account(ctx, tx, mint, from)
	if err != nil {
		return err
	}
	if src.Amount < amount || m.Supply < amount {
		return fmt.Errorf("burn %d from %s holding %d: %w", amount, from.Hex(), src.Amount, ErrInsufficientFunds)
	}
	m.Supply -= amount
	src.Amount -= amount
	if err := tx.Put(ctx, store.KindMint, mintKey(mint), m); err != nil {
		return err
	}
	return tx.Put(ctx, store.KindTokenAccount, src.Key, src)
}

func mintKey(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}
