package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
)

var (
	usdc   = model.MintAddress("USDC")
	issuer = common.HexToAddress("0x1001")
	alice  = common.HexToAddress("0xa11ce")
	bob    = common.HexToAddress("0xb0b")
)

func setup(t *testing.T) (*store.MemoryStore, *Ledger) {
	t.Helper()
	st := store.NewMemoryStore()
	l := NewLedger()
	err := st.Update(context.Background(), func(tx store.Tx) error {
		return l.CreateMint(context.Background(), tx, model.Mint{Address: usdc, Symbol: "USDC", Decimals: 6, Authority: issuer})
	})
	if err != nil {
		t.Fatalf("create mint: %v", err)
	}
	return st, l
}

func TestMintTransferBurn(t *testing.T) {
	ctx := context.Background()
	st, l := setup(t)

	err := st.Update(ctx, func(tx store.Tx) error {
		if err := l.MintTo(ctx, tx, usdc, alice, issuer, 1_000); err != nil {
			return err
		}
		if err := l.Transfer(ctx, tx, usdc, alice, bob, alice, 400); err != nil {
			return err
		}
		return l.Burn(ctx, tx, usdc, bob, bob, 100)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = st.View(ctx, func(tx store.Tx) error {
		a, _ := l.Balance(ctx, tx, usdc, alice)
		b, _ := l.Balance(ctx, tx, usdc, bob)
		s, _ := l.Supply(ctx, tx, usdc)
		if a != 600 || b != 300 || s != 900 {
			t.Fatalf("unexpected balances alice=%d bob=%d supply=%d", a, b, s)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestTransferRejections(t *testing.T) {
	ctx := context.Background()
	st, l := setup(t)

	err := st.Update(ctx, func(tx store.Tx) error {
		if err := l.MintTo(ctx, tx, usdc, alice, issuer, 10); err != nil {
			return err
		}
		if err := l.Transfer(ctx, tx, usdc, alice, bob, bob, 1); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if err := l.Transfer(ctx, tx, usdc, alice, bob, alice, 11); !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		if err := l.MintTo(ctx, tx, usdc, alice, alice, 1); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected mint authority check, got %v", err)
		}
		if err := l.Transfer(ctx, tx, model.MintAddress("NOPE"), alice, bob, alice, 1); !errors.Is(err, ErrMintNotFound) {
			t.Fatalf("expected ErrMintNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestCreateMintTwice(t *testing.T) {
	ctx := context.Background()
	st, l := setup(t)
	err := st.Update(ctx, func(tx store.Tx) error {
		return l.CreateMint(ctx, tx, model.Mint{Address: usdc, Decimals: 6, Authority: issuer})
	})
	if !errors.Is(err, ErrMintExists) {
		t.Fatalf("expected ErrMintExists, got %v", err)
	}
}

func TestMintLookup(t *testing.T) {
	ctx := context.Background()
	st, l := setup(t)
	err := st.View(ctx, func(tx store.Tx) error {
		m, err := l.Mint(ctx, tx, usdc)
		if err != nil {
			return err
		}
		if m.Address != usdc || m.Authority != issuer {
			t.Fatalf("unexpected mint: %+v", m)
		}
		if _, err := l.Mint(ctx, tx, model.MintAddress("NOPE")); !errors.Is(err, ErrMintNotFound) {
			t.Fatalf("expected ErrMintNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
