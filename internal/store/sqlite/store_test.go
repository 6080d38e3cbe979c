package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"perpetuals/internal/store"
)

type record struct {
	Name string `json:"name"`
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "perp.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	key := common.HexToHash("0xabc")
	err = s.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put(ctx, store.KindPool, key, record{Name: "first"}); err != nil {
			return err
		}
		return tx.Put(ctx, store.KindPool, key, record{Name: "second"})
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	var got record
	err = s.View(ctx, func(tx store.Tx) error {
		return store.MustGet(ctx, tx, store.KindPool, key, &got)
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if got.Name != "second" {
		t.Errorf("expected second, got %q", got.Name)
	}
}

func TestSQLiteStoreRollback(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "perp.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	boom := errors.New("boom")
	key := common.HexToHash("0x01")
	err = s.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put(ctx, store.KindPosition, key, record{Name: "gone"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = s.View(ctx, func(tx store.Tx) error {
		keys, err := tx.Keys(ctx, store.KindPosition)
		if err != nil {
			return err
		}
		if len(keys) != 0 {
			t.Errorf("expected no keys after rollback, got %v", keys)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "perp.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	key := common.HexToHash("0x01")
	if err := s.Update(ctx, func(tx store.Tx) error {
		return tx.Put(ctx, store.KindPosition, key, record{Name: "open"})
	}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Update(ctx, func(tx store.Tx) error {
		return tx.Delete(ctx, store.KindPosition, key)
	}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	err = s.View(ctx, func(tx store.Tx) error {
		err := store.MustGet(ctx, tx, store.KindPosition, key, &record{})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}
