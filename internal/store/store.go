package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names a record family.
type Kind string

const (
	KindPerpetuals   Kind = "perpetuals"
	KindPool         Kind = "pool"
	KindCustody      Kind = "custody"
	KindPosition     Kind = "position"
	KindMint         Kind = "mint"
	KindTokenAccount Kind = "token_account"
)

// ErrNotFound is returned by helpers that require a record to exist.
var ErrNotFound = errors.New("record not found")

// Tx is a view over the store inside one Update or View call. Writes made
// through a Tx become visible to other callers only after the enclosing
// function returns nil.
type Tx interface {
	// Get decodes the record into out and reports whether it exists.
	Get(ctx context.Context, kind Kind, key common.Hash, out interface{}) (bool, error)
	// Put creates or replaces a record and bumps its version.
	Put(ctx context.Context, kind Kind, key common.Hash, value interface{}) error
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, kind Kind, key common.Hash) error
	// Keys lists the keys of a record family in ascending order.
	Keys(ctx context.Context, kind Kind) ([]common.Hash, error)
}

// Store is a keyed, versioned record store with all-or-nothing updates.
type Store interface {
	// Update runs fn with exclusive write access. Nothing fn wrote is kept
	// when it returns an error.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// MustGet loads a record and returns ErrNotFound when it is missing.
func MustGet(ctx context.Context, tx Tx, kind Kind, key common.Hash, out interface{}) error {
	ok, err := tx.Get(ctx, kind, key, out)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ErrReadOnly is returned when a View transaction attempts a write.
var ErrReadOnly = errors.New("read-only transaction")
