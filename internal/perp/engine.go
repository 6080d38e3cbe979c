package perp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
	"perpetuals/internal/token"
)

// TokenService moves fungible balances inside an engine transaction.
type TokenService interface {
	CreateMint(ctx context.Context, tx store.Tx, mint model.Mint) error
	Mint(ctx context.Context, tx store.Tx, address common.Address) (model.Mint, error)
	CreateAccount(ctx context.Context, tx store.Tx, mint, owner common.Address) (model.TokenAccount, error)
	Balance(ctx context.Context, tx store.Tx, mint, owner common.Address) (uint64, error)
	Supply(ctx context.Context, tx store.Tx, mint common.Address) (uint64, error)
	Transfer(ctx context.Context, tx store.Tx, mint, from, to, authority common.Address, amount uint64) error
	MintTo(ctx context.Context, tx store.Tx, mint, to, authority common.Address, amount uint64) error
	Burn(ctx context.Context, tx store.Tx, mint, from, authority common.Address, amount uint64) error
}

// Clock supplies the current unix time in seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// Observer is notified after each operation and for each custody an
// operation committed.
type Observer interface {
	ObserveOperation(op string, err error)
	ObserveCustody(pool model.Pool, custody model.Custody)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error)            {}
func (nopObserver) ObserveCustody(model.Pool, model.Custody) {}

// Engine applies perpetuals operations to a record store. Every operation
// runs in one store transaction and leaves no trace when it fails.
type Engine struct {
	store    store.Store
	tokens   TokenService
	clock    Clock
	logger   *zap.Logger
	observer Observer
}

func NewEngine(st store.Store, tokens TokenService, clock Clock, logger *zap.Logger, observer Observer) *Engine {
	if tokens == nil {
		tokens = token.NewLedger()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Engine{store: st, tokens: tokens, clock: clock, logger: logger, observer: observer}
}

// Store exposes the backing store for token helpers that share it.
func (e *Engine) Store() store.Store { return e.store }

// Tokens exposes the token service used by the engine.
func (e *Engine) Tokens() TokenService { return e.tokens }

// touched collects the custodies an operation wrote so observers see them
// only after commit.
type touched struct {
	entries []touchedCustody
}

type touchedCustody struct {
	pool    model.Pool
	custody model.Custody
}

func (t *touched) add(pool model.Pool, custody model.Custody) {
	t.entries = append(t.entries, touchedCustody{pool: pool, custody: custody})
}

func (e *Engine) run(ctx context.Context, op string, fields []zap.Field, fn func(tx store.Tx, t *touched) error) error {
	t := &touched{}
	err := e.store.Update(ctx, func(tx store.Tx) error {
		t.entries = t.entries[:0]
		return fn(tx, t)
	})
	e.observer.ObserveOperation(op, err)
	if err != nil {
		e.logger.Warn("operation rejected", append(fields, zap.String("op", op), zap.String("code", CodeOf(err)), zap.Error(err))...)
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, entry := range t.entries {
		e.observer.ObserveCustody(entry.pool, entry.custody)
	}
	e.logger.Info("operation applied", append(fields, zap.String("op", op))...)
	return nil
}

func (e *Engine) loadPerpetuals(ctx context.Context, tx store.Tx) (model.Perpetuals, error) {
	var perps model.Perpetuals
	ok, err := tx.Get(ctx, store.KindPerpetuals, model.PerpetualsKey(), &perps)
	if err != nil {
		return model.Perpetuals{}, err
	}
	if !ok {
		return model.Perpetuals{}, ErrNotInitialized
	}
	return perps, nil
}

func (e *Engine) loadPool(ctx context.Context, tx store.Tx, key common.Hash) (model.Pool, error) {
	var pool model.Pool
	ok, err := tx.Get(ctx, store.KindPool, key, &pool)
	if err != nil {
		return model.Pool{}, err
	}
	if !ok {
		return model.Pool{}, fmt.Errorf("pool %s: %w", key.Hex(), ErrPoolNotFound)
	}
	return pool, nil
}

func (e *Engine) loadCustody(ctx context.Context, tx store.Tx, pool model.Pool, mint common.Address) (model.Custody, error) {
	return e.loadCustodyByKey(ctx, tx, pool, model.CustodyKey(pool.Key, mint))
}

func (e *Engine) loadCustodyByKey(ctx context.Context, tx store.Tx, pool model.Pool, key common.Hash) (model.Custody, error) {
	if !pool.HasCustody(key) {
		return model.Custody{}, fmt.Errorf("custody %s in pool %s: %w", key.Hex(), pool.Name, ErrCustodyNotFound)
	}
	var custody model.Custody
	ok, err := tx.Get(ctx, store.KindCustody, key, &custody)
	if err != nil {
		return model.Custody{}, err
	}
	if !ok {
		return model.Custody{}, fmt.Errorf("custody %s: %w", key.Hex(), ErrCustodyNotFound)
	}
	return custody, nil
}

func (e *Engine) loadPosition(ctx context.Context, tx store.Tx, key common.Hash) (model.Position, error) {
	var pos model.Position
	ok, err := tx.Get(ctx, store.KindPosition, key, &pos)
	if err != nil {
		return model.Position{}, err
	}
	if !ok {
		return model.Position{}, fmt.Errorf("position %s: %w", key.Hex(), ErrPositionNotFound)
	}
	return pos, nil
}

func (e *Engine) poolCustodies(ctx context.Context, tx store.Tx, pool model.Pool) ([]model.Custody, error) {
	out := make([]model.Custody, 0, len(pool.Custodies))
	for _, key := range pool.Custodies {
		c, err := e.loadCustodyByKey(ctx, tx, pool, key)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// refreshAUM recomputes the pool's AUM with custody replacing its stored
// copy and persists both.
func (e *Engine) refreshAUM(ctx context.Context, tx store.Tx, pool *model.Pool, custody model.Custody) error {
	custodies, err := e.poolCustodies(ctx, tx, *pool)
	if err != nil {
		return err
	}
	for i := range custodies {
		if custodies[i].Key == custody.Key {
			custodies[i] = custody
		}
	}
	aum, err := TotalValue(custodies)
	if err != nil {
		return err
	}
	pool.AumUSD = aum
	if err := tx.Put(ctx, store.KindCustody, custody.Key, custody); err != nil {
		return err
	}
	return tx.Put(ctx, store.KindPool, pool.Key, *pool)
}

func requireAdmin(perps model.Perpetuals, authority common.Address) error {
	if !perps.IsAdmin(authority) {
		return fmt.Errorf("%s is not an admin: %w", authority.Hex(), ErrUnauthorized)
	}
	return nil
}

// tokenErr maps token ledger failures onto engine errors.
func tokenErr(op string, err error) error {
	switch {
	case errors.Is(err, token.ErrInsufficientFunds):
		return fmt.Errorf("%s: %v: %w", op, err, ErrInsufficientLiquidity)
	case errors.Is(err, token.ErrUnauthorized):
		return fmt.Errorf("%s: %v: %w", op, err, ErrUnauthorized)
	case errors.Is(err, token.ErrOverflow):
		return fmt.Errorf("%s: %v: %w", op, err, ErrMathOverflow)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// walletErr is tokenErr for debits from a caller's own account, where a
// short balance is bad input rather than a pool shortfall.
func walletErr(op string, err error, shortfall error) error {
	if errors.Is(err, token.ErrInsufficientFunds) {
		return fmt.Errorf("%s: %v: %w", op, err, shortfall)
	}
	return tokenErr(op, err)
}
