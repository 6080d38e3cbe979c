package perp

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
)

// ClaimDecimals is the precision of every pool's claim token.
const ClaimDecimals uint8 = 6

type InitializeParams struct {
	Admin         common.Address
	MinSignatures uint8
	Admins        []common.Address
}

// Initialize creates the venue record with every permission enabled.
func (e *Engine) Initialize(ctx context.Context, p InitializeParams) error {
	fields := []zap.Field{zap.String("admin", p.Admin.Hex()), zap.Int("admins", len(p.Admins))}
	return e.run(ctx, "initialize", fields, func(tx store.Tx, _ *touched) error {
		if len(p.Admins) == 0 || len(p.Admins) > model.MaxAdmins {
			return fmt.Errorf("%d admins: %w", len(p.Admins), ErrInvalidAdmins)
		}
		if p.MinSignatures == 0 || int(p.MinSignatures) > len(p.Admins) {
			return fmt.Errorf("min signatures %d of %d: %w", p.MinSignatures, len(p.Admins), ErrInvalidAdmins)
		}
		var existing model.Perpetuals
		ok, err := tx.Get(ctx, store.KindPerpetuals, model.PerpetualsKey(), &existing)
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInitialized
		}
		perps := model.Perpetuals{
			AdminAuthority: p.Admin,
			MinSignatures:  p.MinSignatures,
			Admins:         append([]common.Address(nil), p.Admins...),
			Pools:          []common.Hash{},
			Permissions:    model.AllowAll(),
		}
		return tx.Put(ctx, store.KindPerpetuals, model.PerpetualsKey(), perps)
	})
}

type AddPoolParams struct {
	Authority common.Address
	Name      string
}

// AddPool registers a pool and its claim-token mint.
func (e *Engine) AddPool(ctx context.Context, p AddPoolParams) (model.Pool, error) {
	var pool model.Pool
	err := e.run(ctx, "add_pool", []zap.Field{zap.String("pool", p.Name)}, func(tx store.Tx, _ *touched) error {
		if len(p.Name) == 0 || len(p.Name) > model.MaxPoolNameLen {
			return fmt.Errorf("name of %d bytes: %w", len(p.Name), ErrInvalidPoolName)
		}
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(perps, p.Authority); err != nil {
			return err
		}
		if len(perps.Pools) >= model.MaxPools {
			return fmt.Errorf("%d pools: %w", len(perps.Pools), ErrCapacityExceeded)
		}
		key := model.PoolKey(p.Name)
		var existing model.Pool
		ok, err := tx.Get(ctx, store.KindPool, key, &existing)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("pool %q: %w", p.Name, ErrAlreadyExists)
		}

		pool = model.Pool{
			Key:           key,
			Name:          p.Name,
			Custodies:     []common.Hash{},
			InceptionTime: e.clock.Now(),
			ClaimMint:     model.ClaimMint(key),
			Signer:        model.PoolSigner(key),
		}
		claim := model.Mint{
			Address:   pool.ClaimMint,
			Symbol:    p.Name + "-LP",
			Decimals:  ClaimDecimals,
			Authority: pool.Signer,
		}
		if err := e.tokens.CreateMint(ctx, tx, claim); err != nil {
			return fmt.Errorf("create claim mint: %w", err)
		}
		if err := tx.Put(ctx, store.KindPool, key, pool); err != nil {
			return err
		}
		perps.Pools = append(perps.Pools, key)
		return tx.Put(ctx, store.KindPerpetuals, model.PerpetualsKey(), perps)
	})
	return pool, err
}

type AddCustodyParams struct {
	Authority    common.Address
	Pool         common.Hash
	Mint         common.Address
	IsStable     bool
	OracleType   model.OracleType
	FeedID       string
	InitialPrice uint64
}

// DefaultPricing returns the pricing a new custody starts with.
func DefaultPricing(initialPrice uint64, now int64) model.PricingParams {
	return model.PricingParams{
		UseEMA:                true,
		UseUnrealizedPnLInAum: true,
		TradeSpreadLong:       50,
		TradeSpreadShort:      50,
		SwapSpread:            30,
		MaxLeverage:           50 * BPSPower,
		MaxGlobalLongSizeUSD:  10_000_000 * PricePrecision,
		MaxGlobalShortSizeUSD: 10_000_000 * PricePrecision,
		CurrentPrice:          initialPrice,
		EMAPrice:              initialPrice,
		LastUpdateTime:        now,
	}
}

// DefaultFees returns the fee schedule a new custody starts with.
func DefaultFees() model.Fees {
	return model.Fees{
		SwapIn:          30,
		SwapOut:         30,
		StableSwapIn:    10,
		StableSwapOut:   10,
		AddLiquidity:    30,
		RemoveLiquidity: 30,
		OpenPosition:    100,
		ClosePosition:   100,
		Liquidation:     500,
		ProtocolShare:   2_000,
	}
}

// DefaultBorrowRate returns the borrow curve stored on a new custody.
func DefaultBorrowRate() model.BorrowRateParams {
	return model.BorrowRateParams{
		BaseRate:           0,
		Slope1:             80_000,
		Slope2:             800_000,
		OptimalUtilization: 800_000,
	}
}

// AddCustody attaches a mint to a pool with default parameters.
func (e *Engine) AddCustody(ctx context.Context, p AddCustodyParams) (model.Custody, error) {
	var custody model.Custody
	fields := []zap.Field{zap.String("pool", p.Pool.Hex()), zap.String("mint", p.Mint.Hex()), zap.Stringer("oracle", p.OracleType)}
	err := e.run(ctx, "add_custody", fields, func(tx store.Tx, t *touched) error {
		if p.InitialPrice == 0 {
			return ErrInvalidPrice
		}
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(perps, p.Authority); err != nil {
			return err
		}
		pool, err := e.loadPool(ctx, tx, p.Pool)
		if err != nil {
			return err
		}
		if len(pool.Custodies) >= model.MaxCustodies {
			return fmt.Errorf("%d custodies: %w", len(pool.Custodies), ErrCapacityExceeded)
		}
		key := model.CustodyKey(pool.Key, p.Mint)
		if pool.HasCustody(key) {
			return fmt.Errorf("custody for %s: %w", p.Mint.Hex(), ErrAlreadyExists)
		}
		switch p.OracleType {
		case model.OracleNone, model.OracleCustom:
		case model.OraclePyth:
			if _, err := ResolveFeedID(model.Custody{FeedID: p.FeedID}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("oracle type %s: %w", p.OracleType, ErrInvalidOraclePrice)
		}

		mint, err := e.tokens.Mint(ctx, tx, p.Mint)
		if err != nil {
			return fmt.Errorf("load mint: %w", err)
		}
		acct, err := e.tokens.CreateAccount(ctx, tx, p.Mint, pool.Signer)
		if err != nil {
			return fmt.Errorf("create custody account: %w", err)
		}

		custody = model.Custody{
			Key:          key,
			Pool:         pool.Key,
			Mint:         p.Mint,
			TokenAccount: acct.Key,
			Decimals:     mint.Decimals,
			IsStable:     p.IsStable,
			OracleType:   p.OracleType,
			FeedID:       p.FeedID,
			Pricing:      DefaultPricing(p.InitialPrice, e.clock.Now()),
			Fees:         DefaultFees(),
			BorrowRate:   DefaultBorrowRate(),
		}
		if err := tx.Put(ctx, store.KindCustody, key, custody); err != nil {
			return err
		}
		pool.Custodies = append(pool.Custodies, key)
		if err := tx.Put(ctx, store.KindPool, pool.Key, pool); err != nil {
			return err
		}
		t.add(pool, custody)
		return nil
	})
	return custody, err
}

type UpdatePriceParams struct {
	Authority common.Address
	Pool      common.Hash
	Mint      common.Address
	Price     uint64
}

// UpdatePrice stores a new custody price and advances its EMA.
func (e *Engine) UpdatePrice(ctx context.Context, p UpdatePriceParams) (model.Custody, error) {
	var custody model.Custody
	fields := []zap.Field{zap.String("mint", p.Mint.Hex()), zap.Uint64("price", p.Price)}
	err := e.run(ctx, "update_price", fields, func(tx store.Tx, t *touched) error {
		if p.Price == 0 {
			return ErrInvalidPrice
		}
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(perps, p.Authority); err != nil {
			return err
		}
		pool, err := e.loadPool(ctx, tx, p.Pool)
		if err != nil {
			return err
		}
		if custody, err = e.loadCustody(ctx, tx, pool, p.Mint); err != nil {
			return err
		}
		if err := ApplyPrice(&custody.Pricing, p.Price, e.clock.Now()); err != nil {
			return err
		}
		if err := tx.Put(ctx, store.KindCustody, custody.Key, custody); err != nil {
			return err
		}
		t.add(pool, custody)
		return nil
	})
	return custody, err
}

type SetPermissionsParams struct {
	Authority   common.Address
	Permissions model.Permissions
}

// SetPermissions replaces the venue's feature switches.
func (e *Engine) SetPermissions(ctx context.Context, p SetPermissionsParams) error {
	return e.run(ctx, "set_permissions", []zap.Field{zap.Any("permissions", p.Permissions)}, func(tx store.Tx, _ *touched) error {
		perps, err := e.loadPerpetuals(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(perps, p.Authority); err != nil {
			return err
		}
		perps.Permissions = p.Permissions
		return tx.Put(ctx, store.KindPerpetuals, model.PerpetualsKey(), perps)
	})
}
