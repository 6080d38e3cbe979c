package perp

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
	"perpetuals/internal/token"
)

var (
	admin      = common.HexToAddress("0xad")
	issuer     = common.HexToAddress("0x155")
	lp         = common.HexToAddress("0x1b")
	trader     = common.HexToAddress("0x7d")
	liquidator = common.HexToAddress("0xbee")
	solMint    = model.MintAddress("SOL")
	usdcMint   = model.MintAddress("USDC")
)

type recordingObserver struct {
	ops       map[string]int
	failures  map[string]int
	custodies int
}

func (o *recordingObserver) ObserveOperation(op string, err error) {
	if err != nil {
		o.failures[op]++
		return
	}
	o.ops[op]++
}

func (o *recordingObserver) ObserveCustody(model.Pool, model.Custody) { o.custodies++ }

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *store.MemoryStore
	ledger   *token.Ledger
	engine   *Engine
	observer *recordingObserver
	now      int64
	pool     model.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store.NewMemoryStore(),
		ledger:   token.NewLedger(),
		observer: &recordingObserver{ops: map[string]int{}, failures: map[string]int{}},
		now:      testNow,
	}
	f.engine = NewEngine(f.store, f.ledger, ClockFunc(func() int64 { return f.now }), zap.NewNop(), f.observer)

	require.NoError(t, f.engine.Initialize(f.ctx, InitializeParams{Admin: admin, MinSignatures: 1, Admins: []common.Address{admin}}))
	pool, err := f.engine.AddPool(f.ctx, AddPoolParams{Authority: admin, Name: "main"})
	require.NoError(t, err)
	f.pool = pool

	f.createMint(solMint, "SOL")
	f.createMint(usdcMint, "USDC")
	return f
}

func (f *fixture) createMint(addr common.Address, symbol string) {
	err := f.store.Update(f.ctx, func(tx store.Tx) error {
		return f.ledger.CreateMint(f.ctx, tx, model.Mint{Address: addr, Symbol: symbol, Decimals: 6, Authority: issuer})
	})
	require.NoError(f.t, err)
}

func (f *fixture) fund(mint, owner common.Address, amount uint64) {
	err := f.store.Update(f.ctx, func(tx store.Tx) error {
		return f.ledger.MintTo(f.ctx, tx, mint, owner, issuer, amount)
	})
	require.NoError(f.t, err)
}

func (f *fixture) balance(mint, owner common.Address) uint64 {
	var out uint64
	err := f.store.View(f.ctx, func(tx store.Tx) error {
		var err error
		out, err = f.ledger.Balance(f.ctx, tx, mint, owner)
		return err
	})
	require.NoError(f.t, err)
	return out
}

func (f *fixture) addCustody(mint common.Address, oracle model.OracleType, price uint64) model.Custody {
	c, err := f.engine.AddCustody(f.ctx, AddCustodyParams{
		Authority:    admin,
		Pool:         f.pool.Key,
		Mint:         mint,
		IsStable:     mint == usdcMint,
		OracleType:   oracle,
		InitialPrice: price,
	})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) custody(mint common.Address) model.Custody {
	c, err := f.engine.Custody(f.ctx, f.pool.Key, mint)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) setPrice(mint common.Address, price uint64) {
	_, err := f.engine.UpdatePrice(f.ctx, UpdatePriceParams{Authority: admin, Pool: f.pool.Key, Mint: mint, Price: price})
	require.NoError(f.t, err)
}

// seedSOL lists SOL at $100 and deposits 1,000 SOL of liquidity.
func (f *fixture) seedSOL() {
	f.addCustody(solMint, model.OracleNone, 100_000_000)
	f.fund(solMint, lp, 1_000_000_000)
	_, err := f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: solMint, AmountIn: 1_000_000_000})
	require.NoError(f.t, err)
}

func (f *fixture) openLong(collateral, leverage uint64) model.Position {
	pos, err := f.engine.OpenPosition(f.ctx, OpenPositionParams{
		Owner:            trader,
		Pool:             f.pool.Key,
		Mint:             solMint,
		Side:             model.Long,
		CollateralAmount: collateral,
		Leverage:         leverage,
		AcceptablePrice:  101_000_000,
	})
	require.NoError(f.t, err)
	return pos
}

func TestInitializeValidation(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(store.NewMemoryStore(), nil, nil, nil, nil)

	err := e.Initialize(ctx, InitializeParams{Admin: admin, MinSignatures: 1})
	assert.ErrorIs(t, err, ErrInvalidAdmins)
	err = e.Initialize(ctx, InitializeParams{Admin: admin, MinSignatures: 2, Admins: []common.Address{admin}})
	assert.ErrorIs(t, err, ErrInvalidAdmins)
	_, err = e.AddPool(ctx, AddPoolParams{Authority: admin, Name: "main"})
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, e.Initialize(ctx, InitializeParams{Admin: admin, MinSignatures: 1, Admins: []common.Address{admin}}))
	err = e.Initialize(ctx, InitializeParams{Admin: admin, MinSignatures: 1, Admins: []common.Address{admin}})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	perps, err := e.Perpetuals(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.AllowAll(), perps.Permissions)
}

func TestAddPoolAndCustody(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "main", f.pool.Name)
	assert.Equal(t, testNow, f.pool.InceptionTime)
	assert.Equal(t, model.ClaimMint(f.pool.Key), f.pool.ClaimMint)

	_, err := f.engine.AddPool(f.ctx, AddPoolParams{Authority: admin, Name: "main"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	_, err = f.engine.AddPool(f.ctx, AddPoolParams{Authority: admin, Name: ""})
	assert.ErrorIs(t, err, ErrInvalidPoolName)
	_, err = f.engine.AddPool(f.ctx, AddPoolParams{Authority: admin, Name: string(make([]byte, 65))})
	assert.ErrorIs(t, err, ErrInvalidPoolName)
	_, err = f.engine.AddPool(f.ctx, AddPoolParams{Authority: trader, Name: "other"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindAuthorization, KindOf(err))

	_, err = f.engine.AddCustody(f.ctx, AddCustodyParams{Authority: admin, Pool: f.pool.Key, Mint: solMint})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	c := f.addCustody(solMint, model.OracleNone, 100_000_000)
	assert.Equal(t, uint8(6), c.Decimals)
	assert.Equal(t, DefaultFees(), c.Fees)
	assert.Equal(t, uint64(100_000_000), c.Pricing.EMAPrice)
	assert.Equal(t, uint64(500_000), c.Pricing.MaxLeverage)
	assert.Equal(t, model.TokenAccountKey(solMint, f.pool.Signer), c.TokenAccount)

	_, err = f.engine.AddCustody(f.ctx, AddCustodyParams{Authority: admin, Pool: f.pool.Key, Mint: solMint, InitialPrice: 1})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	custodies, err := f.engine.Custodies(f.ctx, f.pool.Key)
	require.NoError(t, err)
	require.Len(t, custodies, 1)
	assert.Equal(t, c.Key, custodies[0].Key)
}

func TestBootstrapLiquidityMintsOneToOne(t *testing.T) {
	f := newFixture(t)
	f.addCustody(usdcMint, model.OracleNone, 1_000_000)
	f.fund(usdcMint, lp, 1_000_000)

	res, err := f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: usdcMint, AmountIn: 1_000_000, MinClaimOut: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), res.ClaimAmount)
	assert.Equal(t, uint64(3_000), res.Fee)
	assert.Equal(t, uint64(1_000_000), f.balance(f.pool.ClaimMint, lp))
	assert.Equal(t, uint64(0), f.balance(usdcMint, lp))

	c := f.custody(usdcMint)
	assert.Equal(t, uint64(997_000), c.Assets.Owned)
	assert.Equal(t, uint64(3_000), c.Assets.ProtocolFees)
	assert.Equal(t, uint64(1_000_000), c.VolumeStats.AddLiquidityUSD)

	pool, err := f.engine.Pool(f.ctx, f.pool.Key)
	require.NoError(t, err)
	assert.Equal(t, uint64(997_000), pool.AumUSD)
}

func TestBootstrapMintIgnoresCustodyPrice(t *testing.T) {
	f := newFixture(t)
	f.addCustody(solMint, model.OracleNone, 100_000_000)
	f.fund(solMint, lp, 1_000_000)

	res, err := f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: solMint, AmountIn: 1_000_000, MinClaimOut: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), res.ClaimAmount)
	assert.Equal(t, uint64(100_000_000), res.ValueUSD)
	assert.Equal(t, uint64(1_000_000), f.balance(f.pool.ClaimMint, lp))

	c := f.custody(solMint)
	assert.Equal(t, uint64(100_000_000), c.VolumeStats.AddLiquidityUSD)

	// A deposit worth less than a micro-dollar still mints into an empty pool.
	g := newFixture(t)
	dust := model.MintAddress("DUST")
	g.createMint(dust, "DUST")
	g.addCustody(dust, model.OracleNone, 1)
	g.fund(dust, lp, 100)

	res, err = g.engine.AddLiquidity(g.ctx, AddLiquidityParams{Owner: lp, Pool: g.pool.Key, Mint: dust, AmountIn: 100, MinClaimOut: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.ClaimAmount)
	assert.Equal(t, uint64(0), res.ValueUSD)
	assert.Equal(t, uint64(100), g.custody(dust).Assets.Owned)
}

func TestLiquidityProportionalAndSlippage(t *testing.T) {
	f := newFixture(t)
	f.addCustody(usdcMint, model.OracleNone, 1_000_000)
	f.fund(usdcMint, lp, 10_000_000)
	f.fund(usdcMint, trader, 10_000_000)

	_, err := f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: usdcMint, AmountIn: 10_000_000})
	require.NoError(t, err)

	// Pool value is 9_970_000 after the fee, supply 10_000_000.
	_, err = f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: trader, Pool: f.pool.Key, Mint: usdcMint, AmountIn: 997_000, MinClaimOut: 1_000_001})
	assert.ErrorIs(t, err, ErrSlippageExceeded)
	res, err := f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: trader, Pool: f.pool.Key, Mint: usdcMint, AmountIn: 997_000, MinClaimOut: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), res.ClaimAmount)

	_, err = f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: trader, Pool: f.pool.Key, Mint: usdcMint})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRemoveLiquidity(t *testing.T) {
	f := newFixture(t)
	f.addCustody(usdcMint, model.OracleNone, 1_000_000)
	f.fund(usdcMint, lp, 10_000_000)
	_, err := f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: usdcMint, AmountIn: 10_000_000})
	require.NoError(t, err)

	_, err = f.engine.RemoveLiquidity(f.ctx, RemoveLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: usdcMint, ClaimIn: 5_000_000, MinAmountOut: 4_985_001})
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	res, err := f.engine.RemoveLiquidity(f.ctx, RemoveLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: usdcMint, ClaimIn: 5_000_000, MinAmountOut: 4_985_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(4_985_000), res.TokenAmount)
	assert.Equal(t, uint64(15_000), res.Fee)
	assert.Equal(t, uint64(4_985_000), f.balance(usdcMint, lp))
	assert.Equal(t, uint64(5_000_000), f.balance(f.pool.ClaimMint, lp))

	c := f.custody(usdcMint)
	assert.Equal(t, uint64(4_970_000), c.Assets.Owned)
	assert.Equal(t, uint64(45_000), c.Assets.ProtocolFees)

	_, err = f.engine.RemoveLiquidity(f.ctx, RemoveLiquidityParams{Owner: trader, Pool: f.pool.Key, Mint: usdcMint, ClaimIn: 1})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: trader, Pool: f.pool.Key, Mint: usdcMint, AmountIn: 1_000})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestOpenMarkClose(t *testing.T) {
	f := newFixture(t)
	f.seedSOL()
	f.fund(solMint, trader, 20_000_000)

	pos := f.openLong(10_000_000, 10)
	assert.Equal(t, uint64(100_000_000), pos.SizeUSD)
	assert.Equal(t, uint64(100_000_000), pos.EntryPrice)
	assert.Equal(t, int64(0), pos.UnrealizedPnL)
	assert.Equal(t, uint64(9_000_000), f.balance(solMint, trader))

	c := f.custody(solMint)
	assert.Equal(t, uint64(10_000_000), c.Assets.Collateral)
	assert.Equal(t, uint64(3_000_000+1_000_000), c.Assets.ProtocolFees)
	assert.Equal(t, uint64(100_000_000), c.TradeStats.OILongUSD)
	assert.Equal(t, uint64(100_000_000), c.VolumeStats.OpenPositionUSD)

	marked, err := f.engine.MarkToMarket(f.ctx, MarkParams{Position: pos.Key})
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked.UnrealizedPnL)

	f.now += 10
	f.setPrice(solMint, 110_000_000)
	marked, err = f.engine.MarkToMarket(f.ctx, MarkParams{Position: pos.Key})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), marked.UnrealizedPnL)

	_, err = f.engine.ClosePosition(f.ctx, CloseParams{Caller: liquidator, Position: pos.Key})
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := f.engine.ClosePosition(f.ctx, CloseParams{Caller: trader, Position: pos.Key})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), res.PnL)
	assert.Equal(t, uint64(1_000_000), res.Fee)
	assert.Equal(t, uint64(19_000_000), res.Payout)
	assert.Equal(t, uint64(28_000_000), f.balance(solMint, trader))

	c = f.custody(solMint)
	assert.Equal(t, uint64(0), c.Assets.Collateral)
	assert.Equal(t, uint64(0), c.TradeStats.OILongUSD)
	assert.Equal(t, uint64(5_000_000), c.Assets.ProtocolFees)
	assert.Equal(t, uint64(100_000_000), c.VolumeStats.ClosePositionUSD)

	_, err = f.engine.Position(f.ctx, pos.Key)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestOpenRejections(t *testing.T) {
	f := newFixture(t)
	f.seedSOL()
	f.fund(solMint, trader, 100_000_000)

	open := func(p OpenPositionParams) error {
		p.Owner, p.Pool, p.Mint = trader, f.pool.Key, solMint
		_, err := f.engine.OpenPosition(f.ctx, p)
		return err
	}

	assert.ErrorIs(t, open(OpenPositionParams{Side: model.Long, CollateralAmount: 10_000_000, Leverage: 81, AcceptablePrice: 200_000_000}), ErrInvalidLeverage)
	assert.ErrorIs(t, open(OpenPositionParams{Side: model.Long, CollateralAmount: 10_000_000, Leverage: 60, AcceptablePrice: 200_000_000}), ErrInvalidLeverage)
	assert.ErrorIs(t, open(OpenPositionParams{Side: model.Long, CollateralAmount: 9_999_999, Leverage: 2, AcceptablePrice: 200_000_000}), ErrInvalidCollateralAmount)
	assert.ErrorIs(t, open(OpenPositionParams{Side: model.Long, CollateralAmount: 10_000_000, Leverage: 2, AcceptablePrice: 99_999_999}), ErrPriceSlippageExceeded)
	assert.ErrorIs(t, open(OpenPositionParams{Side: model.Short, CollateralAmount: 10_000_000, Leverage: 2, AcceptablePrice: 100_000_001}), ErrPriceSlippageExceeded)

	require.NoError(t, open(OpenPositionParams{Side: model.Short, CollateralAmount: 10_000_000, Leverage: 2, AcceptablePrice: 100_000_000}))
	assert.ErrorIs(t, open(OpenPositionParams{Side: model.Long, CollateralAmount: 10_000_000, Leverage: 2, AcceptablePrice: 100_000_000}), ErrPositionExists)
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.seedSOL()
	// Enough for the collateral but not the fee.
	f.fund(solMint, trader, 10_000_000)

	before := f.custody(solMint)
	version := f.store.Version(store.KindCustody, before.Key)

	_, err := f.engine.OpenPosition(f.ctx, OpenPositionParams{
		Owner: trader, Pool: f.pool.Key, Mint: solMint, Side: model.Long,
		CollateralAmount: 10_000_000, Leverage: 10, AcceptablePrice: 100_000_000,
	})
	assert.ErrorIs(t, err, ErrInvalidCollateralAmount)
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Equal(t, before, f.custody(solMint))
	assert.Equal(t, version, f.store.Version(store.KindCustody, before.Key))
	assert.Equal(t, uint64(10_000_000), f.balance(solMint, trader))
	keys, err := f.engine.PositionKeys(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, 1, f.observer.failures["open_position"])
}

func TestPermissionsGateOperations(t *testing.T) {
	f := newFixture(t)
	f.seedSOL()
	f.fund(solMint, trader, 100_000_000)
	pos := f.openLong(10_000_000, 2)

	perms := model.AllowAll()
	perms.AllowOpenPosition = false
	perms.AllowClosePosition = false
	perms.AllowAddLiquidity = false
	perms.AllowRemoveLiquidity = false
	assert.ErrorIs(t, f.engine.SetPermissions(f.ctx, SetPermissionsParams{Authority: trader, Permissions: perms}), ErrUnauthorized)
	require.NoError(t, f.engine.SetPermissions(f.ctx, SetPermissionsParams{Authority: admin, Permissions: perms}))

	_, err := f.engine.ClosePosition(f.ctx, CloseParams{Caller: trader, Position: pos.Key})
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	_, err = f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: trader, Pool: f.pool.Key, Mint: solMint, AmountIn: 1})
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	_, err = f.engine.RemoveLiquidity(f.ctx, RemoveLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: solMint, ClaimIn: 1})
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	// Marking and liquidation are never gated.
	_, err = f.engine.MarkToMarket(f.ctx, MarkParams{Position: pos.Key})
	assert.NoError(t, err)
	_, err = f.engine.LiquidatePosition(f.ctx, LiquidateParams{Liquidator: liquidator, Position: pos.Key})
	assert.ErrorIs(t, err, ErrPositionNotLiquidatable)
}

func TestLiquidation(t *testing.T) {
	f := newFixture(t)
	f.seedSOL()
	f.fund(solMint, trader, 20_000_000)
	pos := f.openLong(10_000_000, 10)

	liq, err := f.engine.PositionLiquidationPrice(f.ctx, pos.Key)
	require.NoError(t, err)
	assert.Equal(t, uint64(92_000_000), liq)

	f.now += 30
	f.setPrice(solMint, 92_000_001)
	_, err = f.engine.LiquidatePosition(f.ctx, LiquidateParams{Liquidator: liquidator, Position: pos.Key})
	assert.ErrorIs(t, err, ErrPositionNotLiquidatable)

	f.setPrice(solMint, 92_000_000)
	feesBefore := f.custody(solMint).Assets.ProtocolFees
	res, err := f.engine.LiquidatePosition(f.ctx, LiquidateParams{Liquidator: liquidator, Position: pos.Key})
	require.NoError(t, err)
	assert.Equal(t, int64(-8_000_000), res.PnL)
	assert.Equal(t, uint64(2_000_000), res.LiquidatorFee)
	assert.Equal(t, uint64(0), res.OwnerAmount)
	assert.Equal(t, uint64(2_000_000), f.balance(solMint, liquidator))
	assert.Equal(t, uint64(9_000_000), f.balance(solMint, trader))

	c := f.custody(solMint)
	assert.Equal(t, uint64(0), c.Assets.Collateral)
	assert.Equal(t, uint64(0), c.TradeStats.OILongUSD)
	assert.Equal(t, feesBefore, c.Assets.ProtocolFees)
	assert.Equal(t, uint64(100_000_000), c.VolumeStats.LiquidationUSD)
}

func TestPythCustodyStaleObservation(t *testing.T) {
	f := newFixture(t)
	f.addCustody(solMint, model.OraclePyth, 100_000_000)
	f.fund(solMint, lp, 1_000_000_000)
	_, err := f.engine.AddLiquidity(f.ctx, AddLiquidityParams{Owner: lp, Pool: f.pool.Key, Mint: solMint, AmountIn: 1_000_000_000})
	require.NoError(t, err)
	f.fund(solMint, trader, 20_000_000)

	params := OpenPositionParams{
		Owner: trader, Pool: f.pool.Key, Mint: solMint, Side: model.Long,
		CollateralAmount: 10_000_000, Leverage: 5, AcceptablePrice: 200_000_000,
		Observation: pythObservation(t, DefaultFeedID, 15_000_000_000, -8, f.now-61),
	}
	_, err = f.engine.OpenPosition(f.ctx, params)
	assert.ErrorIs(t, err, ErrPriceTooOld)
	assert.Equal(t, KindOracle, KindOf(err))

	params.Observation = pythObservation(t, DefaultFeedID, 15_000_000_000, -8, f.now-5)
	pos, err := f.engine.OpenPosition(f.ctx, params)
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000_000), pos.EntryPrice)
	assert.Equal(t, 1, f.observer.ops["open_position"])
	assert.Positive(t, f.observer.custodies)
}
