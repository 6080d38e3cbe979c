package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"perpetuals/internal/model"
	"perpetuals/internal/store"
)

// Store provides Postgres persistence for engine records, snapshots and
// keeper progress.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Migrate creates the tables used by the store.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS perp_records (
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			data JSONB NOT NULL,
			version BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (kind, key)
		);
		CREATE TABLE IF NOT EXISTS custody_snapshots (
			custody_key TEXT NOT NULL,
			taken_at TIMESTAMPTZ NOT NULL,
			pool_key TEXT NOT NULL,
			pool_name TEXT NOT NULL,
			mint TEXT NOT NULL,
			oracle_type TEXT NOT NULL,
			price NUMERIC NOT NULL,
			ema_price NUMERIC NOT NULL,
			price_updated_at BIGINT NOT NULL,
			owned NUMERIC NOT NULL,
			locked NUMERIC NOT NULL,
			collateral NUMERIC NOT NULL,
			protocol_fees NUMERIC NOT NULL,
			owned_usd NUMERIC NOT NULL,
			oi_long_usd NUMERIC NOT NULL,
			oi_short_usd NUMERIC NOT NULL,
			add_liquidity_usd NUMERIC NOT NULL,
			remove_liquidity_usd NUMERIC NOT NULL,
			open_position_usd NUMERIC NOT NULL,
			close_position_usd NUMERIC NOT NULL,
			liquidation_usd NUMERIC NOT NULL,
			pool_value_usd NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (custody_key, taken_at)
		);
		CREATE TABLE IF NOT EXISTS keeper_state (
			name TEXT PRIMARY KEY,
			round BIGINT NOT NULL,
			last_key TEXT NOT NULL,
			complete BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(pgTx pgx.Tx) error {
		return fn(&tx{tx: pgTx, forUpdate: true})
	})
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(pgTx pgx.Tx) error {
		return fn(&tx{tx: pgTx})
	})
}

// tx locks every row it reads when forUpdate is set, which gives the
// single-writer-per-record discipline across processes.
type tx struct {
	tx        pgx.Tx
	forUpdate bool
}

func (t *tx) Get(ctx context.Context, kind store.Kind, key common.Hash, out interface{}) (bool, error) {
	query := `SELECT data FROM perp_records WHERE kind=$1 AND key=$2`
	if t.forUpdate {
		query += ` FOR UPDATE`
	}
	var data []byte
	if err := t.tx.QueryRow(ctx, query, string(kind), key.Hex()).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load %s %s: %w", kind, key.Hex(), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s %s: %w", kind, key.Hex(), err)
	}
	return true, nil
}

func (t *tx) Put(ctx context.Context, kind store.Kind, key common.Hash, value interface{}) error {
	if !t.forUpdate {
		return store.ErrReadOnly
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, key.Hex(), err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO perp_records (kind, key, data, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (kind, key) DO UPDATE
		SET data = EXCLUDED.data, version = perp_records.version + 1, updated_at = now()
	`, string(kind), key.Hex(), data)
	if err != nil {
		return fmt.Errorf("store %s %s: %w", kind, key.Hex(), err)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, kind store.Kind, key common.Hash) error {
	if !t.forUpdate {
		return store.ErrReadOnly
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM perp_records WHERE kind=$1 AND key=$2`, string(kind), key.Hex()); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, key.Hex(), err)
	}
	return nil
}

func (t *tx) Keys(ctx context.Context, kind store.Kind) ([]common.Hash, error) {
	rows, err := t.tx.Query(ctx, `SELECT key FROM perp_records WHERE kind=$1 ORDER BY key`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (common.Hash, error) {
		var key string
		err := row.Scan(&key)
		return common.HexToHash(key), err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return keys, nil
}

// PutSnapshots inserts or updates custody snapshots.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.CustodySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO custody_snapshots (
				custody_key, taken_at, pool_key, pool_name, mint, oracle_type,
				price, ema_price, price_updated_at, owned, locked, collateral, protocol_fees,
				owned_usd, oi_long_usd, oi_short_usd, add_liquidity_usd, remove_liquidity_usd,
				open_position_usd, close_position_usd, liquidation_usd, pool_value_usd,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,now(),now())
			ON CONFLICT (custody_key, taken_at)
			DO UPDATE SET
				price = EXCLUDED.price,
				ema_price = EXCLUDED.ema_price,
				price_updated_at = EXCLUDED.price_updated_at,
				owned = EXCLUDED.owned,
				locked = EXCLUDED.locked,
				collateral = EXCLUDED.collateral,
				protocol_fees = EXCLUDED.protocol_fees,
				owned_usd = EXCLUDED.owned_usd,
				oi_long_usd = EXCLUDED.oi_long_usd,
				oi_short_usd = EXCLUDED.oi_short_usd,
				add_liquidity_usd = EXCLUDED.add_liquidity_usd,
				remove_liquidity_usd = EXCLUDED.remove_liquidity_usd,
				open_position_usd = EXCLUDED.open_position_usd,
				close_position_usd = EXCLUDED.close_position_usd,
				liquidation_usd = EXCLUDED.liquidation_usd,
				pool_value_usd = EXCLUDED.pool_value_usd,
				updated_at = now()
		`,
			snap.CustodyKey,
			snap.TakenAt,
			snap.PoolKey,
			snap.PoolName,
			snap.Mint,
			snap.OracleType,
			snap.Price,
			snap.EMAPrice,
			snap.PriceUpdatedAt,
			snap.Owned,
			snap.Locked,
			snap.Collateral,
			snap.ProtocolFees,
			snap.OwnedUSD,
			snap.OILongUSD,
			snap.OIShortUSD,
			snap.AddLiquidityUSD,
			snap.RemoveLiquidityUSD,
			snap.OpenPositionUSD,
			snap.ClosePositionUSD,
			snap.LiquidationUSD,
			snap.PoolValueUSD,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// KeeperState is the persisted progress of a liquidation sweep.
type KeeperState struct {
	Round    uint64
	LastKey  string
	Complete bool
}

// LoadState returns the keeper progress stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (KeeperState, bool, error) {
	if name == "" {
		return KeeperState{}, false, fmt.Errorf("state name required")
	}
	var st KeeperState
	var round int64
	row := s.pool.QueryRow(ctx, `SELECT round, last_key, complete FROM keeper_state WHERE name=$1`, name)
	if err := row.Scan(&round, &st.LastKey, &st.Complete); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return KeeperState{}, false, nil
		}
		return KeeperState{}, false, err
	}
	st.Round = uint64(round)
	return st, true, nil
}

// SaveState upserts keeper progress for a name.
func (s *Store) SaveState(ctx context.Context, name string, st KeeperState) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO keeper_state (name, round, last_key, complete, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET round = EXCLUDED.round, last_key = EXCLUDED.last_key, complete = EXCLUDED.complete, updated_at = now()
	`, name, int64(st.Round), st.LastKey, st.Complete)
	return err
}
