package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"perpetuals/internal/store"
)

// Store persists records in a single SQLite file. One open connection keeps
// writers serialized.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS records (
  kind TEXT NOT NULL,
  key TEXT NOT NULL,
  data BLOB NOT NULL,
  version INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (kind, key)
);
`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&tx{tx: sqlTx, readOnly: readOnly}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if readOnly {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type tx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *tx) Get(ctx context.Context, kind store.Kind, key common.Hash, out interface{}) (bool, error) {
	var data []byte
	row := t.tx.QueryRowContext(ctx, `SELECT data FROM records WHERE kind = ? AND key = ?`, string(kind), key.Hex())
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	if t.readOnly {
		return store.ErrReadOnly
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, key.Hex(), err)
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO records (kind, key, data, version, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT(kind, key) DO UPDATE SET
  data = excluded.data,
  version = records.version + 1,
  updated_at = excluded.updated_at
`, string(kind), key.Hex(), data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store %s %s: %w", kind, key.Hex(), err)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, kind store.Kind, key common.Hash) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND key = ?`, string(kind), key.Hex()); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, key.Hex(), err)
	}
	return nil
}

func (t *tx) Keys(ctx context.Context, kind store.Kind) ([]common.Hash, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT key FROM records WHERE kind = ? ORDER BY key`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var keys []common.Hash
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, common.HexToHash(key))
	}
	return keys, rows.Err()
}
