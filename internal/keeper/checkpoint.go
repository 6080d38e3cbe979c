package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"perpetuals/internal/store/postgres"
)

// Progress tracks how far the current sweep got.
type Progress struct {
	Round    uint64 `json:"round"`
	LastKey  string `json:"last_key"`
	Complete bool   `json:"complete"`
}

// StateStore persists sweep progress between runs.
type StateStore interface {
	Load(ctx context.Context) (Progress, bool, error)
	Save(ctx context.Context, p Progress) error
}

// FileStateStore stores progress in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	Progress
	UpdatedAt string `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (Progress, bool, error) {
	if s == nil || s.Path == "" {
		return Progress{}, false, nil
	}
	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Progress{}, false, nil
		}
		return Progress{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return Progress{}, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Progress{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Progress{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	return rec.Progress, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, p Progress) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	rec := stateRecord{Progress: p, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// DBStateStore stores progress in the keeper_state table.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (Progress, bool, error) {
	if s == nil || s.Store == nil {
		return Progress{}, false, nil
	}
	st, ok, err := s.Store.LoadState(ctx, s.Name)
	if err != nil || !ok {
		return Progress{}, ok, err
	}
	return Progress{Round: st.Round, LastKey: st.LastKey, Complete: st.Complete}, true, nil
}

func (s *DBStateStore) Save(ctx context.Context, p Progress) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, postgres.KeeperState{Round: p.Round, LastKey: p.LastKey, Complete: p.Complete})
}
