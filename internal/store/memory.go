package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type recordID struct {
	kind Kind
	key  common.Hash
}

type entry struct {
	data    []byte
	version uint64
}

// MemoryStore keeps records in process memory. Update holds the write lock for
// its whole duration, which serializes writers.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordID]entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordID]entry)}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{base: s.records, writes: make(map[recordID]*entry)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, e := range tx.writes {
		if e == nil {
			delete(s.records, id)
			continue
		}
		s.records[id] = *e
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{base: s.records, readOnly: true})
}

// Version returns the current version of a record, zero when missing.
func (s *MemoryStore) Version(kind Kind, key common.Hash) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[recordID{kind: kind, key: key}].version
}

func (s *MemoryStore) Close() error { return nil }

type memoryTx struct {
	base     map[recordID]entry
	writes   map[recordID]*entry
	readOnly bool
}

func (t *memoryTx) lookup(id recordID) (entry, bool) {
	if e, ok := t.writes[id]; ok {
		if e == nil {
			return entry{}, false
		}
		return *e, true
	}
	e, ok := t.base[id]
	return e, ok
}

func (t *memoryTx) Get(_ context.Context, kind Kind, key common.Hash, out interface{}) (bool, error) {
	e, ok := t.lookup(recordID{kind: kind, key: key})
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, out); err != nil {
		return false, fmt.Errorf("decode %s %s: %w", kind, key.Hex(), err)
	}
	return true, nil
}

func (t *memoryTx) Put(_ context.Context, kind Kind, key common.Hash, value interface{}) error {
	if t.readOnly {
		return ErrReadOnly
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, key.Hex(), err)
	}
	id := recordID{kind: kind, key: key}
	t.writes[id] = &entry{data: data, version: t.base[id].version + 1}
	return nil
}

func (t *memoryTx) Delete(_ context.Context, kind Kind, key common.Hash) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.writes[recordID{kind: kind, key: key}] = nil
	return nil
}

func (t *memoryTx) Keys(_ context.Context, kind Kind) ([]common.Hash, error) {
	seen := make(map[common.Hash]struct{})
	for id := range t.base {
		if id.kind == kind {
			seen[id.key] = struct{}{}
		}
	}
	for id, e := range t.writes {
		if id.kind != kind {
			continue
		}
		if e == nil {
			delete(seen, id.key)
			continue
		}
		seen[id.key] = struct{}{}
	}

	keys := make([]common.Hash, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0
	})
	return keys, nil
}
