package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"perpetuals/internal/model"
)

// DatePlaceholder in a sink path is replaced by the UTC day of each snapshot.
const DatePlaceholder = "{date}"

// Sink receives custody snapshots. *postgres.Store satisfies it.
type Sink interface {
	PutSnapshots(ctx context.Context, snapshots []model.CustodySnapshot) error
}

// JSONLSink appends snapshots to JSONL files, one per day when the path
// carries DatePlaceholder.
type JSONLSink struct {
	path  string
	fsync bool
	mu    sync.Mutex
}

// NewJSONLSink writes to path. With fsync set every batch is synced to disk
// before PutSnapshots returns.
func NewJSONLSink(path string, fsync bool) *JSONLSink {
	return &JSONLSink{path: path, fsync: fsync}
}

// PathFor is the file a snapshot taken at row.TakenAt lands in.
func (s *JSONLSink) PathFor(row model.CustodySnapshot) string {
	if !strings.Contains(s.path, DatePlaceholder) {
		return s.path
	}
	return strings.ReplaceAll(s.path, DatePlaceholder, row.TakenAt.UTC().Format("2006-01-02"))
}

// PutSnapshots appends a batch as JSON lines, keeping batch order within
// each file.
func (s *JSONLSink) PutSnapshots(_ context.Context, snapshots []model.CustodySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	var order []string
	groups := make(map[string][]model.CustodySnapshot)
	for _, snap := range snapshots {
		path := s.PathFor(snap)
		if _, ok := groups[path]; !ok {
			order = append(order, path)
		}
		groups[path] = append(groups[path], snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range order {
		if err := s.appendFile(path, groups[path]); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONLSink) appendFile(path string, rows []model.CustodySnapshot) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if s.fsync {
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", path, err)
		}
	}
	return nil
}
