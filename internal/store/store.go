// Package store provides crash-safe persistence for completed trade cycles
// and stuck-position markers using JSON files.
//
// Each cycle's ExecutionRecord is stored as a separate, append-only file:
// records/<cycle-id>.json. A stuck marker (emitted by the Recovery Planner
// when it cannot restore the zero-base-exposure invariant) is stored as
// stuck/<symbol>.json and removed when an operator clears it. Writes use
// atomic file replacement (write to .tmp, then rename) to prevent
// corruption from partial writes or crashes mid-save.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

// Store persists execution records and stuck markers to JSON files in a
// designated directory tree. All operations are mutex-protected to prevent
// concurrent file corruption.
type Store struct {
	dir string // root directory; contains records/ and stuck/ subdirectories
	mu  sync.Mutex
}

// Open creates a store backed by the given directory, creating the
// records/ and stuck/ subdirectories if absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "records"), 0o755); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "stuck"), 0o755); err != nil {
		return nil, fmt.Errorf("create stuck dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// AppendExecutionRecord persists a completed cycle's record. Records are
// immutable once written; the ID uniquely names the file so no cycle can
// overwrite another.
func (s *Store) AppendExecutionRecord(rec types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	path := filepath.Join(s.dir, "records", rec.ID+".json")
	return writeAtomic(path, data)
}

// ListExecutionRecords returns all persisted records for symbol, ordered by
// CycleStartedAt ascending. symbol == "" returns every record regardless of
// pair.
func (s *Store) ListExecutionRecords(symbol string) ([]types.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, "records")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read records dir: %w", err)
	}

	var records []types.ExecutionRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", entry.Name(), err)
		}
		var rec types.ExecutionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record %s: %w", entry.Name(), err)
		}
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CycleStartedAt.Before(records[j].CycleStartedAt)
	})
	return records, nil
}

// StuckMarker is the persisted form of a guard latch: a position the
// Recovery Planner could not unwind, awaiting operator intervention.
type StuckMarker struct {
	Symbol string    `json:"symbol"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

// SaveStuckMarker persists a stuck latch so it survives a process restart.
func (s *Store) SaveStuckMarker(marker StuckMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stuck marker: %w", err)
	}

	path := filepath.Join(s.dir, "stuck", marker.Symbol+".json")
	return writeAtomic(path, data)
}

// LoadStuckMarker returns the persisted stuck marker for symbol, or nil, nil
// if the position isn't marked stuck.
func (s *Store) LoadStuckMarker(symbol string) (*StuckMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, "stuck", symbol+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stuck marker: %w", err)
	}

	var marker StuckMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("unmarshal stuck marker: %w", err)
	}
	return &marker, nil
}

// ClearStuckMarker removes the persisted stuck marker for symbol, once an
// operator has resolved the position out of band. Clearing an already-clear
// symbol is not an error.
func (s *Store) ClearStuckMarker(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, "stuck", symbol+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stuck marker: %w", err)
	}
	return nil
}

// writeAtomic writes data to a .tmp file and renames it over path, so a
// crash mid-write never leaves a partially-written file at path.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
