package table

import (
	"fmt"
	"sync"
)

// MergeStats describes one Append
type MergeStats struct {
	Existing int
	Incoming int
	Added    int
	Total    int
}

// Store binds a table file to its schema and unique key. Append is
// serialized per Store, so a Store shared by concurrent writers is safe.
// Two Stores over the same path are not coordinated.
type Store struct {
	path    string
	columns []string
	keys    []string
	mu      sync.Mutex
}

// NewStore creates a store for path keyed by keys
func NewStore(path string, keys []string, columns ...string) *Store {
	return &Store{path: path, columns: columns, keys: keys}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the current table, or an empty one with the schema
func (s *Store) Load() (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadOrCreate(s.path, s.columns...)
}

// Append merges batch into the persisted table and rewrites it. The file is
// rewritten even for an empty batch so the schema exists on disk.
func (s *Store) Append(batch *Table) (MergeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := ReadOrCreate(s.path, s.columns...)
	if err != nil {
		return MergeStats{}, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	merged, err := Merge(existing, batch, s.keys...)
	if err != nil {
		return MergeStats{}, fmt.Errorf("failed to merge into %s: %w", s.path, err)
	}

	if err := merged.Save(s.path); err != nil {
		return MergeStats{}, err
	}

	incoming := 0
	if batch != nil {
		incoming = batch.Len()
	}
	return MergeStats{
		Existing: existing.Len(),
		Incoming: incoming,
		Added:    merged.Len() - existing.Len(),
		Total:    merged.Len(),
	}, nil
}

// AppendRecords is Append for a slice of column→value maps
func (s *Store) AppendRecords(records []map[string]string) (MergeStats, error) {
	batch := New(s.columns...)
	for _, r := range records {
		batch.Append(r)
	}
	return s.Append(batch)
}
