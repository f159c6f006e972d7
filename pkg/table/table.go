// Package table is the deduplicating persistent store for flat tabular
// files. Tables are CSV with a header row; paths ending in .zst are zstd
// compressed. Merges keep the first occurrence of each key so persisted
// rows always win over freshly fetched duplicates.
package table

import (
	"fmt"
	"sort"
	"strings"
)

// Table is an in-memory table with named columns. Cells are strings.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given columns. Duplicate column
// names are collapsed.
func New(columns ...string) *Table {
	t := &Table{index: make(map[string]int)}
	t.EnsureColumns(columns...)
	return t
}

// Columns returns a copy of the column names in order
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// EnsureColumns appends any missing columns, padding existing rows
func (t *Table) EnsureColumns(columns ...string) {
	for _, c := range columns {
		if _, ok := t.index[c]; ok {
			continue
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], "")
		}
	}
}

// Append adds a row from a column→value map. Unknown columns are added.
func (t *Table) Append(values map[string]string) {
	var missing []string
	for c := range values {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	t.EnsureColumns(missing...)
	row := make([]string, len(t.columns))
	for c, v := range values {
		row[t.index[c]] = v
	}
	t.rows = append(t.rows, row)
}

// AppendRow adds a positional row. Short rows are padded; long rows are an error.
func (t *Table) AppendRow(row []string) error {
	if len(row) > len(t.columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(t.columns))
	}
	r := make([]string, len(t.columns))
	copy(r, row)
	t.rows = append(t.rows, r)
	return nil
}

// Get returns the cell at row i for column, or "" when the column is absent
func (t *Table) Get(i int, column string) string {
	idx, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return ""
	}
	return t.rows[i][idx]
}

// Record returns row i as a map
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.columns))
	for c, idx := range t.index {
		rec[c] = t.rows[i][idx]
	}
	return rec
}

// Records returns every row as a map
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, len(t.rows))
	for i := range t.rows {
		out[i] = t.Record(i)
	}
	return out
}

// Column returns every value of the named column
func (t *Table) Column(name string) []string {
	idx, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[idx]
	}
	return out
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	c := New(t.columns...)
	c.rows = make([][]string, len(t.rows))
	for i, r := range t.rows {
		c.rows[i] = append([]string(nil), r...)
	}
	return c
}

func (t *Table) key(i int, keys []int) string {
	parts := make([]string, len(keys))
	for j, k := range keys {
		parts[j] = t.rows[i][k]
	}
	return strings.Join(parts, "\x1f")
}

// Keys returns the set of key tuples present in the table
func (t *Table) Keys(keys ...string) (map[string]bool, error) {
	idx, err := t.keyIndexes(keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(t.rows))
	for i := range t.rows {
		out[t.key(i, idx)] = true
	}
	return out, nil
}

func (t *Table) keyIndexes(keys []string) ([]int, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one key column is required")
	}
	idx := make([]int, len(keys))
	for j, k := range keys {
		i, ok := t.index[k]
		if !ok {
			return nil, fmt.Errorf("key column %q not in table", k)
		}
		idx[j] = i
	}
	return idx, nil
}

// Merge concatenates existing rows then batch rows and drops duplicate key
// tuples, keeping the first occurrence. Columns are the union of both
// tables with existing order first. Neither input is modified.
func Merge(existing, batch *Table, keys ...string) (*Table, error) {
	if existing == nil {
		existing = New()
	}
	if batch == nil {
		batch = New()
	}
	for _, k := range keys {
		if existing.Len() > 0 && !existing.HasColumn(k) {
			return nil, fmt.Errorf("existing table lacks key column %q", k)
		}
		if batch.Len() > 0 && !batch.HasColumn(k) {
			return nil, fmt.Errorf("batch lacks key column %q", k)
		}
	}

	merged := existing.Clone()
	merged.EnsureColumns(batch.columns...)
	merged.EnsureColumns(keys...)

	keyIdx, err := merged.keyIndexes(keys)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, merged.Len()+batch.Len())
	kept := merged.rows[:0]
	for i := range merged.rows {
		k := merged.key(i, keyIdx)
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, merged.rows[i])
	}
	merged.rows = kept

	for i := range batch.rows {
		row := make([]string, len(merged.columns))
		for c, bi := range batch.index {
			row[merged.index[c]] = batch.rows[i][bi]
		}
		parts := make([]string, len(keyIdx))
		for j, k := range keyIdx {
			parts[j] = row[k]
		}
		k := strings.Join(parts, "\x1f")
		if seen[k] {
			continue
		}
		seen[k] = true
		merged.rows = append(merged.rows, row)
	}

	return merged, nil
}
