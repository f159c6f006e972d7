package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Manager owns one directory of per-item artifacts named <item_id><ext>,
// such as an entity's chat transcripts or clip videos
type Manager struct {
	dir    string
	ext    string
	stored map[string]bool
	mu     sync.RWMutex
}

// NewManager creates the directory if needed and indexes existing artifacts
func NewManager(dir, ext string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	m := &Manager{
		dir:    dir,
		ext:    ext,
		stored: make(map[string]bool),
	}

	if err := m.scan(); err != nil {
		return nil, fmt.Errorf("failed to scan existing artifacts: %w", err)
	}

	return m, nil
}

func (m *Manager) scan() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, m.ext) || strings.HasPrefix(name, ".") {
			continue
		}
		m.stored[strings.TrimSuffix(name, m.ext)] = true
	}
	return nil
}

// Path returns the artifact path for itemID whether or not it exists
func (m *Manager) Path(itemID string) string {
	return filepath.Join(m.dir, itemID+m.ext)
}

// IsStored reports whether the artifact for itemID exists. The index is
// refreshed from disk on a miss.
func (m *Manager) IsStored(itemID string) bool {
	m.mu.RLock()
	ok := m.stored[itemID]
	m.mu.RUnlock()
	if ok {
		return true
	}

	if _, err := os.Stat(m.Path(itemID)); err != nil {
		return false
	}

	m.mu.Lock()
	m.stored[itemID] = true
	m.mu.Unlock()
	return true
}

// Save atomically writes the artifact for itemID from r
func (m *Manager) Save(r io.Reader, itemID string) error {
	out, err := os.CreateTemp(m.dir, "."+itemID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	_, err = io.Copy(out, r)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write artifact %s: %w", itemID, err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	return m.Adopt(tempFile, itemID)
}

// SaveBytes is Save for an in-memory payload
func (m *Manager) SaveBytes(data []byte, itemID string) error {
	return m.Save(bytes.NewReader(data), itemID)
}

// Adopt moves a finished file produced elsewhere into place as the artifact
// for itemID. src must be on the same filesystem.
func (m *Manager) Adopt(src, itemID string) error {
	if err := os.Rename(src, m.Path(itemID)); err != nil {
		os.Remove(src)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}

	m.mu.Lock()
	m.stored[itemID] = true
	m.mu.Unlock()
	return nil
}

// TempPath returns a hidden scratch path in the artifact directory for
// producers that write the file themselves before Adopt
func (m *Manager) TempPath(itemID string) string {
	return filepath.Join(m.dir, "."+itemID+m.ext+".part")
}

// Dir returns the artifact directory
func (m *Manager) Dir() string {
	return m.dir
}

// Count returns the number of known artifacts
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stored)
}

// IDs returns the known item ids sorted
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.stored))
	for id := range m.stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
