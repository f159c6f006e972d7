package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"clipharvest/pkg/logger"
)

const currentVersion = 1

// StageRecord is one completed stage for one entity
type StageRecord struct {
	CompletedAt time.Time      `json:"completed_at"`
	Counts      map[string]int `json:"counts,omitempty"`
}

// Run represents the state of one pipeline run
type Run struct {
	ID          string                            `json:"id"`
	Logins      []string                          `json:"logins,omitempty"`
	WindowStart time.Time                         `json:"window_start"`
	WindowEnd   time.Time                         `json:"window_end"`
	Stages      map[string]map[string]StageRecord `json:"stages"` // entity -> stage -> record
	CreatedAt   time.Time                         `json:"created_at"`
	UpdatedAt   time.Time                         `json:"updated_at"`
	Version     int                               `json:"version"`
}

// StageDone reports whether stage completed for entityID
func (r *Run) StageDone(entityID, stage string) bool {
	_, ok := r.Stages[entityID][stage]
	return ok
}

// SameWindow reports whether the run covers exactly [start, end]
func (r *Run) SameWindow(start, end time.Time) bool {
	return r.WindowStart.Equal(start) && r.WindowEnd.Equal(end)
}

// Entities returns the entity ids with at least one completed stage
func (r *Run) Entities() []string {
	ids := make([]string, 0, len(r.Stages))
	for id := range r.Stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Manager handles run files in one directory. It is safe for concurrent
// use; stage updates from entity workers are serialized.
type Manager struct {
	dir    string
	logger logger.Logger
	mu     sync.Mutex
}

// NewManager creates a manager storing runs under dir
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	return &Manager{dir: dir, logger: logger.Or(log)}, nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// Create starts a new run over [start, end]
func (m *Manager) Create(logins []string, start, end time.Time) (*Run, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:          uuid.NewString(),
		Logins:      logins,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
		Stages:      make(map[string]map[string]StageRecord),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     currentVersion,
	}

	if err := m.Save(run); err != nil {
		return nil, fmt.Errorf("failed to save initial run record: %w", err)
	}

	m.logger.InfoWithFields("run created", map[string]interface{}{
		"run_id":       run.ID,
		"window_start": run.WindowStart,
		"window_end":   run.WindowEnd,
		"path":         m.path(run.ID),
	})
	return run, nil
}

// Load reads a run. A missing run returns nil, nil.
func (m *Manager) Load(id string) (*Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}

	data, err := os.ReadFile(m.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	if run.Stages == nil {
		run.Stages = make(map[string]map[string]StageRecord)
	}

	m.logger.InfoWithFields("run loaded", map[string]interface{}{
		"run_id":     run.ID,
		"entities":   len(run.Stages),
		"updated_at": run.UpdatedAt,
	})
	return &run, nil
}

// List returns the ids of every stored run, most recently updated first
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	type stamped struct {
		id  string
		mod time.Time
	}
	var runs []stamped
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, stamped{id: id, mod: info.ModTime()})
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].mod.After(runs[j].mod) })
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.id
	}
	return ids, nil
}

// Save writes the run to disk atomically
func (m *Manager) Save(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(run)
}

func (m *Manager) save(run *Run) error {
	run.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	file, err := os.CreateTemp(m.dir, "."+run.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary run file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write run record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync run record: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close run record: %w", err)
	}

	if err := os.Rename(tempPath, m.path(run.ID)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace run record: %w", err)
	}

	m.logger.DebugWithFields("run saved", map[string]interface{}{
		"run_id":   run.ID,
		"entities": len(run.Stages),
	})
	return nil
}

// MarkStage records stage as completed for entityID and saves the run
func (m *Manager) MarkStage(run *Run, entityID, stage string, counts map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.Stages == nil {
		run.Stages = make(map[string]map[string]StageRecord)
	}
	stages, ok := run.Stages[entityID]
	if !ok {
		stages = make(map[string]StageRecord)
		run.Stages[entityID] = stages
	}
	stages[stage] = StageRecord{CompletedAt: time.Now().UTC(), Counts: counts}
	return m.save(run)
}

// Done reports whether stage completed for entityID, under the manager lock
func (m *Manager) Done(run *Run, entityID, stage string) bool {
	if run == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return run.StageDone(entityID, stage)
}

// Delete removes a run file
func (m *Manager) Delete(id string) error {
	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run record: %w", err)
	}
	m.logger.WithField("run_id", id).Info("run deleted")
	return nil
}

// Exists checks if a run file exists
func (m *Manager) Exists(id string) bool {
	_, err := os.Stat(m.path(id))
	return err == nil
}

// Info returns a summary of a run
func (m *Manager) Info(id string) (map[string]interface{}, error) {
	run, err := m.Load(id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}

	completed := 0
	for _, stages := range run.Stages {
		completed += len(stages)
	}
	return map[string]interface{}{
		"run_id":           run.ID,
		"window_start":     run.WindowStart,
		"window_end":       run.WindowEnd,
		"entities":         len(run.Stages),
		"completed_stages": completed,
		"created_at":       run.CreatedAt,
		"updated_at":       run.UpdatedAt,
		"age":              time.Since(run.UpdatedAt),
	}, nil
}
