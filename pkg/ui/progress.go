package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "━"
	ProgressEmpty = "─"
	barWidth      = 20
)

// StageStatus is a snapshot of one stage's progress
type StageStatus struct {
	Stage   string
	Total   int
	Done    int
	Errors  int
	Started time.Time
}

// Elapsed returns the time since the stage started
func (s StageStatus) Elapsed() time.Duration {
	return time.Since(s.Started)
}

// Bar renders the progress bar for the snapshot
func (s StageStatus) Bar() string {
	filled := 0
	if s.Total > 0 {
		filled = s.Done * barWidth / s.Total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
}

// StageTracker prints a single updating progress line per stage. It is safe
// for concurrent use by entity workers.
type StageTracker struct {
	mu      sync.Mutex
	out     io.Writer
	current StageStatus
	history []StageStatus
	quiet   bool
}

// NewStageTracker creates a tracker writing to out. A quiet tracker only
// records snapshots.
func NewStageTracker(out io.Writer, quiet bool) *StageTracker {
	return &StageTracker{out: out, quiet: quiet}
}

// StageStarted begins tracking stage over total entities
func (t *StageTracker) StageStarted(stage string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = StageStatus{Stage: stage, Total: total, Started: time.Now()}
	t.print()
}

// EntityDone records one finished entity
func (t *StageTracker) EntityDone(stage, entityID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.Stage != stage {
		return
	}
	t.current.Done++
	if err != nil {
		t.current.Errors++
	}
	t.print()
}

// StageFinished closes the current stage line
func (t *StageTracker) StageFinished(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.Stage != stage {
		return
	}
	t.history = append(t.history, t.current)
	if !t.quiet {
		fmt.Fprintf(t.out, " %s\n", dimStyle.Render(t.current.Elapsed().Round(time.Millisecond).String()))
	}
	t.current = StageStatus{}
}

// History returns snapshots of finished stages in order
func (t *StageTracker) History() []StageStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageStatus, len(t.history))
	copy(out, t.history)
	return out
}

func (t *StageTracker) print() {
	if t.quiet {
		return
	}
	s := t.current
	line := fmt.Sprintf("%s [%s] %d/%d", labelStyle.Render(fmt.Sprintf("%-9s", s.Stage)), s.Bar(), s.Done, s.Total)
	if s.Errors > 0 {
		line += " • " + errorStyle.Render(fmt.Sprintf("%d errors", s.Errors))
	}
	fmt.Fprintf(t.out, "\r%s\r%s", strings.Repeat(" ", 80), line)
}
