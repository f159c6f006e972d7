// Package downloader schedules per-item artifact downloads. An item whose
// destination already exists is skipped without running the worker, every
// failure is isolated to its item, and failures are persisted so later runs
// can tell "never attempted" from "previously failed".
package downloader

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"clipharvest/internal/workerpool"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/metrics"
	"clipharvest/pkg/table"
)

// Task is one artifact to produce
type Task struct {
	EntityID        string
	ItemID          string
	DestinationPath string
}

// State is the terminal state of a task. The zero value is Pending.
type State int

const (
	StatePending State = iota
	StateSuccess
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Skip reasons
const (
	ReasonExists   = "artifact already exists"
	ReasonNoReplay = "no chat replay"
)

// Outcome is the result of one task
type Outcome struct {
	Task     Task
	State    State
	Reason   string
	Err      error
	Duration time.Duration
}

// Worker produces the artifact for one task. Returning an error whose kind
// is errors.KindNoReplay skips the task instead of failing it.
type Worker func(ctx context.Context, task Task) error

// FailureColumns is the failure table schema
var FailureColumns = []string{"entity_id", "item_id", "status", "error", "destination_path", "failed_at"}

// Scheduler runs tasks of one kind ("chat", "media")
type Scheduler struct {
	kind        string
	concurrency int
	failures    *table.Store
	metrics     *metrics.Metrics
	logger      logger.Logger
	now         func() time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithFailureTable persists failed outcomes to path
func WithFailureTable(path string) Option {
	return func(s *Scheduler) {
		s.failures = table.NewStore(path, []string{"item_id"}, FailureColumns...)
	}
}

// WithMetrics records outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler running up to concurrency tasks at once
func New(kind string, concurrency int, opts ...Option) *Scheduler {
	s := &Scheduler{
		kind:        kind,
		concurrency: concurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Run executes tasks and returns one outcome per task, in task order.
// Existing artifacts are detected before submission. Tasks left unsubmitted
// because ctx ended are reported as failed.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, worker Worker) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	var pending []int

	for i, task := range tasks {
		if exists(task.DestinationPath) {
			outcomes[i] = Outcome{Task: task, State: StateSkipped, Reason: ReasonExists}
			continue
		}
		pending = append(pending, i)
	}

	jobs := make([]Task, len(pending))
	for j, i := range pending {
		jobs[j] = tasks[i]
	}

	results := workerpool.Run(ctx, s.concurrency, jobs, func(ctx context.Context, task Task) Outcome {
		return s.execute(ctx, task, worker)
	}, workerpool.WithName(s.kind), workerpool.WithLogger(s.logger))

	for j, i := range pending {
		out := results[j]
		if out.State == StatePending {
			err := ctx.Err()
			if err == nil {
				err = errors.New(errors.KindDownloadFailure, s.kind, "task was not scheduled")
			}
			out = Outcome{Task: tasks[i], State: StateFailed, Err: err}
		}
		outcomes[i] = out
	}

	for _, out := range outcomes {
		s.metrics.Outcome(s.kind, out.State.String())
		logger.LogOutcome(s.logger, s.kind, out.Task.EntityID, out.Task.ItemID, out.State.String(), out.Err)
	}

	if err := s.recordFailures(outcomes); err != nil {
		logger.Or(s.logger).WithError(err).WithField("kind", s.kind).Error("failed to persist failure table")
	}
	return outcomes
}

func (s *Scheduler) execute(ctx context.Context, task Task, worker Worker) (out Outcome) {
	start := time.Now()
	out = Outcome{Task: task}

	defer func() {
		if r := recover(); r != nil {
			logger.Or(s.logger).WithFields(map[string]interface{}{
				"kind":    s.kind,
				"item_id": task.ItemID,
				"stack":   string(debug.Stack()),
			}).Error("worker panicked")
			out.State = StateFailed
			out.Err = errors.Newf(errors.KindDownloadFailure, s.kind, "panic: %v", r)
		}
		out.Duration = time.Since(start)
	}()

	err := worker(ctx, task)
	switch {
	case err == nil:
		out.State = StateSuccess
	case errors.Is(err, errors.KindNoReplay):
		out.State = StateSkipped
		out.Reason = ReasonNoReplay
	default:
		out.State = StateFailed
		out.Err = err
	}
	return out
}

func (s *Scheduler) recordFailures(outcomes []Outcome) error {
	if s.failures == nil {
		return nil
	}

	var records []map[string]string
	for _, out := range outcomes {
		if out.State != StateFailed {
			continue
		}
		records = append(records, map[string]string{
			"entity_id":        out.Task.EntityID,
			"item_id":          out.Task.ItemID,
			"status":           out.State.String(),
			"error":            errorText(out.Err),
			"destination_path": out.Task.DestinationPath,
			"failed_at":        s.now().UTC().Format(time.RFC3339),
		})
	}
	if len(records) == 0 {
		return nil
	}

	if _, err := s.failures.AppendRecords(records); err != nil {
		return fmt.Errorf("failed to record %d failures: %w", len(records), err)
	}
	return nil
}

// PreviouslyFailed returns the item ids recorded in the failure table
func (s *Scheduler) PreviouslyFailed() (map[string]bool, error) {
	if s.failures == nil {
		return map[string]bool{}, nil
	}
	t, err := s.failures.Load()
	if err != nil {
		return nil, err
	}
	return t.Keys("item_id")
}

// Summary counts outcomes by state
type Summary struct {
	Success int
	Skipped int
	Failed  int
}

// Summarize counts outcomes by state
func Summarize(outcomes []Outcome) Summary {
	var sum Summary
	for _, out := range outcomes {
		switch out.State {
		case StateSuccess:
			sum.Success++
		case StateSkipped:
			sum.Skipped++
		case StateFailed:
			sum.Failed++
		}
	}
	return sum
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
