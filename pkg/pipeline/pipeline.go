// Package pipeline wires the stages of a harvest together:
//
//	users → clips → chats → media → classify → report
//
// Every per-entity stage runs entities through a bounded pool and writes
// only files partitioned by that entity. Shared tables (users, reports) are
// written from the calling goroutine.
package pipeline

import (
	"context"
	"os"
	"sort"
	"time"

	"clipharvest/internal/workerpool"
	"clipharvest/pkg/archive"
	"clipharvest/pkg/badges"
	"clipharvest/pkg/chatreplay"
	"clipharvest/pkg/checkpoint"
	"clipharvest/pkg/classify"
	"clipharvest/pkg/command"
	"clipharvest/pkg/config"
	"clipharvest/pkg/emoji"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/fetcher"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/media"
	"clipharvest/pkg/metrics"
	"clipharvest/pkg/models"
	"clipharvest/pkg/storage"
)

// Stage names, also used as checkpoint keys
const (
	StageUsers    = "users"
	StageClips    = "clips"
	StageChats    = "chats"
	StageMedia    = "media"
	StageClassify = "classify"
	StageReport   = "report"
)

// Helix is the subset of the Helix API the pipeline calls
type Helix interface {
	fetcher.PageSource
	UsersByLogin(ctx context.Context, logins []string) ([]models.Streamer, []string, error)
	FollowerCount(ctx context.Context, broadcasterID string) (int, error)
	VideosByID(ctx context.Context, ids []string) ([]models.Video, error)
}

// MediaDownloader stores one clip's media file in store
type MediaDownloader interface {
	Download(ctx context.Context, store *storage.Manager, clipID string) error
}

// Progress receives stage progress. Implementations must be safe for
// concurrent use.
type Progress interface {
	StageStarted(stage string, total int)
	EntityDone(stage, entityID string, err error)
	StageFinished(stage string)
}

type nopProgress struct{}

func (nopProgress) StageStarted(string, int)        {}
func (nopProgress) EntityDone(string, string, error) {}
func (nopProgress) StageFinished(string)             {}

// StageResult is one entity's result for one stage
type StageResult struct {
	Stage    string
	EntityID string
	Counts   map[string]int
	Err      error
	Resumed  bool
	Elapsed  time.Duration
}

// Pipeline runs harvest stages against one data root
type Pipeline struct {
	cfg       *config.Config
	layout    config.Layout
	helix     Helix
	fetcher   *fetcher.Fetcher
	chats     chatreplay.Source
	media     MediaDownloader
	processor *classify.Processor
	archive   *archive.Archive

	checkpoints *checkpoint.Manager
	run         *checkpoint.Run

	metrics  *metrics.Metrics
	progress Progress
	logger   logger.Logger
	now      func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithChatSource replaces the chat replay tool
func WithChatSource(s chatreplay.Source) Option {
	return func(p *Pipeline) { p.chats = s }
}

// WithMediaDownloader replaces the media tool
func WithMediaDownloader(d MediaDownloader) Option {
	return func(p *Pipeline) { p.media = d }
}

// WithArchive mirrors classified messages into a
func WithArchive(a *archive.Archive) Option {
	return func(p *Pipeline) { p.archive = a }
}

// WithCheckpoint records stage completion in run and skips stages it
// already holds
func WithCheckpoint(mgr *checkpoint.Manager, run *checkpoint.Run) Option {
	return func(p *Pipeline) {
		p.checkpoints = mgr
		p.run = run
	}
}

// WithMetrics records pipeline counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProgress reports stage progress
func WithProgress(pr Progress) Option {
	return func(p *Pipeline) { p.progress = pr }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the time source for recorded timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a pipeline. The data directories are created here; failing
// to create them is a fatal setup error and nothing is scheduled.
func New(cfg *config.Config, helix Helix, opts ...Option) (*Pipeline, error) {
	const op = "pipeline.New"

	p := &Pipeline{
		cfg:      cfg,
		layout:   cfg.Layout(),
		helix:    helix,
		progress: nopProgress{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.Or(p.logger)

	if err := p.layout.Ensure(); err != nil {
		return nil, errors.Wrap(errors.KindFatalSetup, op, err)
	}

	classifier, err := classify.New(cfg.Classify, p.logger)
	if err != nil {
		return nil, errors.Wrap(errors.KindFatalSetup, op, err)
	}
	p.processor = classify.NewProcessor(classifier, badges.New(p.logger), emoji.Default())

	p.fetcher = fetcher.New(helix, cfg.Fetch,
		fetcher.WithMetrics(p.metrics),
		fetcher.WithLogger(p.logger))

	if p.chats == nil {
		scratch := p.layout.Resolve(".scratch")
		if err := os.MkdirAll(scratch, 0755); err != nil {
			return nil, errors.Wrap(errors.KindFatalSetup, op, err)
		}
		runner := command.NewExecRunner(cfg.Download.ChatTimeout, p.logger)
		p.chats = chatreplay.NewExecSource(runner, cfg.Download.ChatBinary,
			chatreplay.WithScratchDir(scratch),
			chatreplay.WithLogger(p.logger))
	}
	if p.media == nil {
		runner := command.NewExecRunner(cfg.Download.MediaTimeout, p.logger)
		p.media = media.NewDownloader(runner, cfg.Download.MediaBinary, cfg.Download.MediaQuality, p.logger)
	}

	return p, nil
}

// Layout returns the data layout the pipeline writes to
func (p *Pipeline) Layout() config.Layout {
	return p.layout
}

// forEachEntity runs fn for every entity with EntityConcurrency workers.
// Entities already completed in the run checkpoint are reported as resumed
// without calling fn.
func (p *Pipeline) forEachEntity(ctx context.Context, stage string, entityIDs []string, fn func(ctx context.Context, entityID string) StageResult) []StageResult {
	p.progress.StageStarted(stage, len(entityIDs))
	defer p.progress.StageFinished(stage)

	results := workerpool.Run(ctx, p.cfg.Download.EntityConcurrency, entityIDs, func(ctx context.Context, entityID string) StageResult {
		if p.checkpoints != nil && p.checkpoints.Done(p.run, entityID, stage) {
			p.progress.EntityDone(stage, entityID, nil)
			return StageResult{Stage: stage, EntityID: entityID, Resumed: true}
		}

		start := time.Now()
		res := p.safely(ctx, stage, entityID, fn)
		res.Stage = stage
		res.EntityID = entityID
		res.Elapsed = time.Since(start)

		p.finishEntity(res)
		return res
	}, workerpool.WithName(stage), workerpool.WithLogger(p.logger))

	for i, r := range results {
		if r.Stage == "" {
			results[i] = StageResult{Stage: stage, EntityID: entityIDs[i], Err: ctx.Err()}
		}
	}
	return results
}

func (p *Pipeline) safely(ctx context.Context, stage, entityID string, fn func(ctx context.Context, entityID string) StageResult) (res StageResult) {
	defer func() {
		if r := recover(); r != nil {
			res = StageResult{Err: errors.Newf(errors.KindUnknown, stage, "panic: %v", r)}
		}
	}()
	return fn(ctx, entityID)
}

func (p *Pipeline) finishEntity(res StageResult) {
	counts := make(map[string]interface{}, len(res.Counts))
	for k, v := range res.Counts {
		counts[k] = v
	}
	log := p.logger
	if res.Err != nil {
		log = log.WithError(res.Err)
	}
	logger.LogStage(log, res.Stage, res.EntityID, counts, res.Elapsed)
	p.metrics.ObserveStage(res.Stage, res.Elapsed)
	p.progress.EntityDone(res.Stage, res.EntityID, res.Err)

	// items that failed keep the stage open for a resumed run
	if res.Err != nil || res.Counts["failed"] > 0 || p.checkpoints == nil || p.run == nil {
		return
	}
	if err := p.checkpoints.MarkStage(p.run, res.EntityID, res.Stage, res.Counts); err != nil {
		p.logger.WithError(err).WithField("stage", res.Stage).Warn("failed to update run checkpoint")
	}
}

// Failed returns the results that carry an error
func Failed(results []StageResult) []StageResult {
	var out []StageResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Totals sums counts across results
func Totals(results []StageResult) map[string]int {
	out := make(map[string]int)
	for _, r := range results {
		for k, v := range r.Counts {
			out[k] += v
		}
	}
	return out
}

// CountKeys returns the sorted union of count names across results
func CountKeys(results []StageResult) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range results {
		for k := range r.Counts {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
