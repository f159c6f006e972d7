package pipeline

import (
	"context"
	"time"

	"clipharvest/pkg/errors"
	"clipharvest/pkg/fetcher"
)

// Summary is the result of a full run
type Summary struct {
	RunID     string
	Users     *UsersResult
	Stages    map[string][]StageResult
	Reports   *Reports
	StartedAt time.Time
	Elapsed   time.Duration
}

// FailedEntities counts failed entity results across stages
func (s *Summary) FailedEntities() int {
	n := 0
	for _, results := range s.Stages {
		n += len(Failed(results))
	}
	return n
}

// Run executes every stage for logins within window:
// users, clips, chats, media, classify, report. Per-entity failures are
// reported in the summary; only setup failures and cancellation end the
// run early.
func (p *Pipeline) Run(ctx context.Context, logins []string, window fetcher.Window) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Stages: make(map[string][]StageResult), StartedAt: start}
	if p.run != nil {
		summary.RunID = p.run.ID
	}

	users, err := p.ResolveUsers(ctx, logins)
	if err != nil {
		return summary, err
	}
	summary.Users = users
	entityIDs := users.IDs()

	if len(entityIDs) == 0 {
		return summary, errors.New(errors.KindNotFound, "pipeline.Run", "none of the logins resolved")
	}

	summary.Stages[StageClips] = p.FetchClips(ctx, entityIDs, window)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	summary.Stages[StageChats] = p.DownloadChats(ctx, entityIDs)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if media := p.DownloadMedia(ctx, entityIDs); media != nil {
		summary.Stages[StageMedia] = media
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	summary.Stages[StageClassify] = p.Classify(ctx, entityIDs)
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	reports, err := p.BuildReports(ctx)
	if err != nil {
		return summary, err
	}
	summary.Reports = reports
	summary.Elapsed = time.Since(start)

	p.logger.InfoWithFields("run completed", map[string]interface{}{
		"run_id":          summary.RunID,
		"entities":        len(entityIDs),
		"failed_entities": summary.FailedEntities(),
		"elapsed":         summary.Elapsed,
	})
	return summary, nil
}

// WriteMetrics exports the collected metrics to the configured textfile
func (p *Pipeline) WriteMetrics() error {
	if p.metrics == nil {
		return nil
	}
	path := p.layout.Resolve(p.cfg.Metrics.TextfilePath)
	if err := p.metrics.WriteTextfile(path); err != nil {
		return err
	}
	p.logger.WithField("path", path).Debug("metrics textfile written")
	return nil
}
