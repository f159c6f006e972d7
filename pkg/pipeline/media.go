package pipeline

import (
	"context"

	"clipharvest/internal/downloader"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/storage"
)

// DownloadMedia fetches the video of every clip that has a transcript.
// Clips without chat are never downloaded.
func (p *Pipeline) DownloadMedia(ctx context.Context, entityIDs []string) []StageResult {
	if p.cfg.Download.SkipMedia {
		p.logger.Info("media downloads disabled, skipping stage")
		return nil
	}
	return p.forEachEntity(ctx, StageMedia, entityIDs, p.downloadEntityMedia)
}

func (p *Pipeline) downloadEntityMedia(ctx context.Context, entityID string) StageResult {
	const op = "pipeline.DownloadMedia"
	res := StageResult{Counts: map[string]int{}}

	transcripts, err := storage.NewManager(p.layout.ChatDir(entityID), ".json")
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}
	videos, err := storage.NewManager(p.layout.MediaDir(entityID), ".mp4")
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}

	clipIDs := transcripts.IDs()
	tasks := make([]downloader.Task, len(clipIDs))
	for i, clipID := range clipIDs {
		tasks[i] = downloader.Task{
			EntityID:        entityID,
			ItemID:          clipID,
			DestinationPath: videos.Path(clipID),
		}
	}

	sched := downloader.New("media", p.cfg.Download.ItemConcurrency,
		downloader.WithFailureTable(p.layout.MediaFailureTable(entityID)),
		downloader.WithMetrics(p.metrics),
		downloader.WithLogger(p.logger))
	res.Counts["retried"] = p.countRetries(sched, tasks, videos)

	outcomes := sched.Run(ctx, tasks, func(ctx context.Context, task downloader.Task) error {
		return p.media.Download(ctx, videos, task.ItemID)
	})

	summary := downloader.Summarize(outcomes)
	res.Counts["success"] = summary.Success
	res.Counts["skipped"] = summary.Skipped
	res.Counts["failed"] = summary.Failed

	if ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	return res
}
