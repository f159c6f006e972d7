package pipeline

import (
	"context"

	"clipharvest/internal/downloader"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/storage"
	"clipharvest/pkg/table"
	"clipharvest/pkg/transcript"
	"clipharvest/pkg/twitch"
)

// DownloadChats fetches the chat replay of every listed clip that has no
// transcript yet. Clips on the entity's no-replay list are not retried.
func (p *Pipeline) DownloadChats(ctx context.Context, entityIDs []string) []StageResult {
	return p.forEachEntity(ctx, StageChats, entityIDs, p.downloadEntityChats)
}

func (p *Pipeline) downloadEntityChats(ctx context.Context, entityID string) StageResult {
	const op = "pipeline.DownloadChats"
	res := StageResult{Counts: map[string]int{}}

	clips, err := table.ReadOrCreate(p.layout.ClipTable(entityID), clipColumns...)
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}

	noReplay := table.NewStore(p.layout.NoReplayTable(entityID), []string{"clip_id"}, noReplayColumns...)
	known, err := noReplay.Load()
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}
	skip, err := known.Keys("clip_id")
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}

	store, err := storage.NewManager(p.layout.ChatDir(entityID), ".json")
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}

	urls := make(map[string]string, clips.Len())
	var tasks []downloader.Task
	for i := 0; i < clips.Len(); i++ {
		clipID := clips.Get(i, "clip_id")
		if clipID == "" || skip[clipID] {
			continue
		}
		urls[clipID] = clips.Get(i, "url")
		if urls[clipID] == "" {
			urls[clipID] = twitch.ClipURL(clipID)
		}
		tasks = append(tasks, downloader.Task{
			EntityID:        entityID,
			ItemID:          clipID,
			DestinationPath: store.Path(clipID),
		})
	}
	res.Counts["no_replay_known"] = len(skip)

	sched := downloader.New("chat", p.cfg.Download.ItemConcurrency,
		downloader.WithFailureTable(p.layout.ChatFailureTable(entityID)),
		downloader.WithMetrics(p.metrics),
		downloader.WithLogger(p.logger))
	res.Counts["retried"] = p.countRetries(sched, tasks, store)

	outcomes := sched.Run(ctx, tasks, func(ctx context.Context, task downloader.Task) error {
		fetched := p.chats.Fetch(ctx, urls[task.ItemID])
		if err := fetched.AsError(op); err != nil {
			return err
		}
		if _, err := transcript.Parse(fetched.Payload, task.ItemID); err != nil {
			return err
		}
		return store.SaveBytes(fetched.Payload, task.ItemID)
	})

	var newNoReplay []map[string]string
	for _, o := range outcomes {
		if o.State == downloader.StateSkipped && o.Reason == downloader.ReasonNoReplay {
			newNoReplay = append(newNoReplay, map[string]string{
				"clip_id":     o.Task.ItemID,
				"user_id":     entityID,
				"recorded_at": formatTime(p.now()),
			})
			skip[o.Task.ItemID] = true
		}
	}
	if _, err := noReplay.AppendRecords(newNoReplay); err != nil {
		p.logger.WithError(err).WithField("entity_id", entityID).Warn("failed to update no-replay list")
	}

	summary := downloader.Summarize(outcomes)
	res.Counts["success"] = summary.Success
	res.Counts["skipped"] = summary.Skipped
	res.Counts["failed"] = summary.Failed
	res.Counts["no_replay"] = len(newNoReplay)

	missing, err := p.checkMissingChats(entityID, clips, skip, store)
	if err != nil {
		p.logger.WithError(err).WithField("entity_id", entityID).Warn("failed to write missing chat check")
	}
	res.Counts["missing"] = missing

	if ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	return res
}

// checkMissingChats lists clips that have neither a transcript nor a
// no-replay entry. The table is a snapshot and is rewritten each time.
func (p *Pipeline) checkMissingChats(entityID string, clips *table.Table, noReplay map[string]bool, store *storage.Manager) (int, error) {
	missing := table.New(missingColumns...)
	checkedAt := formatTime(p.now())
	for _, clipID := range clips.Column("clip_id") {
		if clipID == "" || noReplay[clipID] || store.IsStored(clipID) {
			continue
		}
		missing.Append(map[string]string{
			"clip_id":    clipID,
			"user_id":    entityID,
			"checked_at": checkedAt,
		})
	}
	return missing.Len(), missing.Save(p.layout.MissingChatTable(entityID))
}

// countRetries counts the tasks that failed on an earlier run and still have
// no artifact, so they are about to be attempted again.
func (p *Pipeline) countRetries(sched *downloader.Scheduler, tasks []downloader.Task, store *storage.Manager) int {
	failed, err := sched.PreviouslyFailed()
	if err != nil {
		p.logger.WithError(err).Warn("failed to read failure table")
		return 0
	}
	n := 0
	for _, task := range tasks {
		if failed[task.ItemID] && !store.IsStored(task.ItemID) {
			n++
		}
	}
	return n
}
