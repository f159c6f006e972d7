package pipeline

import (
	"context"
	"sort"
	"time"

	"clipharvest/pkg/errors"
	"clipharvest/pkg/fetcher"
	"clipharvest/pkg/table"
)

// FetchClips walks the clip listing of every entity in window and merges
// the clips into each entity's clip table. Walks run concurrently through
// the fetcher; persistence happens per entity afterwards. A truncated walk
// still persists what it collected but is reported as failed so a resumed
// run fetches it again.
func (p *Pipeline) FetchClips(ctx context.Context, entityIDs []string, window fetcher.Window) []StageResult {
	start := time.Now()
	p.progress.StageStarted(StageClips, len(entityIDs))
	defer p.progress.StageFinished(StageClips)

	results := make([]StageResult, len(entityIDs))
	var queries []fetcher.Query
	var slots []int
	for i, id := range entityIDs {
		if p.checkpoints != nil && p.checkpoints.Done(p.run, id, StageClips) {
			results[i] = StageResult{Stage: StageClips, EntityID: id, Resumed: true}
			p.progress.EntityDone(StageClips, id, nil)
			continue
		}
		queries = append(queries, fetcher.Query{BroadcasterID: id, Window: window})
		slots = append(slots, i)
	}

	var withoutClips []map[string]string
	for j, fetched := range p.fetcher.FetchMany(ctx, queries) {
		res := p.persistClips(ctx, fetched)
		res.Elapsed = time.Since(start)
		results[slots[j]] = res
		p.finishEntity(res)

		if res.Err == nil && len(fetched.Clips) == 0 {
			withoutClips = append(withoutClips, map[string]string{
				"user_id":      res.EntityID,
				"window_start": formatTime(window.Start),
				"window_end":   formatTime(window.End),
				"recorded_at":  formatTime(p.now()),
			})
		}
	}

	if len(withoutClips) > 0 {
		store := table.NewStore(p.layout.UsersWithoutClipsTable(), []string{"user_id", "window_start", "window_end"}, noClipsColumns...)
		if _, err := store.AppendRecords(withoutClips); err != nil {
			p.logger.WithError(err).Warn("failed to record users without clips")
		}
	}
	return results
}

func (p *Pipeline) persistClips(ctx context.Context, fetched *fetcher.Result) StageResult {
	const op = "pipeline.FetchClips"
	entityID := fetched.Query.BroadcasterID
	res := StageResult{Stage: StageClips, EntityID: entityID, Counts: map[string]int{
		"fetched":   len(fetched.Clips),
		"pages":     fetched.Pages,
		"malformed": fetched.Malformed,
	}}

	if fetched.Err != nil && !fetched.Truncated {
		res.Err = fetched.Err
		return res
	}
	if fetched.Truncated {
		res.Counts["truncated"] = 1
		res.Err = fetched.Err
	}
	p.metrics.MalformedRecords("clips", fetched.Malformed)

	store := table.NewStore(p.layout.ClipTable(entityID), []string{"clip_id"}, clipColumns...)
	batch := table.New(clipColumns...)
	for _, c := range fetched.Clips {
		batch.Append(clipRow(c))
	}
	stats, err := store.Append(batch)
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}
	res.Counts["added"] = stats.Added
	res.Counts["total"] = stats.Total

	merged, err := store.Load()
	if err != nil {
		p.logger.WithError(err).WithField("entity_id", entityID).Warn("failed to reload clip table")
		return res
	}
	res.Counts["videos"] = p.enrichVideos(ctx, entityID, merged)
	return res
}

// enrichVideos looks up the distinct VODs behind an entity's clips and
// merges them into the entity's video table. Failures are logged only.
func (p *Pipeline) enrichVideos(ctx context.Context, entityID string, clips *table.Table) int {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range clips.Column("video_id") {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0
	}
	sort.Strings(ids)

	log := p.logger.WithField("entity_id", entityID)
	videos, err := p.helix.VideosByID(ctx, ids)
	if err != nil {
		log.WithError(err).Warn("video enrichment failed")
		return 0
	}

	records := make([]map[string]string, len(videos))
	for i, v := range videos {
		records[i] = videoRow(v)
	}
	store := table.NewStore(p.layout.VideosTable(entityID), []string{"video_id"}, videoColumns...)
	stats, err := store.AppendRecords(records)
	if err != nil {
		log.WithError(err).Warn("failed to write video table")
		return 0
	}
	return stats.Total
}
