package pipeline

import (
	"context"

	"clipharvest/pkg/errors"
	"clipharvest/pkg/models"
	"clipharvest/pkg/storage"
	"clipharvest/pkg/table"
	"clipharvest/pkg/transcript"
)

// Classify derives the classified table of every transcript an entity has.
// Undecodable files and rejected records go to the malformed log; files
// with no records go to the empty log. Rows merge on message_id, so a
// repeated run leaves the tables unchanged.
func (p *Pipeline) Classify(ctx context.Context, entityIDs []string) []StageResult {
	return p.forEachEntity(ctx, StageClassify, entityIDs, p.classifyEntity)
}

func (p *Pipeline) classifyEntity(ctx context.Context, entityID string) StageResult {
	const op = "pipeline.Classify"
	res := StageResult{Counts: map[string]int{}}
	log := p.logger.WithField("entity_id", entityID)

	transcripts, err := storage.NewManager(p.layout.ChatDir(entityID), ".json")
	if err != nil {
		res.Err = errors.Wrap(errors.KindFatalSetup, op, err)
		return res
	}

	var malformed, empty []map[string]string
	now := formatTime(p.now())

	for _, clipID := range transcripts.IDs() {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			break
		}
		path := transcripts.Path(clipID)
		res.Counts["transcripts"]++

		t, err := transcript.ReadFile(path)
		if err != nil {
			log.WithError(err).WithField("file_path", path).Warn("transcript could not be decoded")
			malformed = append(malformed, map[string]string{
				"datetime": now, "user_id": entityID, "file_path": path, "message": err.Error(),
			})
			res.Counts["malformed_files"]++
			continue
		}
		if t.Empty() {
			empty = append(empty, map[string]string{"datetime": now, "user_id": entityID, "file_path": path})
			res.Counts["empty"]++
			continue
		}
		for _, bad := range t.Malformed {
			malformed = append(malformed, map[string]string{
				"datetime": now, "user_id": entityID, "file_path": path, "message": bad.Error(),
			})
		}
		res.Counts["malformed"] += len(t.Malformed)
		p.metrics.MalformedRecords("transcript", len(t.Malformed))

		classified := p.processor.ProcessAll(t.Messages)
		added, err := p.writeClassified(ctx, entityID, clipID, classified)
		if err != nil {
			res.Err = err
			break
		}
		res.Counts["messages"] += len(classified)
		res.Counts["added"] += added
		for _, m := range classified {
			p.metrics.MessageClassified(m.Category)
			if m.Category != models.CategoryPlain {
				res.Counts[string(m.Category)]++
			}
		}
	}

	if err := p.appendLog(p.layout.MalformedTable(entityID), []string{"file_path", "message"}, malformedColumns, malformed); err != nil {
		log.WithError(err).Warn("failed to write malformed transcript log")
	}
	if err := p.appendLog(p.layout.EmptyTranscriptTable(entityID), []string{"file_path"}, emptyColumns, empty); err != nil {
		log.WithError(err).Warn("failed to write empty transcript log")
	}
	return res
}

func (p *Pipeline) writeClassified(ctx context.Context, entityID, clipID string, msgs []models.ClassifiedMessage) (int, error) {
	const op = "pipeline.Classify"

	records := make([]map[string]string, len(msgs))
	for i, m := range msgs {
		records[i] = classifiedRow(m)
	}
	store := table.NewStore(p.layout.ClassifiedTable(entityID, clipID), []string{"message_id"}, classifiedColumns...)
	stats, err := store.AppendRecords(records)
	if err != nil {
		return 0, errors.Wrap(errors.KindFatalSetup, op, err)
	}

	if p.archive != nil {
		if _, err := p.archive.WriteMessages(ctx, entityID, msgs); err != nil {
			p.logger.WithError(err).WithFields(map[string]interface{}{
				"entity_id": entityID,
				"clip_id":   clipID,
			}).Warn("failed to mirror messages into archive")
		}
	}
	return stats.Added, nil
}

func (p *Pipeline) appendLog(path string, keys, columns []string, records []map[string]string) error {
	if len(records) == 0 {
		return nil
	}
	_, err := table.NewStore(path, keys, columns...).AppendRecords(records)
	return err
}
