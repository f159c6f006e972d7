package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipharvest/pkg/errors"
	"clipharvest/pkg/models"
	"clipharvest/pkg/report"
	"clipharvest/pkg/table"
)

// Reports holds both derived report tables
type Reports struct {
	Users []models.UserAggregate
	Clips []models.ClipSummary
}

// BuildReports recomputes reports.csv from the classified tables and
// clip_reports.csv from the clip tables. Both files are derived and are
// rewritten in full.
func (p *Pipeline) BuildReports(ctx context.Context) (*Reports, error) {
	const op = "pipeline.BuildReports"
	start := time.Now()
	p.progress.StageStarted(StageReport, 2)
	defer p.progress.StageFinished(StageReport)

	users, err := p.userReport(ctx)
	p.progress.EntityDone(StageReport, "reports", err)
	if err != nil {
		return nil, errors.Wrap(errors.KindFatalSetup, op, err)
	}

	clips, err := p.clipReport()
	p.progress.EntityDone(StageReport, "clip_reports", err)
	if err != nil {
		return nil, errors.Wrap(errors.KindFatalSetup, op, err)
	}

	p.logger.InfoWithFields("reports written", map[string]interface{}{
		"entities":      len(users),
		"clip_entities": len(clips),
		"elapsed":       time.Since(start),
	})
	p.metrics.ObserveStage(StageReport, time.Since(start))
	return &Reports{Users: users, Clips: clips}, nil
}

func (p *Pipeline) userReport(ctx context.Context) ([]models.UserAggregate, error) {
	entityIDs, err := p.layout.ClassifiedEntities()
	if err != nil {
		return nil, err
	}

	acc := report.NewAccumulator()
	for _, entityID := range entityIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc.Touch(entityID)

		paths, err := classifiedTables(p.layout.ClassifiedDir(entityID))
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			t, err := table.Read(path)
			if err != nil {
				p.logger.WithError(err).WithField("file_path", path).Warn("skipping unreadable classified table")
				continue
			}
			for _, r := range t.Records() {
				acc.Add(entityID, classifiedFromRow(r))
			}
		}
	}

	results := acc.Results()
	out := table.New(reportColumns...)
	for _, a := range results {
		out.Append(reportRow(a))
	}
	return results, out.Save(p.layout.ReportTable())
}

func (p *Pipeline) clipReport() ([]models.ClipSummary, error) {
	entityIDs, err := p.layout.ClipEntities()
	if err != nil {
		return nil, err
	}

	var summaries []models.ClipSummary
	out := table.New(clipReportColumns...)
	for _, entityID := range entityIDs {
		t, err := table.ReadOrCreate(p.layout.ClipTable(entityID), clipColumns...)
		if err != nil {
			p.logger.WithError(err).WithField("entity_id", entityID).Warn("skipping unreadable clip table")
			continue
		}
		s := report.SummarizeClips(entityID, clipsFromTable(t))
		summaries = append(summaries, s)
		out.Append(clipReportRow(s))
	}
	return summaries, out.Save(p.layout.ClipReportTable())
}

// ArchiveReport recomputes the user report from the SQLite archive
func (p *Pipeline) ArchiveReport(ctx context.Context) ([]models.UserAggregate, error) {
	if p.archive == nil {
		return nil, errors.New(errors.KindInvalidInput, "pipeline.ArchiveReport", "archive is not enabled")
	}
	return p.archive.Aggregates(ctx)
}

func classifiedTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.zst") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}
