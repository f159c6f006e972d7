package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipharvest/pkg/checkpoint"
	"clipharvest/pkg/config"
	"clipharvest/pkg/fetcher"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/pipeline"
	"clipharvest/pkg/twitch"
	"clipharvest/pkg/ui"
)

var (
	logins            []string
	startedAt         string
	endedAt           string
	resumeID          string
	fetchConcurrency  int
	entityConcurrency int
	itemConcurrency   int
	compressTables    bool
	enableArchive     bool
	enableMetrics     bool
	skipMedia         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage for a set of streamers",
	Long: `Resolve streamer logins, then for each streamer list its clips in the
window, download chat replays and clip videos, classify chat messages and
rebuild the reports.

Progress is recorded in a run checkpoint under <data-root>/runs. Pass
--resume with a run id to skip stages that already completed for the same
window.`,
	Example: `  # Last 90 days for two streamers
  clipharvest run --logins alpha,beta

  # Fixed window, chat only
  clipharvest run --logins alpha --start 2024-01-01T00:00:00Z --end 2024-02-01T00:00:00Z --skip-media

  # Continue an interrupted run
  clipharvest run --resume 2f6c0f8e-8f6e-4a57-9d55-0b7d2a1c9e11`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addHarvestFlags(runCmd)
	runCmd.Flags().StringSliceVar(&logins, "logins", nil, "streamer logins, comma separated")
	runCmd.Flags().StringVar(&resumeID, "resume", "", "resume the run with this id")
}

// addHarvestFlags registers the flags shared by the harvesting commands
func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&startedAt, "start", "", "window start, RFC3339 (default: 90 days ago)")
	cmd.Flags().StringVar(&endedAt, "end", "", "window end, RFC3339 (default: today)")
	cmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "concurrent clip listings")
	cmd.Flags().IntVar(&entityConcurrency, "entity-concurrency", 0, "entities processed at once")
	cmd.Flags().IntVar(&itemConcurrency, "item-concurrency", 0, "downloads per entity at once")
	cmd.Flags().BoolVar(&compressTables, "compress", false, "write zstd-compressed tables")
	cmd.Flags().BoolVar(&enableArchive, "archive", false, "mirror classified messages into SQLite")
	cmd.Flags().BoolVar(&enableMetrics, "metrics", false, "write a Prometheus textfile at the end")
	cmd.Flags().BoolVar(&skipMedia, "skip-media", false, "do not download clip videos")
}

func harvestFlags() map[string]interface{} {
	return map[string]interface{}{
		"started-at":         startedAt,
		"ended-at":           endedAt,
		"concurrency":        fetchConcurrency,
		"entity-concurrency": entityConcurrency,
		"item-concurrency":   itemConcurrency,
		"compress":           compressTables,
		"archive":            enableArchive,
		"metrics":            enableMetrics,
		"skip-media":         skipMedia,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(harvestFlags())
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	window, err := windowFromConfig(cfg)
	if err != nil {
		return err
	}

	runs, err := checkpoint.NewManager(cfg.Layout().RunsDir(), log)
	if err != nil {
		return err
	}
	run, targets, window, err := prepareRun(runs, normalizeLogins(logins), window)
	if err != nil {
		return err
	}

	h, err := newHarness(cfg, pipeline.WithCheckpoint(runs, run))
	if err != nil {
		return err
	}
	defer h.Close()

	ui.PrintInfo("Run", run.ID)
	ui.PrintInfo("Streamers", strings.Join(targets, ", "))
	ui.PrintInfo("Window", window.Start.Format(time.RFC3339)+" → "+window.End.Format(time.RFC3339))

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := h.pipeline.Run(ctx, targets, window)
	printSummary(summary)
	if err != nil {
		return err
	}
	if n := summary.FailedEntities(); n > 0 {
		ui.PrintWarning(fmt.Sprintf("%d entity stages failed; rerun with --resume %s", n, run.ID))
		return nil
	}
	ui.PrintSuccess("Run completed in " + summary.Elapsed.Round(time.Second).String())
	return nil
}

// prepareRun loads the run to resume or creates a new one. A resumed run
// keeps its recorded window unless --start/--end are given, in which case
// they must match it.
func prepareRun(runs *checkpoint.Manager, requested []string, window fetcher.Window) (*checkpoint.Run, []string, fetcher.Window, error) {
	if resumeID == "" {
		if len(requested) == 0 {
			return nil, nil, window, fmt.Errorf("--logins is required")
		}
		run, err := runs.Create(requested, window.Start, window.End)
		return run, requested, window, err
	}

	run, err := runs.Load(resumeID)
	if err != nil {
		return nil, nil, window, err
	}
	if run == nil {
		return nil, nil, window, fmt.Errorf("run %s not found", resumeID)
	}
	if startedAt == "" && endedAt == "" {
		window = fetcher.Window{Start: run.WindowStart, End: run.WindowEnd}
	}
	if !run.SameWindow(window.Start, window.End) {
		return nil, nil, window, fmt.Errorf("run %s covers %s to %s; pass the same window to resume it",
			run.ID, run.WindowStart.Format(time.RFC3339), run.WindowEnd.Format(time.RFC3339))
	}
	if len(requested) == 0 {
		requested = run.Logins
	}
	return run, requested, window, nil
}

func normalizeLogins(in []string) []string {
	var out []string
	for _, l := range in {
		l = twitch.NormalizeLogin(l)
		if l == "" {
			continue
		}
		if !twitch.IsValidLogin(l) {
			ui.PrintWarning("Ignoring invalid login", l)
			continue
		}
		out = append(out, l)
	}
	return out
}

func printSummary(s *pipeline.Summary) {
	if s == nil {
		return
	}
	if s.Users != nil && len(s.Users.Missing) > 0 {
		ui.PrintWarning("Unresolved logins", strings.Join(s.Users.Missing, ", "))
	}
	for _, stage := range []string{pipeline.StageClips, pipeline.StageChats, pipeline.StageMedia, pipeline.StageClassify} {
		printStageResults(stage, s.Stages[stage])
	}
	if s.Reports != nil && !quiet {
		ui.PrintHighlight("[reports]")
		fmt.Fprintln(ui.Out, ui.ReportTable(s.Reports.Users))
		fmt.Fprintln(ui.Out, ui.ClipReportTable(s.Reports.Clips))
	}
}

// windowFromConfig resolves the configured fetch window
func windowFromConfig(cfg *config.Config) (fetcher.Window, error) {
	start, end, err := cfg.Fetch.Window(time.Now())
	if err != nil {
		return fetcher.Window{}, err
	}
	return fetcher.Window{Start: start, End: end}, nil
}
