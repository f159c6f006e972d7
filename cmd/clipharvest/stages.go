package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"clipharvest/pkg/config"
	"clipharvest/pkg/pipeline"
	"clipharvest/pkg/ui"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Resolve streamer logins into users_info.csv",
	Example: `  clipharvest users --logins alpha,beta`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := normalizeLogins(logins)
		if len(targets) == 0 {
			return fmt.Errorf("--logins is required")
		}
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		h, err := newHarness(cfg)
		if err != nil {
			return err
		}
		defer h.Close()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := h.pipeline.ResolveUsers(ctx, targets)
		if err != nil {
			return err
		}
		rows := make([][]string, len(res.Streamers))
		for i, s := range res.Streamers {
			rows[i] = []string{s.Login, s.ID}
		}
		if !quiet {
			fmt.Fprintln(ui.Out, ui.Table([]string{"login", "user id"}, rows))
		}
		if len(res.Missing) > 0 {
			ui.PrintWarning("Unresolved logins", strings.Join(res.Missing, ", "))
		}
		return nil
	},
}

var clipsCmd = &cobra.Command{
	Use:   "clips [entity ids...]",
	Short: "Fetch clip listings into clips/<entity>.csv",
	Long: `Fetch the clip listing of each entity in the configured window. Without
arguments every user in users_info.csv is fetched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(harvestFlags())
		if err != nil {
			return err
		}
		window, err := windowFromConfig(cfg)
		if err != nil {
			return err
		}
		h, err := newHarness(cfg)
		if err != nil {
			return err
		}
		defer h.Close()

		entityIDs := args
		if len(entityIDs) == 0 {
			known, err := h.pipeline.KnownUsers()
			if err != nil {
				return err
			}
			for _, id := range known {
				entityIDs = append(entityIDs, id)
			}
			sort.Strings(entityIDs)
		}
		if len(entityIDs) == 0 {
			return fmt.Errorf("no entities: pass ids or run 'clipharvest users' first")
		}

		ctx, cancel := signalContext()
		defer cancel()

		results := h.pipeline.FetchClips(ctx, entityIDs, window)
		printStageResults(pipeline.StageClips, results)
		return stageError(pipeline.StageClips, results)
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats [entity ids...]",
	Short: "Download chat replays for listed clips",
	Long:  `Download chat replays. Without arguments every entity with a clip table is processed.`,
	RunE: entityStage(pipeline.StageChats, config.Layout.ClipEntities, func(p *pipeline.Pipeline) stageFunc {
		return p.DownloadChats
	}),
}

var mediaCmd = &cobra.Command{
	Use:   "media [entity ids...]",
	Short: "Download videos for clips that have chat",
	Long:  `Download clip videos. Without arguments every entity with transcripts is processed.`,
	RunE: entityStage(pipeline.StageMedia, config.Layout.TranscriptEntities, func(p *pipeline.Pipeline) stageFunc {
		return p.DownloadMedia
	}),
}

var classifyCmd = &cobra.Command{
	Use:   "classify [entity ids...]",
	Short: "Classify chat messages into comments_csv tables",
	Long:  `Classify every transcript. Without arguments every entity with transcripts is processed.`,
	RunE: entityStage(pipeline.StageClassify, config.Layout.TranscriptEntities, func(p *pipeline.Pipeline) stageFunc {
		return p.Classify
	}),
}

var fromArchive bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rebuild reports.csv and clip_reports.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := map[string]interface{}{"archive": fromArchive}
		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}
		h, err := newHarness(cfg)
		if err != nil {
			return err
		}
		defer h.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if fromArchive {
			aggs, err := h.pipeline.ArchiveReport(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(ui.Out, ui.ReportTable(aggs))
			return nil
		}

		reports, err := h.pipeline.BuildReports(ctx)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintln(ui.Out, ui.ReportTable(reports.Users))
			fmt.Fprintln(ui.Out, ui.ClipReportTable(reports.Clips))
		}
		ui.PrintSuccess("Reports written to " + cfg.Layout().ReportTable())
		return nil
	},
}

type stageFunc func(ctx context.Context, entityIDs []string) []pipeline.StageResult

// entityStage builds the RunE of a per-entity stage command. Without
// arguments the entities come from discover.
func entityStage(stage string, discover func(config.Layout) ([]string, error), pick func(*pipeline.Pipeline) stageFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(harvestFlags())
		if err != nil {
			return err
		}
		h, err := newHarness(cfg)
		if err != nil {
			return err
		}
		defer h.Close()

		entityIDs := args
		if len(entityIDs) == 0 {
			if entityIDs, err = discover(cfg.Layout()); err != nil {
				return err
			}
		}
		if len(entityIDs) == 0 {
			ui.PrintWarning("Nothing to do for " + stage)
			return nil
		}

		ctx, cancel := signalContext()
		defer cancel()

		results := pick(h.pipeline)(ctx, entityIDs)
		printStageResults(stage, results)
		return stageError(stage, results)
	}
}

func init() {
	rootCmd.AddCommand(usersCmd, clipsCmd, chatsCmd, mediaCmd, classifyCmd, reportCmd)

	usersCmd.Flags().StringSliceVar(&logins, "logins", nil, "streamer logins, comma separated")
	for _, cmd := range []*cobra.Command{clipsCmd, chatsCmd, mediaCmd, classifyCmd} {
		addHarvestFlags(cmd)
	}
	reportCmd.Flags().BoolVar(&fromArchive, "from-archive", false, "compute the user report from the SQLite archive")
}
