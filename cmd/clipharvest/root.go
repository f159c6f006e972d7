package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"clipharvest/pkg/archive"
	"clipharvest/pkg/auth"
	"clipharvest/pkg/config"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/metrics"
	"clipharvest/pkg/pipeline"
	"clipharvest/pkg/twitch"
	"clipharvest/pkg/ui"
)

var (
	// Version information
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	dataRoot   string
	profile    string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "clipharvest",
	Short: "Harvest Twitch clips and chat replays and classify chat activity",
	Long: `clipharvest lists a set of broadcasters' clips through the Helix API,
downloads each clip's chat replay and video, classifies every chat message
(cheers, subscriptions, gifted subscriptions, badges, emoji) and writes
per-broadcaster reports.

All output is written as flat CSV tables under the data root. Every stage is
idempotent: artifacts already on disk are skipped, tables merge on their key.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			return
		}
		if cmd.Name() != "version" && cmd.Name() != "help" {
			ui.PrintLogo()
		}
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.clipharvest.yaml or ~/.config/clipharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "data directory (default: data)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", auth.DefaultProfile, "stored credential profile")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress logo and progress output")

	rootCmd.SetVersionTemplate(`clipharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges file, env and flags, then initializes the global logger
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	flags["log-level"] = logLevel
	flags["data-root"] = dataRoot

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// applyCredentials fills Helix credentials from the credential store
func applyCredentials(cfg *config.Config) error {
	manager, err := auth.NewManager()
	if err != nil {
		logger.WithError(err).Warn("credential manager unavailable")
	} else if err := manager.Apply(&cfg.Twitch, profile); err != nil && !errors.Is(err, auth.ErrCredentialsNotFound) {
		return err
	}

	if cfg.Twitch.ClientID == "" || cfg.Twitch.AccessToken == "" {
		return fmt.Errorf("missing Twitch credentials: run 'clipharvest auth login' or set CLIPHARVEST_CLIENT_ID and CLIPHARVEST_ACCESS_TOKEN")
	}
	return nil
}

// harness owns everything a command needs to drive the pipeline
type harness struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	tracker  *ui.StageTracker
	archive  *archive.Archive
}

func newHarness(cfg *config.Config, opts ...pipeline.Option) (*harness, error) {
	if err := applyCredentials(cfg); err != nil {
		return nil, err
	}
	log := logger.GetLogger()
	h := &harness{cfg: cfg, tracker: ui.NewStageTracker(os.Stderr, quiet)}

	client := twitch.NewClient(cfg.Twitch, twitch.WithLogger(log))

	opts = append([]pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithProgress(h.tracker),
	}, opts...)

	if cfg.Metrics.Enabled {
		opts = append(opts, pipeline.WithMetrics(metrics.New()))
	}
	if cfg.Archive.Enabled {
		a, err := archive.Open(cfg.Layout().Resolve(cfg.Archive.Path))
		if err != nil {
			return nil, err
		}
		h.archive = a
		opts = append(opts, pipeline.WithArchive(a))
	}

	p, err := pipeline.New(cfg, client, opts...)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.pipeline = p
	return h, nil
}

// Close flushes metrics and closes the archive
func (h *harness) Close() {
	if h.pipeline != nil {
		if err := h.pipeline.WriteMetrics(); err != nil {
			logger.WithError(err).Warn("failed to write metrics textfile")
		}
	}
	if h.archive != nil {
		if err := h.archive.Close(); err != nil {
			logger.WithError(err).Warn("failed to close archive")
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printStageResults renders one table row per entity with its counts
func printStageResults(stage string, results []pipeline.StageResult) {
	if quiet || len(results) == 0 {
		return
	}
	keys := pipeline.CountKeys(results)
	headers := append([]string{"entity"}, keys...)
	headers = append(headers, "status")

	sorted := make([]pipeline.StageResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EntityID < sorted[j].EntityID })

	rows := make([][]string, len(sorted))
	for i, r := range sorted {
		row := []string{r.EntityID}
		for _, k := range keys {
			row = append(row, strconv.Itoa(r.Counts[k]))
		}
		switch {
		case r.Err != nil:
			row = append(row, "error: "+r.Err.Error())
		case r.Resumed:
			row = append(row, "resumed")
		default:
			row = append(row, "ok")
		}
		rows[i] = row
	}

	ui.PrintHighlight("[" + stage + "]")
	fmt.Fprintln(ui.Out, ui.Table(headers, rows))
}

// stageError turns failed entities into a command error
func stageError(stage string, results []pipeline.StageResult) error {
	if failed := pipeline.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%s: %d of %d entities failed", stage, len(failed), len(results))
	}
	return nil
}
