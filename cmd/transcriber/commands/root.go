// Package commands implements the transcriber CLI command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/config"
	"batch-transcriber/internal/diagnostics"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/observability"
	"batch-transcriber/internal/transcribe"
)

// ErrInterruptedBatchPending is returned by run while an unfinished batch occupies the active slot.
var ErrInterruptedBatchPending = errors.New("an interrupted batch exists; run `transcriber resume` or `transcriber resume --discard` first")

// processorFactory builds the per-batch file processor.
type processorFactory func(cfg *config.AppConfig, settings domain.Settings, bs domain.BatchSettings, logger *slog.Logger) batch.Processor

// downloader fetches remote media, playlists included, to local files.
type downloader interface {
	DownloadAll(ctx context.Context, url string) (transcribe.DownloadResult, error)
}

// sweeper removes orphaned temporary audio.
type sweeper interface {
	CleanupAll(olderThan time.Duration, keep ...string) (int, error)
}

// deps are the seams swapped in tests.
type deps struct {
	newProcessor  processorFactory
	newDownloader func(cfg *config.AppConfig) downloader
	newSweeper    func(cfg *config.AppConfig) sweeper
	newChecker    func() *diagnostics.Checker
	stdin         io.Reader
}

// env is the per-invocation state shared by subcommands.
type env struct {
	configPath string
	logLevel   string
	noColor    bool

	deps     deps
	cfg      *config.AppConfig
	logger   *slog.Logger
	settings *config.JSONStore
	history  *batch.Store
	recorder batch.Recorder
	metrics  *observability.Telemetry
	out      io.Writer
}

// NewRootCommand builds the CLI with production collaborators.
func NewRootCommand() *cobra.Command {
	return newRootCommand(deps{
		newProcessor:  defaultProcessor,
		newDownloader: func(*config.AppConfig) downloader { return transcribe.NewDownloader("") },
		newSweeper:    func(cfg *config.AppConfig) sweeper { return transcribe.NewConverter(cfg.FFmpeg.Timeout) },
		newChecker:    diagnostics.NewChecker,
		stdin:         os.Stdin,
	})
}

func newRootCommand(d deps) *cobra.Command {
	e := &env{deps: d}

	rootCmd := &cobra.Command{
		Use:   "transcriber",
		Short: "Batch audio and video transcription",
		Long: `Transcribes folders of audio and video through a hosted speech API.

Progress is saved continuously; an interrupted batch can be resumed with "transcriber resume".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: e.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return e.teardown()
		},
	}

	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", "", "Config file (default .batch-transcriber.yaml in CWD or $HOME)")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "Override log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&e.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newRunCommand(e))
	rootCmd.AddCommand(newResumeCommand(e))
	rootCmd.AddCommand(newHistoryCommand(e))
	rootCmd.AddCommand(newDownloadCommand(e))
	rootCmd.AddCommand(newDiagnosticsCommand(e))
	rootCmd.AddCommand(newModelsCommand(e))

	return rootCmd
}

func (e *env) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Log.Level = e.logLevel
	}
	if e.noColor {
		color.NoColor = true //nolint:reassign // library global
	}

	e.cfg = cfg
	e.out = cmd.OutOrStdout()
	e.logger = observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		Output: cmd.ErrOrStderr(),
	})
	e.settings = config.NewJSONStore(config.DefaultSettingsPath(cfg.DataDir))

	history, err := batch.NewStore(filepath.Join(cfg.DataDir, "batches"), e.logger)
	if err != nil {
		return fmt.Errorf("open batch history: %w", err)
	}
	e.history = history
	e.sweepTemp()

	telemetry, err := observability.NewTelemetry()
	if err != nil {
		return err
	}
	metrics, err := observability.NewBatchMetrics(telemetry.Meter)
	if err != nil {
		return err
	}
	e.metrics = telemetry
	e.recorder = metrics
	return nil
}

// sweepTemp removes stale temp audio, keeping downloads the interrupted batch still needs.
func (e *env) sweepTemp() {
	if e.deps.newSweeper == nil {
		return
	}
	var keep []string
	if active := e.history.LoadActive(); active != nil {
		keep = batch.SourcePaths(active)
	}
	removed, err := e.deps.newSweeper(e.cfg).CleanupAll(transcribe.StaleTempAge, keep...)
	if err != nil {
		e.logger.Warn("temp audio sweep incomplete", "error", err)
	}
	if removed > 0 {
		e.logger.Debug("removed orphaned temp audio", "files", removed)
	}
}

func (e *env) teardown() error {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.Shutdown(context.Background())
}

// serveMetrics starts the scrape endpoint for the lifetime of ctx when configured.
func (e *env) serveMetrics(ctx context.Context) {
	if e.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		err := observability.Serve(ctx, e.cfg.Metrics.Addr, observability.NewRouter(e.metrics.Handler), e.logger)
		if err != nil {
			e.logger.Error("metrics endpoint stopped", "error", err)
		}
	}()
}

func defaultProcessor(cfg *config.AppConfig, settings domain.Settings, bs domain.BatchSettings, logger *slog.Logger) batch.Processor {
	model := transcribe.ModelString(settings.Model, settings.Specialization, bs.Language)
	return transcribe.NewPipeline(
		transcribe.NewConverter(cfg.FFmpeg.Timeout),
		transcribe.NewClient(cfg.API.URL, cfg.API.Key, model, cfg.API.Timeout),
		transcribe.NewOutputWriter(),
		bs,
		logger,
	)
}
