package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"batch-transcriber/internal/config"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/scan"
)

// settingsFlags override stored settings for one invocation.
type settingsFlags struct {
	format         string
	language       string
	model          string
	specialization string
	outputDir      string
	diarize        bool
	smartFormat    bool
	workers        int
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format: txt, srt, vtt")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "Spoken language code, or auto")
	cmd.Flags().StringVar(&f.model, "model", "", "Speech model ID (see `transcriber models`)")
	cmd.Flags().StringVar(&f.specialization, "specialization", "", "Model specialization for English audio")
	cmd.Flags().StringVarP(&f.outputDir, "output-dir", "o", "", "Directory for transcripts (default: next to each source)")
	cmd.Flags().BoolVar(&f.diarize, "diarize", false, "Label speakers")
	cmd.Flags().BoolVar(&f.smartFormat, "smart-format", true, "Apply punctuation and formatting")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Concurrent files (1-10)")
}

// apply overlays the flags the user set on stored settings.
func (f *settingsFlags) apply(cmd *cobra.Command, settings domain.Settings) (domain.Settings, error) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		format, err := domain.ParseOutputFormat(f.format)
		if err != nil {
			return settings, err
		}
		settings.OutputFormat = format
	}
	if flags.Changed("language") {
		settings.Language = f.language
	}
	if flags.Changed("model") {
		settings.Model = f.model
	}
	if flags.Changed("specialization") {
		settings.Specialization = f.specialization
	}
	if flags.Changed("output-dir") {
		settings.OutputDir = f.outputDir
	}
	if flags.Changed("diarize") {
		settings.Diarize = f.diarize
	}
	if flags.Changed("smart-format") {
		settings.SmartFormat = f.smartFormat
	}
	if flags.Changed("workers") {
		settings.Workers = f.workers
	}
	if err := config.ValidateSettings(settings); err != nil {
		return settings, err
	}
	return config.Normalize(settings), nil
}

// RunCommand holds the configuration for the run command.
type RunCommand struct {
	env       *env
	settings  settingsFlags
	recursive bool
}

func newRunCommand(e *env) *cobra.Command {
	rc := &RunCommand{env: e}

	cmd := &cobra.Command{
		Use:   "run <file|dir>...",
		Short: "Transcribe files and folders as one batch",
		Long: `Transcribe every media file given, expanding directories.

Ctrl-C stops dispatching new files, lets in-flight files finish and pauses the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: rc.run,
	}

	rc.settings.register(cmd)
	cmd.Flags().BoolVarP(&rc.recursive, "recursive", "r", false, "Descend into subdirectories")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	e := rc.env
	if e.history.HasActive() {
		return ErrInterruptedBatchPending
	}

	stored, err := e.settings.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings, err := rc.settings.apply(cmd, stored)
	if err != nil {
		return err
	}

	files, err := scan.Expand(args, rc.recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no media files found in %v", args)
	}

	return e.startBatch(cmd, files, settings)
}

// startBatch begins a new active batch over files and runs it until done or interrupted.
func (e *env) startBatch(cmd *cobra.Command, files []string, settings domain.Settings) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := e.coordinator()
	state, err := coordinator.Begin(settings.BatchSettings(), files)
	if err != nil {
		return err
	}
	return e.execute(ctx, coordinator, state, files, settings)
}
