package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// DownloadCommand holds the configuration for the download command.
type DownloadCommand struct {
	env        *env
	settings   settingsFlags
	transcribe bool
}

func newDownloadCommand(e *env) *cobra.Command {
	dc := &DownloadCommand{env: e}

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Fetch audio from a URL with yt-dlp",
		Long: `Fetch audio from a video URL with yt-dlp.

Playlist and channel links are expanded and every entry is fetched in turn.`,
		Args:  cobra.ExactArgs(1),
		RunE:  dc.run,
	}

	dc.settings.register(cmd)
	cmd.Flags().BoolVarP(&dc.transcribe, "transcribe", "t", false, "Transcribe the downloaded files as one batch")

	return cmd
}

func (dc *DownloadCommand) run(cmd *cobra.Command, args []string) error {
	e := dc.env
	if dc.transcribe && e.history.HasActive() {
		return ErrInterruptedBatchPending
	}

	result, err := e.deps.newDownloader(e.cfg).DownloadAll(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	for _, path := range result.Paths {
		size := "unknown size"
		if info, statErr := os.Stat(path); statErr == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(e.out, "Downloaded %s (%s)\n", path, size)
	}
	for _, failed := range result.Failed {
		fmt.Fprintf(e.out, "%s %s: %v\n", color.RedString("Failed"), failed.URL, failed.Err)
	}
	if len(result.Paths) > 1 || len(result.Failed) > 0 {
		fmt.Fprintf(e.out, "%s %d of %d entries\n", result.Kind, len(result.Paths), len(result.Paths)+len(result.Failed))
	}

	if !dc.transcribe {
		return nil
	}

	stored, err := e.settings.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	batchSettings, err := dc.settings.apply(cmd, stored)
	if err != nil {
		return err
	}
	return e.startBatch(cmd, result.Paths, batchSettings)
}
