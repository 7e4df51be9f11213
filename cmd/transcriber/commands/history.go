package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
)

// Output formats for history show.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// ErrAmbiguousID is returned when a batch ID prefix matches more than one batch.
var ErrAmbiguousID = errors.New("batch id prefix is ambiguous")

// ErrUnknownOutput is returned for an unsupported --output value.
var ErrUnknownOutput = errors.New("unknown output format")

func newHistoryCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune stored batches",
	}

	cmd.AddCommand(newHistoryListCommand(e))
	cmd.AddCommand(newHistoryShowCommand(e))
	cmd.AddCommand(newHistoryArchiveCommand(e))
	cmd.AddCommand(newHistoryDeleteCommand(e))
	cmd.AddCommand(newHistoryCleanupCommand(e))
	cmd.AddCommand(newHistoryRetryCommand(e))

	return cmd
}

func newHistoryListCommand(e *env) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches newest first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var filter domain.BatchStatus
			if status != "" {
				parsed, err := domain.ParseBatchStatus(status)
				if err != nil {
					return err
				}
				filter = parsed
			}

			summaries, err := e.history.List(filter)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(e.out, "No batches.")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(e.out)
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"ID", "Status", "Created", "Finished", "Files", "Done", "Failed", "Skipped"})
			for _, s := range summaries {
				tw.AppendRow(table.Row{
					shortID(s.ID), renderStatus(s.Status), formatTime(&s.CreatedAt), formatTime(s.CompletedAt),
					s.TotalFiles, s.CompletedFiles, s.FailedFiles, s.SkippedFiles,
				})
			}
			tw.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d batch(es)", len(summaries))})
			tw.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only batches with this status: active, paused, completed, archived")
	return cmd
}

func newHistoryShowCommand(e *env) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one batch with its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := e.resolveID(args[0])
			if err != nil {
				return err
			}
			state := e.history.LoadByID(id)
			if state == nil {
				return fmt.Errorf("%w: %s", batch.ErrBatchNotFound, args[0])
			}

			switch output {
			case OutputTable:
				renderBatch(e, state)
				return nil
			case OutputJSON:
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			case OutputYAML:
				return writeYAML(e, state)
			default:
				return fmt.Errorf("%w: %q", ErrUnknownOutput, output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", OutputTable, "Output format: table, json, yaml")
	return cmd
}

func newHistoryArchiveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Mark a completed batch as archived",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := e.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := e.history.Archive(id); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Archived batch %s.\n", shortID(id))
			return nil
		},
	}
}

func newHistoryDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored batch record",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := e.resolveID(args[0])
			if err != nil {
				return err
			}
			if err := e.history.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Deleted batch %s.\n", shortID(id))
			return nil
		},
	}
}

func newHistoryCleanupCommand(e *env) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete batches completed more than --days ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("days") {
				days = e.cfg.Batch.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			deleted, err := e.history.CleanupOlderThan(days)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Deleted %d batch(es) older than %d day(s).\n", deleted, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in days (default batch.retention_days)")
	return cmd
}

// resolveID expands a unique ID prefix as printed by history list.
func (e *env) resolveID(prefix string) (string, error) {
	summaries, err := e.history.List("")
	if err != nil {
		return "", err
	}

	var matches []string
	for _, s := range summaries {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}
	if active := e.history.LoadActive(); active != nil && strings.HasPrefix(active.ID, prefix) && !lo.Contains(matches, active.ID) {
		matches = append(matches, active.ID)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", batch.ErrBatchNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %d batches", ErrAmbiguousID, prefix, len(matches))
	}
}

func renderBatch(e *env, state *domain.BatchState) {
	stats := state.Statistics
	fmt.Fprintf(e.out, "Batch %s  %s\n", state.ID, renderStatus(state.Status))
	fmt.Fprintf(e.out, "Created %s, updated %s, finished %s\n",
		formatTime(&state.CreatedAt), formatTime(&state.LastUpdated), formatTime(state.CompletedAt))
	fmt.Fprintf(e.out, "Settings: %s, language %s, %d worker(s), diarize %t\n",
		state.Settings.OutputFormat, state.Settings.Language, state.Settings.Workers, state.Settings.Diarize)

	tw := table.NewWriter()
	tw.SetOutputMirror(e.out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"File", "Status", "Retries", "Audio", "Output / Error"})
	for _, f := range state.Files {
		detail := f.OutputPath
		if f.ErrorMessage != "" {
			detail = f.ErrorMessage
		}
		audio := "-"
		if f.DurationSeconds != nil {
			audio = formatSeconds(*f.DurationSeconds)
		}
		tw.AppendRow(table.Row{filepath.Base(f.SourcePath), f.Status, f.RetryCount, audio, detail})
	}
	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d file(s)", stats.TotalFiles),
		fmt.Sprintf("%d done, %d failed", stats.Completed, stats.Failed),
		"",
		formatSeconds(stats.TotalDurationSeconds),
		fmt.Sprintf("%d skipped, %d pending", stats.Skipped, stats.Pending),
	})
	tw.Render()
}

// writeYAML re-encodes the JSON form so YAML keys match the stored record.
func writeYAML(e *env, state *domain.BatchState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(e.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
