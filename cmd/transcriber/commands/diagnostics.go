package commands

import (
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"batch-transcriber/internal/diagnostics"
)

// ErrDiagnosticsFailed is returned when a required check fails.
var ErrDiagnosticsFailed = errors.New("diagnostics reported failures")

func newDiagnosticsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Check tools, API key and directories",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			settings, err := e.settings.Load()
			if err != nil {
				return err
			}

			report := e.deps.newChecker().Run(diagnostics.Input{
				Settings: settings,
				APIKey:   e.cfg.API.Key,
				DataDir:  e.cfg.DataDir,
			})

			tw := table.NewWriter()
			tw.SetOutputMirror(e.out)
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"Check", "Status", "Message", "Hint"})
			for _, item := range report.Items {
				tw.AppendRow(table.Row{item.Name, renderDiagnostic(item.Status), item.Message, item.Hint})
			}
			tw.Render()

			if report.HasFailures {
				return ErrDiagnosticsFailed
			}
			return nil
		},
	}
}
