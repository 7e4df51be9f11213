package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/transcribe"
)

const shortIDLen = 8

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

// progressPrinter writes one line per finished or retried file.
// Listener calls come from the tracker goroutine only.
type progressPrinter struct {
	out   io.Writer
	total int
}

func newProgressPrinter(out io.Writer, total int) *progressPrinter {
	return &progressPrinter{out: out, total: total}
}

func (p *progressPrinter) header(state *domain.BatchState, files int) {
	fmt.Fprintf(p.out, "Batch %s: %d file(s) to transcribe, %d worker(s), %s output\n",
		shortID(state.ID), files, state.Settings.Workers, state.Settings.OutputFormat)
}

func (p *progressPrinter) onEvent(e batch.Event, stats domain.BatchStatistics) {
	done := stats.Completed + stats.Failed + stats.Skipped
	prefix := fmt.Sprintf("[%d/%d]", done, p.total)
	name := filepath.Base(e.SourcePath)

	switch e.Type {
	case batch.EventCompleted:
		okColor.Fprintf(p.out, "%s ✓ %s", prefix, name)
		fmt.Fprintf(p.out, " → %s (%s audio)\n", e.OutputPath, formatSeconds(e.DurationSeconds))
	case batch.EventFailed:
		failColor.Fprintf(p.out, "%s ✗ %s: %s\n", prefix, name, e.Message)
	case batch.EventRetrying:
		warnColor.Fprintf(p.out, "%s ↻ %s: retry %d (%s)\n", prefix, name, e.RetryCount, e.Kind)
	default:
		dimColor.Fprintf(p.out, "        %s %s\n", e.Type, name)
	}
}

// renderSummary prints the batch totals and session figures as a table.
func renderSummary(out io.Writer, state *domain.BatchState, session batch.SessionSnapshot, model string) {
	stats := state.Statistics

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Batch " + shortID(state.ID) + " " + string(state.Status))
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRow(table.Row{"Completed", stats.Completed})
	tw.AppendRow(table.Row{"Failed", stats.Failed})
	tw.AppendRow(table.Row{"Skipped", stats.Skipped})
	tw.AppendRow(table.Row{"Pending", stats.Pending})
	tw.AppendRow(table.Row{"Retries", session.Retried})
	tw.AppendRow(table.Row{"Audio transcribed", formatSeconds(session.AudioSeconds)})
	tw.AppendRow(table.Row{"Elapsed", formatSeconds(session.ElapsedSeconds)})
	tw.AppendFooter(table.Row{"Estimated cost", fmt.Sprintf("$%.4f", transcribe.EstimateCost(model, session.AudioSeconds))})
	tw.Render()

	if state.Status == domain.BatchStatusPaused {
		warnColor.Fprintf(out, "%d file(s) left. Run `transcriber resume` to continue.\n", stats.Pending+stats.Failed)
	}
}

func renderStatus(status domain.BatchStatus) string {
	switch status {
	case domain.BatchStatusCompleted:
		return okColor.Sprint(status)
	case domain.BatchStatusActive, domain.BatchStatusPaused:
		return warnColor.Sprint(status)
	default:
		return dimColor.Sprint(status)
	}
}

func renderDiagnostic(status domain.DiagnosticStatus) string {
	switch status {
	case domain.DiagnosticStatusPass:
		return okColor.Sprint("PASS")
	case domain.DiagnosticStatusWarn:
		return warnColor.Sprint("WARN")
	default:
		return failColor.Sprint("FAIL")
	}
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}
