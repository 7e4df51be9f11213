package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"batch-transcriber/internal/batch"
)

// ResumeCommand holds the configuration for the resume command.
type ResumeCommand struct {
	env     *env
	yes     bool
	discard bool
}

func newResumeCommand(e *env) *cobra.Command {
	rc := &ResumeCommand{env: e}

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume or discard the interrupted batch",
		Long: `Resume the batch that was paused or interrupted.

Files whose transcripts already exist are skipped; failed and in-flight files run again.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().BoolVarP(&rc.yes, "yes", "y", false, "Resume without asking")
	cmd.Flags().BoolVar(&rc.discard, "discard", false, "Delete the interrupted batch without running it")
	cmd.MarkFlagsMutuallyExclusive("yes", "discard")

	return cmd
}

func (rc *ResumeCommand) run(cmd *cobra.Command, _ []string) error {
	e := rc.env
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := batch.NewController(e.history, e.logger)
	prompt, _ := controller.Prompt()
	if prompt == nil {
		fmt.Fprintln(e.out, "No interrupted batch.")
		return nil
	}

	plan, err := controller.Check(ctx, rc.decider(e.deps.stdin, e.out))
	if err != nil {
		return err
	}
	if plan == nil {
		fmt.Fprintf(e.out, "Batch %s discarded.\n", shortID(prompt.BatchID))
		return nil
	}

	rec := plan.Reconciliation
	if len(rec.Skipped)+len(rec.Reverted)+len(rec.Requeued) > 0 {
		fmt.Fprintf(e.out, "Reconciled: %d skipped (source missing), %d reverted (output missing), %d requeued\n",
			len(rec.Skipped), len(rec.Reverted), len(rec.Requeued))
	}
	if len(plan.Files) == 0 {
		fmt.Fprintln(e.out, "Nothing left to transcribe.")
	}

	settings, err := e.settings.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	return e.execute(ctx, e.coordinator(), plan.State, plan.Files, settings)
}

// decider answers from the flags, or asks on in.
func (rc *ResumeCommand) decider(in io.Reader, out io.Writer) batch.Decider {
	return batch.DeciderFunc(func(_ context.Context, p batch.ResumePrompt) (batch.Decision, error) {
		switch {
		case rc.yes:
			return batch.DecisionResume, nil
		case rc.discard:
			return batch.DecisionDiscard, nil
		}

		fmt.Fprintf(out, "Batch %s started %s: %d of %d files done, %d remaining.\nResume? [Y/n] ",
			shortID(p.BatchID), humanize.Time(p.CreatedAt), p.Completed, p.Total, p.Remaining)

		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return batch.DecisionDiscard, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "", "y", "yes":
			return batch.DecisionResume, nil
		default:
			return batch.DecisionDiscard, nil
		}
	})
}
