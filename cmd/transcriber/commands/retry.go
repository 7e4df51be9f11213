package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"batch-transcriber/internal/batch"
)

// RetryCommand holds the configuration for the history retry command.
type RetryCommand struct {
	env *env
}

func newHistoryRetryCommand(e *env) *cobra.Command {
	rc := &RetryCommand{env: e}

	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Run the failed files of a finished batch again",
		Long: `Run the failed files of a finished batch again.

Failed files go back to pending with one more retry counted; completed files are left alone.
The batch takes the active slot until it finishes or is paused.`,
		Args: cobra.ExactArgs(1),
		RunE: rc.run,
	}
}

func (rc *RetryCommand) run(cmd *cobra.Command, args []string) error {
	e := rc.env
	if e.history.HasActive() {
		return ErrInterruptedBatchPending
	}

	id, err := e.resolveID(args[0])
	if err != nil {
		return err
	}

	settings, err := e.settings.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	plan, err := batch.NewController(e.history, e.logger).RetryFailed(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Retrying %d failed file(s) of batch %s", len(plan.Reconciliation.Requeued), shortID(id))
	if n := len(plan.Reconciliation.Skipped); n > 0 {
		fmt.Fprintf(e.out, ", %d skipped (source missing)", n)
	}
	fmt.Fprintln(e.out)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return e.execute(ctx, e.coordinator(), plan.State, plan.Files, settings)
}
