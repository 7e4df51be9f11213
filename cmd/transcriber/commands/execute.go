package commands

import (
	"context"
	"errors"
	"fmt"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
)

var (
	// ErrBatchPaused is returned when a run stops before every file reached a result.
	ErrBatchPaused = errors.New("batch paused before finishing; run `transcriber resume` to continue")
	// ErrFilesFailed is returned when a finished batch has failed files.
	ErrFilesFailed = errors.New("some files failed")
)

func (e *env) coordinator() *batch.Coordinator {
	return batch.NewCoordinator(e.history, batch.CoordinatorOptions{
		WriteInterval: e.cfg.Batch.WriteInterval,
		FlushTimeout:  e.cfg.Batch.FlushTimeout,
		Recorder:      e.recorder,
		Logger:        e.logger,
	})
}

// execute runs files of state in the foreground, printing progress and a summary.
func (e *env) execute(ctx context.Context, coordinator *batch.Coordinator, state *domain.BatchState, files []string, settings domain.Settings) error {
	session := batch.NewSessionStats()
	runner, err := batch.NewRunner(e.deps.newProcessor(e.cfg, settings, state.Settings, e.logger), batch.RunnerOptions{
		Workers:    state.Settings.Workers,
		MaxRetries: e.cfg.Batch.MaxRetries,
		RetryDelay: e.cfg.Batch.RetryDelay,
		Session:    session,
		Recorder:   e.recorder,
		Logger:     e.logger,
	})
	if err != nil {
		return err
	}

	e.serveMetrics(ctx)

	progress := newProgressPrinter(e.out, len(state.Files))
	progress.header(state, len(files))

	result, err := coordinator.Execute(ctx, runner, state, files, progress.onEvent)
	if result.State != nil {
		renderSummary(e.out, result.State, session.Snapshot(), settings.Model)
	}
	if err != nil {
		return err
	}

	switch {
	case result.State == nil:
		return nil
	case result.State.Status == domain.BatchStatusPaused:
		return ErrBatchPaused
	case result.State.Statistics.Failed > 0:
		return fmt.Errorf("%w: %d of %d", ErrFilesFailed, result.State.Statistics.Failed, result.State.Statistics.TotalFiles)
	default:
		return nil
	}
}
