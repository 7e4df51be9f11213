package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"batch-transcriber/internal/domain"
)

// CoordinatorOptions configures persistence cadence for runs.
type CoordinatorOptions struct {
	WriteInterval time.Duration
	FlushTimeout  time.Duration
	Recorder      Recorder
	Logger        *slog.Logger
}

// Result is the outcome of executing a batch.
type Result struct {
	State  *domain.BatchState
	Report Report
}

// Coordinator drives one batch through the runner with throttled persistence,
// then completes or pauses it in the store.
type Coordinator struct {
	store         *Store
	writeInterval time.Duration
	flushTimeout  time.Duration
	recorder      Recorder
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
}

// NewCoordinator builds a coordinator over store.
func NewCoordinator(store *Store, opts CoordinatorOptions) *Coordinator {
	if opts.WriteInterval <= 0 {
		opts.WriteInterval = time.Second
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		store:         store,
		writeInterval: opts.WriteInterval,
		flushTimeout:  opts.FlushTimeout,
		recorder:      opts.Recorder,
		logger:        opts.Logger,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
	}
}

// Begin creates and persists a new active batch over paths.
func (c *Coordinator) Begin(settings domain.BatchSettings, paths []string) (*domain.BatchState, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to process")
	}
	state := NewState(c.newID(), c.now(), settings, paths)
	if err := c.store.SaveActive(state); err != nil {
		return nil, err
	}
	c.logger.Info("batch started", "batch_id", state.ID, "files", len(state.Files), "workers", settings.Workers)
	return state, nil
}

// Execute runs files of state and settles the batch: completed when every file is terminal,
// paused otherwise. listeners see every applied event.
func (c *Coordinator) Execute(ctx context.Context, runner *Runner, state *domain.BatchState, files []string, listeners ...Listener) (Result, error) {
	writer := NewWriter(c.store.SaveActive, WriterOptions{
		Interval: c.writeInterval,
		Logger:   c.logger,
		Recorder: c.recorder,
	})
	tracker := NewTracker(state, writer, c.logger, listeners...)

	report := runner.Run(ctx, files, tracker)
	final := tracker.Close()

	flushErr := writer.Flush(c.flushTimeout)
	if err := writer.Shutdown(); err != nil && flushErr == nil {
		flushErr = err
	}
	if flushErr != nil {
		c.logger.Error("final state flush failed", "batch_id", final.ID, "error", flushErr)
	}

	result := Result{State: final, Report: report}
	if Finished(final) {
		if err := c.store.Complete(final); err != nil {
			return result, fmt.Errorf("complete batch: %w", err)
		}
		return result, nil
	}
	if err := c.store.Pause(final); err != nil {
		return result, fmt.Errorf("pause batch: %w", err)
	}
	return result, nil
}
