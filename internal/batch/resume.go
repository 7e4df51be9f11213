package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"batch-transcriber/internal/domain"
)

// Decision is the answer to a resume prompt.
type Decision int

const (
	DecisionDiscard Decision = iota
	DecisionResume
)

// ResumePrompt describes an interrupted batch to whoever decides about it.
type ResumePrompt struct {
	BatchID     string               `json:"batchId"`
	CreatedAt   time.Time            `json:"createdAt"`
	LastUpdated time.Time            `json:"lastUpdated"`
	Status      domain.BatchStatus   `json:"status"`
	Total       int                  `json:"total"`
	Completed   int                  `json:"completed"`
	Remaining   int                  `json:"remaining"`
	Settings    domain.BatchSettings `json:"settings"`
}

// Decider asks the user whether to resume.
type Decider interface {
	ProposeResume(ctx context.Context, prompt ResumePrompt) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(context.Context, ResumePrompt) (Decision, error)

// ProposeResume calls f.
func (f DeciderFunc) ProposeResume(ctx context.Context, prompt ResumePrompt) (Decision, error) {
	return f(ctx, prompt)
}

// Reconciliation records what reconciling against the file system changed.
type Reconciliation struct {
	Skipped  []string `json:"skipped"`
	Reverted []string `json:"reverted"`
	Requeued []string `json:"requeued"`
}

// Plan is a reconciled batch ready to run again.
type Plan struct {
	State          *domain.BatchState
	Files          []string
	Reconciliation Reconciliation
}

// Controller runs startup detection and reconciliation of an interrupted batch.
type Controller struct {
	store  *Store
	logger *slog.Logger
}

// NewController builds a controller over store.
func NewController(store *Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, logger: logger.With("component", "resume")}
}

// Prompt returns the resume prompt for the interrupted batch, or nil when there is none.
func (c *Controller) Prompt() (*ResumePrompt, *domain.BatchState) {
	if !c.store.HasActive() {
		return nil, nil
	}
	state := c.store.LoadActive()
	if state == nil {
		return nil, nil
	}
	prompt := PromptFor(state)
	return &prompt, state
}

// Check detects an interrupted batch and asks decider what to do. It returns nil
// when there is nothing to resume or the batch was discarded.
func (c *Controller) Check(ctx context.Context, decider Decider) (*Plan, error) {
	prompt, state := c.Prompt()
	if prompt == nil {
		return nil, nil
	}

	decision, err := decider.ProposeResume(ctx, *prompt)
	if err != nil {
		return nil, fmt.Errorf("resume prompt: %w", err)
	}
	if decision != DecisionResume {
		if err := c.store.DismissActive(); err != nil {
			return nil, err
		}
		c.logger.Info("interrupted batch discarded", "batch_id", state.ID)
		return nil, nil
	}
	return c.Resume(state)
}

// Resume reconciles state against disk, reactivates it and returns the files to run.
func (c *Controller) Resume(state *domain.BatchState) (*Plan, error) {
	rec := Reconcile(state, c.store.Verify(state))
	state.Status = domain.BatchStatusActive
	state.LastUpdated = time.Now().UTC()
	if err := c.store.SaveActive(state); err != nil {
		return nil, err
	}

	c.logger.Info("batch resumed",
		"batch_id", state.ID,
		"skipped", len(rec.Skipped),
		"reverted", len(rec.Reverted),
		"remaining", state.Statistics.Pending,
	)
	return &Plan{State: state, Files: RemainingPaths(state), Reconciliation: rec}, nil
}

// RetryFailed requeues the failed files of a finished batch, moves it back into the active
// slot and returns the files to run. Each requeued file counts one more retry.
func (c *Controller) RetryFailed(id string) (*Plan, error) {
	if active := c.store.LoadActive(); active != nil {
		return nil, fmt.Errorf("%w: %s", ErrActiveSlotTaken, active.ID)
	}
	state := c.store.LoadByID(id)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}

	var retried []string
	for i := range state.Files {
		f := &state.Files[i]
		if f.Status != domain.FileStatusFailed {
			continue
		}
		f.Status = domain.FileStatusPending
		f.RetryCount++
		f.ErrorMessage = ""
		f.CompletedAt = nil
		retried = append(retried, f.SourcePath)
	}
	if len(retried) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFailedFiles, id)
	}

	rec := Reconcile(state, c.store.Verify(state))
	skipped := toSet(rec.Skipped)
	requeued := rec.Requeued
	rec.Requeued = nil
	for _, p := range append(retried, requeued...) {
		if !skipped[p] {
			rec.Requeued = append(rec.Requeued, p)
		}
	}
	if err := c.store.Reactivate(state); err != nil {
		return nil, err
	}

	c.logger.Info("retrying failed files",
		"batch_id", state.ID,
		"retried", len(retried),
		"skipped", len(rec.Skipped),
		"remaining", state.Statistics.Pending,
	)
	return &Plan{State: state, Files: RemainingPaths(state), Reconciliation: rec}, nil
}

// PromptFor summarises state for a resume decision.
func PromptFor(state *domain.BatchState) ResumePrompt {
	completed := 0
	for _, f := range state.Files {
		if f.Status == domain.FileStatusCompleted {
			completed++
		}
	}
	return ResumePrompt{
		BatchID:     state.ID,
		CreatedAt:   state.CreatedAt,
		LastUpdated: state.LastUpdated,
		Status:      state.Status,
		Total:       len(state.Files),
		Completed:   completed,
		Remaining:   len(Remaining(state)),
		Settings:    state.Settings,
	}
}

// Reconcile applies a verification to state: every file whose source vanished is skipped,
// completed files whose output vanished go back to pending, and unfinished files are requeued.
func Reconcile(state *domain.BatchState, v Verification) Reconciliation {
	missingSource := toSet(v.MissingSources)
	missingOutput := toSet(v.MissingOutputs)

	var rec Reconciliation
	for i := range state.Files {
		f := &state.Files[i]
		switch {
		case f.Status == domain.FileStatusSkipped:
		case missingSource[f.SourcePath]:
			markSkipped(f)
			rec.Skipped = append(rec.Skipped, f.SourcePath)
		case f.Status == domain.FileStatusCompleted:
			if missingOutput[f.OutputPath] || missingOutput[f.SourcePath] {
				f.Status = domain.FileStatusPending
				f.OutputPath = ""
				f.CompletedAt = nil
				f.DurationSeconds = nil
				rec.Reverted = append(rec.Reverted, f.SourcePath)
			}
		case f.Status != domain.FileStatusPending:
			f.Status = domain.FileStatusPending
			f.ErrorMessage = ""
			rec.Requeued = append(rec.Requeued, f.SourcePath)
		}
	}
	Recompute(state)
	return rec
}

func markSkipped(f *domain.FileState) {
	f.Status = domain.FileStatusSkipped
	f.ErrorMessage = "source file no longer exists"
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}
