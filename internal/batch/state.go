package batch

import (
	"time"

	"github.com/samber/lo"

	"batch-transcriber/internal/domain"
)

// NewState builds an active batch over paths, dropping duplicates while keeping order.
func NewState(id string, now time.Time, settings domain.BatchSettings, paths []string) *domain.BatchState {
	files := lo.Map(lo.Uniq(paths), func(path string, _ int) domain.FileState {
		return domain.FileState{SourcePath: path, Status: domain.FileStatusPending}
	})

	state := &domain.BatchState{
		ID:          id,
		CreatedAt:   now,
		LastUpdated: now,
		Settings:    settings,
		Files:       files,
		Status:      domain.BatchStatusActive,
	}
	Recompute(state)
	return state
}

// IsTerminal reports whether a file needs no further processing in this run.
func IsTerminal(status domain.FileStatus) bool {
	switch status {
	case domain.FileStatusCompleted, domain.FileStatusFailed, domain.FileStatusSkipped:
		return true
	default:
		return false
	}
}

// Recompute derives statistics from the file list.
// Every non-terminal status counts as pending.
func Recompute(state *domain.BatchState) {
	counts := lo.CountValuesBy(state.Files, func(f domain.FileState) domain.FileStatus {
		if IsTerminal(f.Status) {
			return f.Status
		}
		return domain.FileStatusPending
	})

	duration := lo.SumBy(state.Files, func(f domain.FileState) float64 {
		if f.Status != domain.FileStatusCompleted || f.DurationSeconds == nil {
			return 0
		}
		return *f.DurationSeconds
	})

	state.Statistics = domain.BatchStatistics{
		TotalFiles:           len(state.Files),
		Completed:            counts[domain.FileStatusCompleted],
		Failed:               counts[domain.FileStatusFailed],
		Pending:              counts[domain.FileStatusPending],
		Skipped:              counts[domain.FileStatusSkipped],
		TotalDurationSeconds: duration,
	}
}

// Remaining returns files that still need work: anything not completed or skipped.
func Remaining(state *domain.BatchState) []domain.FileState {
	return lo.Filter(state.Files, func(f domain.FileState, _ int) bool {
		return f.Status != domain.FileStatusCompleted && f.Status != domain.FileStatusSkipped
	})
}

// RemainingPaths returns the source paths of Remaining in batch order.
func RemainingPaths(state *domain.BatchState) []string {
	return lo.Map(Remaining(state), func(f domain.FileState, _ int) string {
		return f.SourcePath
	})
}

// SourcePaths returns every source path of state in batch order.
func SourcePaths(state *domain.BatchState) []string {
	return lo.Map(state.Files, func(f domain.FileState, _ int) string {
		return f.SourcePath
	})
}

// Finished reports whether every file reached a terminal status.
func Finished(state *domain.BatchState) bool {
	return lo.EveryBy(state.Files, func(f domain.FileState) bool {
		return IsTerminal(f.Status)
	})
}

// Clone returns a deep copy safe to hand to another goroutine.
func Clone(state *domain.BatchState) *domain.BatchState {
	if state == nil {
		return nil
	}
	out := *state
	out.CompletedAt = cloneTime(state.CompletedAt)
	out.Files = make([]domain.FileState, len(state.Files))
	for i, f := range state.Files {
		f.CompletedAt = cloneTime(f.CompletedAt)
		if f.DurationSeconds != nil {
			d := *f.DurationSeconds
			f.DurationSeconds = &d
		}
		out.Files[i] = f
	}
	return &out
}

// Summarize builds the index entry for a stored record.
func Summarize(state *domain.BatchState, record string) domain.BatchSummary {
	return domain.BatchSummary{
		ID:             state.ID,
		Status:         state.Status,
		CreatedAt:      state.CreatedAt,
		LastUpdated:    state.LastUpdated,
		CompletedAt:    cloneTime(state.CompletedAt),
		TotalFiles:     state.Statistics.TotalFiles,
		CompletedFiles: state.Statistics.Completed,
		FailedFiles:    state.Statistics.Failed,
		SkippedFiles:   state.Statistics.Skipped,
		Record:         record,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
