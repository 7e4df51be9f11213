package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/domain"
)

// interruptedBatch writes 10 sources, 3 completed, and removes one of the outputs.
func interruptedBatch(t *testing.T, dir string) *domain.BatchState {
	t.Helper()

	var sources []string
	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, "src", string(rune('a'+i))+".mp3")
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("audio"), 0o644))
		sources = append(sources, p)
	}

	state := NewState("resume-1", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), testSettings(), sources)
	for i := 0; i < 3; i++ {
		out := filepath.Join(dir, "out", string(rune('a'+i))+".srt")
		require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
		require.NoError(t, os.WriteFile(out, []byte("1"), 0o644))
		d := 10.0
		at := state.CreatedAt.Add(time.Minute)
		state.Files[i].Status = domain.FileStatusCompleted
		state.Files[i].OutputPath = out
		state.Files[i].DurationSeconds = &d
		state.Files[i].CompletedAt = &at
	}
	Recompute(state)
	require.NoError(t, os.Remove(state.Files[1].OutputPath))
	return state
}

func TestReconcile_RevertsMissingOutputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	state := interruptedBatch(t, dir)
	store := newTestStore(t)

	rec := Reconcile(state, store.Verify(state))

	assert.Equal(t, []string{state.Files[1].SourcePath}, rec.Reverted)
	assert.Empty(t, rec.Skipped)
	assert.Equal(t, 2, state.Statistics.Completed)
	assert.Equal(t, 8, state.Statistics.Pending)
	assert.Equal(t, domain.FileStatusPending, state.Files[1].Status)
	assert.Empty(t, state.Files[1].OutputPath)
	assert.Nil(t, state.Files[1].CompletedAt)
	assertInvariant(t, state)
}

func TestReconcile_SkipsMissingSourcesAndRequeuesUnfinished(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	state := interruptedBatch(t, dir)
	state.Files[5].Status = domain.FileStatusTranscribing
	state.Files[6].Status = domain.FileStatusFailed
	state.Files[6].ErrorMessage = "503"
	require.NoError(t, os.Remove(state.Files[4].SourcePath))

	rec := Reconcile(state, newTestStore(t).Verify(state))

	assert.Equal(t, []string{state.Files[4].SourcePath}, rec.Skipped)
	assert.ElementsMatch(t, []string{state.Files[5].SourcePath, state.Files[6].SourcePath}, rec.Requeued)
	assert.Equal(t, domain.FileStatusSkipped, state.Files[4].Status)
	assert.NotEmpty(t, state.Files[4].ErrorMessage)
	assert.Equal(t, 1, state.Statistics.Skipped)
	assert.Equal(t, 2, state.Statistics.Completed)
	assert.Equal(t, 7, state.Statistics.Pending)
	assert.NotContains(t, RemainingPaths(state), state.Files[4].SourcePath)
	assertInvariant(t, state)
}

func TestController_ResumeFlow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := newTestStore(t)
	state := interruptedBatch(t, dir)
	require.NoError(t, store.Pause(state))

	var prompted ResumePrompt
	decider := DeciderFunc(func(_ context.Context, p ResumePrompt) (Decision, error) {
		prompted = p
		return DecisionResume, nil
	})

	plan, err := NewController(store, nil).Check(context.Background(), decider)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, "resume-1", prompted.BatchID)
	assert.Equal(t, 3, prompted.Completed)
	assert.Equal(t, 7, prompted.Remaining)
	assert.Equal(t, testSettings(), plan.State.Settings)
	assert.Len(t, plan.Files, 8)
	assert.Equal(t, domain.BatchStatusActive, plan.State.Status)

	persisted := store.LoadActive()
	require.NotNil(t, persisted)
	assert.Equal(t, 8, persisted.Statistics.Pending)
}

func TestController_DiscardDismisses(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Pause(sampleState("b1", 2)))

	plan, err := NewController(store, nil).Check(context.Background(), DeciderFunc(func(context.Context, ResumePrompt) (Decision, error) {
		return DecisionDiscard, nil
	}))
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.False(t, store.HasActive())
}

func TestController_NoPromptWithoutRecord(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), activeFileName), []byte("garbage"), 0o644))

	called := false
	plan, err := NewController(store, nil).Check(context.Background(), DeciderFunc(func(context.Context, ResumePrompt) (Decision, error) {
		called = true
		return DecisionResume, nil
	}))
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.False(t, called)
}

func TestController_PromptErrorKeepsRecord(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Pause(sampleState("b1", 2)))

	_, err := NewController(store, nil).Check(context.Background(), DeciderFunc(func(context.Context, ResumePrompt) (Decision, error) {
		return DecisionDiscard, errors.New("dialog closed")
	}))
	require.Error(t, err)
	assert.True(t, store.HasActive())
}

func TestReconcile_SkipsCompletedFileWhoseSourceVanished(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	state := interruptedBatch(t, dir)
	require.NoError(t, os.Remove(state.Files[0].SourcePath))
	require.FileExists(t, state.Files[0].OutputPath)

	rec := Reconcile(state, newTestStore(t).Verify(state))

	assert.Equal(t, []string{state.Files[0].SourcePath}, rec.Skipped)
	assert.Equal(t, domain.FileStatusSkipped, state.Files[0].Status)
	assert.Equal(t, 1, state.Statistics.Completed)
	assert.Equal(t, 1, state.Statistics.Skipped)
	assertInvariant(t, state)
}

// finishedBatch archives a completed batch with two failed files, one of whose sources is gone.
func finishedBatch(t *testing.T, store *Store) *domain.BatchState {
	t.Helper()

	state := interruptedBatch(t, t.TempDir())
	require.NoError(t, os.WriteFile(state.Files[1].OutputPath, []byte("1"), 0o644))
	for i := 3; i < 10; i++ {
		state.Files[i].Status = domain.FileStatusCompleted
		state.Files[i].OutputPath = state.Files[0].OutputPath
	}
	for _, i := range []int{7, 8} {
		state.Files[i].Status = domain.FileStatusFailed
		state.Files[i].OutputPath = ""
		state.Files[i].ErrorMessage = "bad request"
		state.Files[i].RetryCount = 2
	}
	require.NoError(t, os.Remove(state.Files[8].SourcePath))
	Recompute(state)
	require.NoError(t, store.SaveActive(state))
	require.NoError(t, store.Complete(state))
	return state
}

func TestController_RetryFailedRequeuesAndReactivates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	state := finishedBatch(t, store)

	plan, err := NewController(store, nil).RetryFailed(state.ID)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, []string{state.Files[7].SourcePath}, plan.Files)
	assert.Equal(t, []string{state.Files[7].SourcePath}, plan.Reconciliation.Requeued)
	assert.Equal(t, []string{state.Files[8].SourcePath}, plan.Reconciliation.Skipped)

	f := plan.State.Files[7]
	assert.Equal(t, domain.FileStatusPending, f.Status)
	assert.Equal(t, 3, f.RetryCount)
	assert.Empty(t, f.ErrorMessage)
	assert.Equal(t, domain.FileStatusSkipped, plan.State.Files[8].Status)
	assertInvariant(t, plan.State)

	active := store.LoadActive()
	require.NotNil(t, active)
	assert.Equal(t, state.ID, active.ID)
	assert.Equal(t, domain.BatchStatusActive, active.Status)
	assert.Nil(t, active.CompletedAt)
}

func TestController_RetryFailedRefusals(t *testing.T) {
	t.Parallel()

	t.Run("unknown batch", func(t *testing.T) {
		t.Parallel()
		_, err := NewController(newTestStore(t), nil).RetryFailed("nope")
		assert.ErrorIs(t, err, ErrBatchNotFound)
	})

	t.Run("nothing failed", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		state := sampleState("clean", 1)
		state.Files[0].Status = domain.FileStatusCompleted
		Recompute(state)
		require.NoError(t, store.SaveActive(state))
		require.NoError(t, store.Complete(state))

		_, err := NewController(store, nil).RetryFailed("clean")
		assert.ErrorIs(t, err, ErrNoFailedFiles)
		assert.False(t, store.HasActive())
	})

	t.Run("active slot taken", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		state := finishedBatch(t, store)
		require.NoError(t, store.Pause(sampleState("paused", 2)))

		_, err := NewController(store, nil).RetryFailed(state.ID)
		assert.ErrorIs(t, err, ErrActiveSlotTaken)
		assert.Equal(t, "paused", store.LoadActive().ID)
		assert.Equal(t, domain.BatchStatusCompleted, store.LoadByID(state.ID).Status)
	})
}
