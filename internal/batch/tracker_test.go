package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/domain"
)

type captureScheduler struct {
	mu    sync.Mutex
	saved []*domain.BatchState
}

func (c *captureScheduler) ScheduleWrite(state *domain.BatchState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, state)
	return nil
}

func TestTracker_AppliesEventsAndSchedulesSnapshots(t *testing.T) {
	t.Parallel()

	state := sampleState("b1", 2)
	path := state.Files[0].SourcePath
	sched := &captureScheduler{}

	var seen []EventType
	tracker := NewTracker(state, sched, nil, func(e Event, stats domain.BatchStatistics) {
		seen = append(seen, e.Type)
		assert.Equal(t, stats.TotalFiles, stats.Completed+stats.Failed+stats.Pending+stats.Skipped)
	})

	tracker.OnEvent(Event{Type: EventTranscribing, SourcePath: path})
	tracker.OnEvent(Event{Type: EventRetrying, SourcePath: path, RetryCount: 1, Message: "timeout"})
	tracker.OnEvent(Event{Type: EventCompleted, SourcePath: path, OutputPath: "/out/a.txt", DurationSeconds: 7, RetryCount: 1})
	tracker.OnEvent(Event{Type: EventFailed, SourcePath: state.Files[1].SourcePath, Message: "bad file"})
	tracker.OnEvent(Event{Type: EventCompleted, SourcePath: "/unknown"})
	final := tracker.Close()

	assert.Equal(t, []EventType{EventTranscribing, EventRetrying, EventCompleted, EventFailed}, seen)
	require.Len(t, sched.saved, 4)

	f := final.Files[0]
	assert.Equal(t, domain.FileStatusCompleted, f.Status)
	assert.Equal(t, "/out/a.txt", f.OutputPath)
	assert.Equal(t, 1, f.RetryCount)
	assert.Empty(t, f.ErrorMessage)
	require.NotNil(t, f.CompletedAt)
	assert.Equal(t, domain.FileStatusFailed, final.Files[1].Status)
	assert.Equal(t, "bad file", final.Files[1].ErrorMessage)
	assert.Equal(t, 1, final.Statistics.Completed)
	assert.Equal(t, 1, final.Statistics.Failed)

	// snapshots are copies, not the live state
	assert.Equal(t, domain.FileStatusTranscribing, sched.saved[0].Files[0].Status)
}

func TestTracker_NoLostUpdatesUnderConcurrentWorkers(t *testing.T) {
	t.Parallel()

	state := NewState("b1", time.Now().UTC(), testSettings(), paths(10))
	sched := &captureScheduler{}
	tracker := NewTracker(state, sched, nil)

	runner, err := NewRunner(instantProcessor(), RunnerOptions{Workers: 3})
	require.NoError(t, err)

	report := runner.Run(context.Background(), RemainingPaths(state), tracker)
	final := tracker.Close()

	assert.Len(t, report.Completed, 10)
	assert.Equal(t, 10, final.Statistics.Completed)
	assert.Equal(t, 0, final.Statistics.Pending)
	assertInvariant(t, final)
}

func TestTracker_CarriesRetriesFromEarlierRuns(t *testing.T) {
	t.Parallel()

	state := sampleState("b1", 1)
	state.Files[0].RetryCount = 3
	path := state.Files[0].SourcePath

	tracker := NewTracker(state, &captureScheduler{}, nil)
	tracker.OnEvent(Event{Type: EventRetrying, SourcePath: path, RetryCount: 1, Message: "timeout"})
	tracker.OnEvent(Event{Type: EventCompleted, SourcePath: path, OutputPath: "/out/a.txt", RetryCount: 1})
	final := tracker.Close()

	assert.Equal(t, 4, final.Files[0].RetryCount)
}
