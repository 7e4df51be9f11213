package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/domain"
)

type fakeProcessor struct {
	process func(ctx context.Context, path string, report func(domain.FileStatus)) (Outcome, error)
}

func (f fakeProcessor) Process(ctx context.Context, path string, report func(domain.FileStatus)) (Outcome, error) {
	return f.process(ctx, path, report)
}

func instantProcessor() fakeProcessor {
	return fakeProcessor{process: func(_ context.Context, path string, report func(domain.FileStatus)) (Outcome, error) {
		report(domain.FileStatusTranscribing)
		report(domain.FileStatusSaving)
		return Outcome{OutputPath: path + ".txt", DurationSeconds: 1}, nil
	}}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) byFile() map[string][]EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[string][]EventType{}
	for _, e := range l.events {
		out[e.SourcePath] = append(out[e.SourcePath], e.Type)
	}
	return out
}

func paths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/media/%02d.mp3", i)
	}
	return out
}

func TestNewRunner_RejectsWorkerCount(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 11, -1} {
		_, err := NewRunner(instantProcessor(), RunnerOptions{Workers: n})
		assert.ErrorIs(t, err, ErrInvalidWorkers)
	}
}

func TestRunner_ProcessesAllFilesOnce(t *testing.T) {
	t.Parallel()

	runner, err := NewRunner(instantProcessor(), RunnerOptions{Workers: 3})
	require.NoError(t, err)

	log := &eventLog{}
	report := runner.Run(context.Background(), paths(10), log)

	assert.Len(t, report.Completed, 10)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.NotStarted)
	assert.False(t, report.Cancelled)

	for path, types := range log.byFile() {
		assert.Equal(t, []EventType{EventTranscribing, EventSaving, EventCompleted}, types, path)
	}
	assert.Len(t, log.byFile(), 10)
	assert.Equal(t, 10, runner.Session().Snapshot().Completed)
	assert.InDelta(t, 10.0, runner.Session().Snapshot().AudioSeconds, 0.001)
}

func TestRunner_RespectsWorkerBound(t *testing.T) {
	t.Parallel()

	var active, peak atomic.Int32
	proc := fakeProcessor{process: func(context.Context, string, func(domain.FileStatus)) (Outcome, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return Outcome{}, nil
	}}

	runner, err := NewRunner(proc, RunnerOptions{Workers: 3})
	require.NoError(t, err)
	report := runner.Run(context.Background(), paths(12), nil)

	assert.Len(t, report.Completed, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunner_FailureIsIsolated(t *testing.T) {
	t.Parallel()

	proc := fakeProcessor{process: func(_ context.Context, path string, report func(domain.FileStatus)) (Outcome, error) {
		report(domain.FileStatusConverting)
		if path == "/media/01.mp3" {
			return Outcome{}, errors.New("Invalid data found when processing input")
		}
		return Outcome{OutputPath: path + ".txt"}, nil
	}}
	runner, err := NewRunner(proc, RunnerOptions{Workers: 2, MaxRetries: 3})
	require.NoError(t, err)

	log := &eventLog{}
	report := runner.Run(context.Background(), paths(4), log)

	assert.Equal(t, []string{"/media/01.mp3"}, report.Failed)
	assert.Len(t, report.Completed, 3)
	assert.Equal(t, []EventType{EventConverting, EventFailed}, log.byFile()["/media/01.mp3"])
}

func TestRunner_RetriesRetryableErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	proc := fakeProcessor{process: func(context.Context, string, func(domain.FileStatus)) (Outcome, error) {
		if calls.Add(1) == 1 {
			return Outcome{}, errors.New("503 service unavailable")
		}
		return Outcome{OutputPath: "/out.txt"}, nil
	}}
	runner, err := NewRunner(proc, RunnerOptions{Workers: 1, MaxRetries: 1, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	log := &eventLog{}
	report := runner.Run(context.Background(), paths(1), log)

	assert.Len(t, report.Completed, 1)
	assert.Equal(t, []EventType{EventRetrying, EventCompleted}, log.byFile()["/media/00.mp3"])
	assert.Equal(t, 1, log.events[len(log.events)-1].RetryCount)
	assert.Equal(t, 1, runner.Session().Snapshot().Retried)
}

func TestRunner_RetryCapThenFail(t *testing.T) {
	t.Parallel()

	proc := fakeProcessor{process: func(context.Context, string, func(domain.FileStatus)) (Outcome, error) {
		return Outcome{}, errors.New("connection reset by peer")
	}}
	runner, err := NewRunner(proc, RunnerOptions{Workers: 1, MaxRetries: 2})
	require.NoError(t, err)

	log := &eventLog{}
	report := runner.Run(context.Background(), paths(1), log)

	assert.Len(t, report.Failed, 1)
	assert.Equal(t, []EventType{EventRetrying, EventRetrying, EventFailed}, log.byFile()["/media/00.mp3"])
	last := log.events[len(log.events)-1]
	assert.Equal(t, KindTransientNetwork, last.Kind)
	assert.Equal(t, 2, last.RetryCount)
}

func TestRunner_CancelLetsInFlightFinish(t *testing.T) {
	t.Parallel()

	started := make(chan string, 10)
	release := make(chan struct{})
	proc := fakeProcessor{process: func(ctx context.Context, path string, report func(domain.FileStatus)) (Outcome, error) {
		report(domain.FileStatusTranscribing)
		started <- path
		<-release
		assert.NoError(t, ctx.Err())
		return Outcome{OutputPath: path + ".txt"}, nil
	}}
	runner, err := NewRunner(proc, RunnerOptions{Workers: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &eventLog{}
	done := make(chan Report, 1)
	go func() { done <- runner.Run(ctx, paths(10), log) }()

	for i := 0; i < 3; i++ {
		<-started
	}
	cancel()
	close(release)

	report := <-done
	assert.True(t, report.Cancelled)
	assert.Len(t, report.Completed, 3)
	assert.Len(t, report.NotStarted, 7)
	assert.Len(t, log.byFile(), 3)
	assert.Empty(t, started)
}
