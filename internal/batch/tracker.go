package batch

import (
	"log/slog"
	"time"

	"batch-transcriber/internal/domain"
)

// Listener observes events after they have been applied to the batch state.
type Listener func(Event, domain.BatchStatistics)

// Scheduler accepts state snapshots for persistence.
type Scheduler interface {
	ScheduleWrite(*domain.BatchState) error
}

// Tracker owns the in-memory batch state. Worker events are funnelled through a
// channel to one goroutine, which applies them and schedules a durable write.
type Tracker struct {
	state     *domain.BatchState
	index     map[string]int
	retries   []int
	scheduler Scheduler
	listeners []Listener
	logger    *slog.Logger
	now       func() time.Time

	events chan Event
	done   chan struct{}
}

// NewTracker starts consuming events for state. The tracker owns state until Close.
func NewTracker(state *domain.BatchState, scheduler Scheduler, logger *slog.Logger, listeners ...Listener) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	index := make(map[string]int, len(state.Files))
	retries := make([]int, len(state.Files))
	for i, f := range state.Files {
		index[f.SourcePath] = i
		retries[i] = f.RetryCount
	}

	t := &Tracker{
		state:     state,
		index:     index,
		retries:   retries,
		scheduler: scheduler,
		listeners: listeners,
		logger:    logger.With("component", "tracker", "batch_id", state.ID),
		now:       func() time.Time { return time.Now().UTC() },
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	go t.loop()
	return t
}

// OnEvent implements Sink.
func (t *Tracker) OnEvent(e Event) {
	t.events <- e
}

// Close stops the consumer after all delivered events are applied and returns the final state.
// OnEvent must not be called after Close.
func (t *Tracker) Close() *domain.BatchState {
	close(t.events)
	<-t.done
	return t.state
}

func (t *Tracker) loop() {
	defer close(t.done)
	for e := range t.events {
		if !t.apply(e) {
			continue
		}
		Recompute(t.state)
		if t.scheduler != nil {
			if err := t.scheduler.ScheduleWrite(Clone(t.state)); err != nil {
				t.logger.Error("schedule state write failed", "error", err)
			}
		}
		for _, l := range t.listeners {
			l(e, t.state.Statistics)
		}
	}
}

func (t *Tracker) apply(e Event) bool {
	i, ok := t.index[e.SourcePath]
	if !ok {
		t.logger.Warn("event for unknown file", "path", e.SourcePath, "type", e.Type)
		return false
	}

	now := t.now()
	f := &t.state.Files[i]
	f.Status = e.Status()
	// Retries from earlier runs of the batch carry over.
	f.RetryCount = t.retries[i] + e.RetryCount

	switch e.Type {
	case EventCompleted:
		d := e.DurationSeconds
		f.OutputPath = e.OutputPath
		f.DurationSeconds = &d
		f.CompletedAt = &now
		f.ErrorMessage = ""
	case EventFailed, EventRetrying:
		f.ErrorMessage = e.Message
	default:
		f.ErrorMessage = ""
	}
	t.state.LastUpdated = now
	return true
}
