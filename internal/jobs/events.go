package jobs

import (
	"sync"
	"time"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
)

// EventType classifies messages emitted during batch execution.
type EventType string

const (
	EventTypeFile   EventType = "file"
	EventTypeBatch  EventType = "batch"
	EventTypeLog    EventType = "log"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq         int64                   `json:"seq"`
	Timestamp   time.Time               `json:"timestamp"`
	BatchID     string                  `json:"batchId"`
	Type        EventType               `json:"type"`
	Stage       string                  `json:"stage,omitempty"`
	FileStatus  domain.FileStatus       `json:"fileStatus,omitempty"`
	BatchStatus domain.BatchStatus      `json:"batchStatus,omitempty"`
	SourcePath  string                  `json:"sourcePath,omitempty"`
	OutputPath  string                  `json:"outputPath,omitempty"`
	RetryCount  int                     `json:"retryCount,omitempty"`
	ErrorKind   string                  `json:"errorKind,omitempty"`
	Message     string                  `json:"message,omitempty"`
	Statistics  *domain.BatchStatistics `json:"statistics,omitempty"`
}

// FileEvent converts a runner event and the statistics after it into a bus event.
func FileEvent(batchID string, e batch.Event, stats domain.BatchStatistics) Event {
	eventType := EventTypeFile
	if e.Type == batch.EventFailed {
		eventType = EventTypeError
	}
	return Event{
		BatchID:    batchID,
		Type:       eventType,
		Stage:      string(e.Type),
		FileStatus: e.Status(),
		SourcePath: e.SourcePath,
		OutputPath: e.OutputPath,
		RetryCount: e.RetryCount,
		ErrorKind:  string(e.Kind),
		Message:    e.Message,
		Statistics: &stats,
	}
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
