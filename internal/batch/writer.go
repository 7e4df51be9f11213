package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"batch-transcriber/internal/domain"
)

// SaveFunc physically persists one state snapshot.
type SaveFunc func(*domain.BatchState) error

// WriterOptions tunes a Writer.
type WriterOptions struct {
	Interval time.Duration
	Logger   *slog.Logger
	Recorder Recorder
}

// Writer coalesces state snapshots and persists at most one per interval
// from a single background goroutine.
type Writer struct {
	save     SaveFunc
	interval time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	updates  chan *domain.BatchState
	flushReq chan chan error
	stop     chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
	lastErr  error
}

// NewWriter starts the background writer.
func NewWriter(save SaveFunc, opts WriterOptions) *Writer {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}

	w := &Writer{
		save:     save,
		interval: opts.Interval,
		logger:   opts.Logger.With("component", "state-writer"),
		recorder: opts.Recorder,
		now:      time.Now,
		updates:  make(chan *domain.BatchState, 1),
		flushReq: make(chan chan error),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// ScheduleWrite queues state without blocking; an unwritten older snapshot is replaced.
// The caller must not mutate state afterwards.
func (w *Writer) ScheduleWrite(state *domain.BatchState) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	for {
		select {
		case w.updates <- state:
			return nil
		default:
		}
		select {
		case <-w.updates:
		default:
		}
	}
}

// Flush blocks until every snapshot scheduled before the call is on disk.
func (w *Writer) Flush(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	reply := make(chan error, 1)
	select {
	case w.flushReq <- reply:
	case <-w.done:
		return ErrWriterClosed
	case <-timer.C:
		return ErrFlushTimeout
	}

	select {
	case err := <-reply:
		return err
	case <-timer.C:
		return ErrFlushTimeout
	}
}

// Shutdown drains pending state, stops the writer and returns the last write error.
func (w *Writer) Shutdown() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
	})
	<-w.done
	return w.lastErr
}

func (w *Writer) run() {
	defer close(w.done)

	var (
		pending *domain.BatchState
		last    time.Time
		timer   *time.Timer
		tick    <-chan time.Time
	)
	arm := func(wait time.Duration) {
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		tick = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	flushPending := func() error {
		if pending == nil {
			return nil
		}
		err := w.write(pending)
		last = w.now()
		if err == nil {
			pending = nil
		}
		return err
	}

	for {
		select {
		case state := <-w.updates:
			pending = state
			if tick != nil {
				w.logger.Debug("write coalesced", "batch_id", state.ID)
				continue
			}
			if wait := w.interval - w.now().Sub(last); wait > 0 {
				arm(wait)
				continue
			}
			if err := flushPending(); err != nil {
				arm(w.interval)
			}

		case <-tick:
			tick = nil
			if err := flushPending(); err != nil {
				arm(w.interval)
			}

		case reply := <-w.flushReq:
			pending = w.drain(pending)
			reply <- flushPending()

		case <-w.stop:
			pending = w.drain(pending)
			if err := flushPending(); err != nil {
				w.lastErr = err
			}
			return
		}
	}
}

func (w *Writer) drain(pending *domain.BatchState) *domain.BatchState {
	select {
	case state := <-w.updates:
		return state
	default:
		return pending
	}
}

func (w *Writer) write(state *domain.BatchState) error {
	start := w.now()
	err := w.save(state)
	elapsed := w.now().Sub(start)
	w.recorder.RecordStateWrite(context.Background(), elapsed, err)
	if err != nil {
		w.logger.Error("persist batch state failed", "batch_id", state.ID, "error", err)
		return err
	}
	w.logger.Debug("persisted batch state", "batch_id", state.ID, "elapsed", elapsed)
	return nil
}
