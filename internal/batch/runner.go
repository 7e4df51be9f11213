package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"batch-transcriber/internal/domain"
)

// EventType names a per-file lifecycle transition.
type EventType string

const (
	EventConverting   EventType = "converting"
	EventTranscribing EventType = "transcribing"
	EventSaving       EventType = "saving"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventRetrying     EventType = "retrying"
)

// Event is emitted by the runner on every file transition.
type Event struct {
	Type            EventType `json:"type"`
	SourcePath      string    `json:"sourcePath"`
	OutputPath      string    `json:"outputPath,omitempty"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	RetryCount      int       `json:"retryCount"`
	Kind            ErrorKind `json:"kind,omitempty"`
	Message         string    `json:"message,omitempty"`
	Err             error     `json:"-"`
}

// Status returns the file status an event moves the file into.
func (e Event) Status() domain.FileStatus {
	switch e.Type {
	case EventConverting:
		return domain.FileStatusConverting
	case EventTranscribing:
		return domain.FileStatusTranscribing
	case EventSaving:
		return domain.FileStatusSaving
	case EventCompleted:
		return domain.FileStatusCompleted
	case EventFailed:
		return domain.FileStatusFailed
	default:
		return domain.FileStatusPending
	}
}

// Sink receives runner events. It is called synchronously from worker goroutines.
type Sink interface {
	OnEvent(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// OnEvent calls f.
func (f SinkFunc) OnEvent(e Event) { f(e) }

// Outcome is what a successfully processed file produced.
type Outcome struct {
	OutputPath      string
	DurationSeconds float64
}

// Processor runs one file through conversion, transcription and saving.
// report is called with converting, transcribing and saving as each stage begins.
type Processor interface {
	Process(ctx context.Context, sourcePath string, report func(domain.FileStatus)) (Outcome, error)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	Classifier Classifier
	Session    *SessionStats
	Recorder   Recorder
	Logger     *slog.Logger
}

// Report lists files by how the run left them, in completion order.
type Report struct {
	Completed  []string `json:"completed"`
	Failed     []string `json:"failed"`
	NotStarted []string `json:"notStarted"`
	Cancelled  bool     `json:"cancelled"`
}

// Runner processes files on a fixed-size worker pool.
type Runner struct {
	processor  Processor
	workers    int
	maxRetries int
	retryDelay time.Duration
	classify   Classifier
	session    *SessionStats
	recorder   Recorder
	logger     *slog.Logger
}

type fileResult struct {
	path    string
	started bool
	status  domain.FileStatus
}

// NewRunner validates options and builds a runner.
func NewRunner(processor Processor, opts RunnerOptions) (*Runner, error) {
	if opts.Workers < 1 || opts.Workers > 10 {
		return nil, ErrInvalidWorkers
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Classifier == nil {
		opts.Classifier = Classify
	}
	if opts.Session == nil {
		opts.Session = NewSessionStats()
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Runner{
		processor:  processor,
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		classify:   opts.Classifier,
		session:    opts.Session,
		recorder:   opts.Recorder,
		logger:     opts.Logger.With("component", "runner"),
	}, nil
}

// Session returns the shared session totals.
func (r *Runner) Session() *SessionStats {
	return r.session
}

// Run processes paths until all are done or ctx is cancelled. Cancellation stops new files
// from starting; files already started run to a terminal status.
func (r *Runner) Run(ctx context.Context, paths []string, sink Sink) Report {
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	if len(paths) == 0 {
		return Report{}
	}

	jobs := make(chan string)
	results := make(chan fileResult, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < min(r.workers, len(paths)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if ctx.Err() != nil {
					results <- fileResult{path: path}
					continue
				}
				results <- r.processFile(ctx, path, sink)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, path := range paths {
			select {
			case <-ctx.Done():
				for _, rest := range paths[i:] {
					results <- fileResult{path: rest}
				}
				return
			case jobs <- path:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var report Report
	for res := range results {
		switch {
		case !res.started:
			report.NotStarted = append(report.NotStarted, res.path)
		case res.status == domain.FileStatusCompleted:
			report.Completed = append(report.Completed, res.path)
		default:
			report.Failed = append(report.Failed, res.path)
		}
	}
	report.Cancelled = ctx.Err() != nil
	if report.Cancelled {
		r.logger.Info("run cancelled", "completed", len(report.Completed), "failed", len(report.Failed), "not_started", len(report.NotStarted))
	}
	return report
}

func (r *Runner) processFile(ctx context.Context, path string, sink Sink) fileResult {
	// Started files are not interrupted by cancellation.
	work := context.WithoutCancel(ctx)
	start := time.Now()

	for attempt := 0; ; attempt++ {
		report := func(status domain.FileStatus) {
			if t, ok := stageEvents[status]; ok {
				sink.OnEvent(Event{Type: t, SourcePath: path, RetryCount: attempt})
			}
		}

		outcome, err := r.processor.Process(work, path, report)
		if err == nil {
			r.session.AddCompleted(outcome.DurationSeconds)
			r.recorder.RecordFile(work, domain.FileStatusCompleted, time.Since(start))
			sink.OnEvent(Event{
				Type:            EventCompleted,
				SourcePath:      path,
				OutputPath:      outcome.OutputPath,
				DurationSeconds: outcome.DurationSeconds,
				RetryCount:      attempt,
			})
			return fileResult{path: path, started: true, status: domain.FileStatusCompleted}
		}

		verdict := r.classify(err)
		message := FriendlyMessage(err, verdict)
		if verdict.Retryable && attempt < r.maxRetries && r.waitRetry(ctx) {
			r.logger.Warn("retrying file", "path", path, "kind", verdict.Kind, "attempt", attempt+1, "error", err)
			r.session.AddRetry()
			r.recorder.RecordRetry(work, verdict.Kind)
			sink.OnEvent(Event{
				Type:       EventRetrying,
				SourcePath: path,
				RetryCount: attempt + 1,
				Kind:       verdict.Kind,
				Message:    message,
				Err:        err,
			})
			continue
		}

		r.logger.Warn("file failed", "path", path, "kind", verdict.Kind, "error", err)
		r.session.AddFailed()
		r.recorder.RecordFile(work, domain.FileStatusFailed, time.Since(start))
		sink.OnEvent(Event{
			Type:       EventFailed,
			SourcePath: path,
			RetryCount: attempt,
			Kind:       verdict.Kind,
			Message:    message,
			Err:        err,
		})
		return fileResult{path: path, started: true, status: domain.FileStatusFailed}
	}
}

// waitRetry sleeps the retry delay and reports whether the retry may proceed.
func (r *Runner) waitRetry(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if r.retryDelay <= 0 {
		return true
	}
	timer := time.NewTimer(r.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var stageEvents = map[domain.FileStatus]EventType{
	domain.FileStatusConverting:   EventConverting,
	domain.FileStatusTranscribing: EventTranscribing,
	domain.FileStatusSaving:       EventSaving,
}
