package batch

import (
	"context"
	"time"

	"batch-transcriber/internal/domain"
)

// Recorder receives batch processing measurements.
type Recorder interface {
	RecordFile(ctx context.Context, status domain.FileStatus, elapsed time.Duration)
	RecordRetry(ctx context.Context, kind ErrorKind)
	RecordStateWrite(ctx context.Context, elapsed time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordFile(context.Context, domain.FileStatus, time.Duration) {}
func (noopRecorder) RecordRetry(context.Context, ErrorKind)                       {}
func (noopRecorder) RecordStateWrite(context.Context, time.Duration, error)       {}
