package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
)

const (
	meterName = "batch-transcriber"

	metricFilesTotal       = "transcriber.files.total"
	metricFileDuration     = "transcriber.file.duration.seconds"
	metricRetriesTotal     = "transcriber.retries.total"
	metricStateWritesTotal = "transcriber.state.writes.total"
	metricStateWriteTime   = "transcriber.state.write.duration.seconds"

	attrStatus = "status"
	attrKind   = "kind"
	attrResult = "result"
)

// BatchMetrics records batch processing instruments. It satisfies batch.Recorder.
type BatchMetrics struct {
	files          metric.Int64Counter
	fileDuration   metric.Float64Histogram
	retries        metric.Int64Counter
	stateWrites    metric.Int64Counter
	stateWriteTime metric.Float64Histogram
}

var _ batch.Recorder = (*BatchMetrics)(nil)

// NewBatchMetrics creates the instruments on mt.
func NewBatchMetrics(mt metric.Meter) (*BatchMetrics, error) {
	files, err := mt.Int64Counter(metricFilesTotal,
		metric.WithDescription("Files that reached a terminal status"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesTotal, err)
	}

	fileDuration, err := mt.Float64Histogram(metricFileDuration,
		metric.WithDescription("Wall time spent processing one file"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFileDuration, err)
	}

	retries, err := mt.Int64Counter(metricRetriesTotal,
		metric.WithDescription("Retry attempts by error kind"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRetriesTotal, err)
	}

	stateWrites, err := mt.Int64Counter(metricStateWritesTotal,
		metric.WithDescription("Batch state writes by result"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStateWritesTotal, err)
	}

	stateWriteTime, err := mt.Float64Histogram(metricStateWriteTime,
		metric.WithDescription("Latency of atomic batch state writes"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStateWriteTime, err)
	}

	return &BatchMetrics{
		files:          files,
		fileDuration:   fileDuration,
		retries:        retries,
		stateWrites:    stateWrites,
		stateWriteTime: stateWriteTime,
	}, nil
}

// RecordFile counts a terminal file outcome.
func (m *BatchMetrics) RecordFile(ctx context.Context, status domain.FileStatus, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrStatus, string(status)))
	m.files.Add(ctx, 1, attrs)
	m.fileDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordRetry counts one retry attempt.
func (m *BatchMetrics) RecordRetry(ctx context.Context, kind batch.ErrorKind) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, string(kind))))
}

// RecordStateWrite counts one state write and its latency.
func (m *BatchMetrics) RecordStateWrite(ctx context.Context, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	attrs := metric.WithAttributes(attribute.String(attrResult, result))
	m.stateWrites.Add(ctx, 1, attrs)
	m.stateWriteTime.Record(ctx, elapsed.Seconds(), attrs)
}
