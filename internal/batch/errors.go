package batch

import "errors"

var (
	// ErrWriterClosed is returned when scheduling onto a writer that was shut down.
	ErrWriterClosed = errors.New("state writer closed")
	// ErrFlushTimeout is returned when pending state did not reach disk in time.
	ErrFlushTimeout = errors.New("state flush timed out")
	// ErrActiveBatchDelete is returned when deleting the batch in the active slot.
	ErrActiveBatchDelete = errors.New("cannot delete active batch, dismiss it first")
	// ErrActiveSlotTaken is returned when another batch already occupies the active slot.
	ErrActiveSlotTaken = errors.New("another batch occupies the active slot; resume or discard it first")
	// ErrNoFailedFiles is returned when retrying a batch that has no failed files.
	ErrNoFailedFiles = errors.New("batch has no failed files")
	// ErrBatchNotFound is returned for unknown batch identifiers.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrInvalidWorkers is returned for worker counts outside 1..10.
	ErrInvalidWorkers = errors.New("workers must be between 1 and 10")
	// ErrStateCorrupted marks a persisted record that failed to decode or validate.
	ErrStateCorrupted = errors.New("batch state corrupted")
)
