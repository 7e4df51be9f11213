package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileStatus is the per-file position in the transcription state machine.
type FileStatus string

const (
	FileStatusPending      FileStatus = "pending"
	FileStatusConverting   FileStatus = "converting"
	FileStatusTranscribing FileStatus = "transcribing"
	FileStatusSaving       FileStatus = "saving"
	FileStatusCompleted    FileStatus = "completed"
	FileStatusFailed       FileStatus = "failed"
	FileStatusSkipped      FileStatus = "skipped"
)

// ParseFileStatus accepts only the known file statuses.
func ParseFileStatus(raw string) (FileStatus, error) {
	switch s := FileStatus(raw); s {
	case FileStatusPending, FileStatusConverting, FileStatusTranscribing, FileStatusSaving,
		FileStatusCompleted, FileStatusFailed, FileStatusSkipped:
		return s, nil
	default:
		return "", fmt.Errorf("unknown file status %q", raw)
	}
}

// UnmarshalJSON rejects unknown statuses.
func (s *FileStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseFileStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// InProgress reports whether the file is somewhere between pending and a result.
func (s FileStatus) InProgress() bool {
	switch s {
	case FileStatusConverting, FileStatusTranscribing, FileStatusSaving:
		return true
	default:
		return false
	}
}

// BatchStatus is the lifecycle status of a whole batch.
type BatchStatus string

const (
	BatchStatusActive    BatchStatus = "active"
	BatchStatusPaused    BatchStatus = "paused"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusArchived  BatchStatus = "archived"
)

// ParseBatchStatus accepts only the known batch statuses.
func ParseBatchStatus(raw string) (BatchStatus, error) {
	switch s := BatchStatus(raw); s {
	case BatchStatusActive, BatchStatusPaused, BatchStatusCompleted, BatchStatusArchived:
		return s, nil
	default:
		return "", fmt.Errorf("unknown batch status %q", raw)
	}
}

// UnmarshalJSON rejects unknown statuses.
func (s *BatchStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseBatchStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseOutputFormat accepts only the supported output formats.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch f := OutputFormat(raw); f {
	case OutputFormatText, OutputFormatSRT, OutputFormatVTT:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", raw)
	}
}

// UnmarshalJSON rejects unknown formats.
func (f *OutputFormat) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseOutputFormat(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// BatchSettings is the configuration snapshot captured when a batch starts.
type BatchSettings struct {
	OutputFormat OutputFormat `json:"output_format"`
	OutputDir    string       `json:"output_dir,omitempty"`
	Language     string       `json:"language"`
	Diarize      bool         `json:"diarize"`
	SmartFormat  bool         `json:"smart_format"`
	Workers      int          `json:"max_concurrent_workers"`
}

// FileState is the persisted progress record of one source file.
type FileState struct {
	SourcePath      string     `json:"source_path"`
	Status          FileStatus `json:"status"`
	OutputPath      string     `json:"output_path,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	RetryCount      int        `json:"retry_count"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// BatchStatistics is derived from the file list; never edit it by hand.
type BatchStatistics struct {
	TotalFiles           int     `json:"total_files"`
	Completed            int     `json:"completed"`
	Failed               int     `json:"failed"`
	Pending              int     `json:"pending"`
	Skipped              int     `json:"skipped"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

// BatchState is the root record persisted for one batch.
type BatchState struct {
	ID          string          `json:"batch_id"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Settings    BatchSettings   `json:"settings"`
	Files       []FileState     `json:"files"`
	Statistics  BatchStatistics `json:"statistics"`
	Status      BatchStatus     `json:"status"`
}

// BatchSummary is the lightweight index entry describing a stored batch.
type BatchSummary struct {
	ID             string      `json:"batch_id"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	LastUpdated    time.Time   `json:"last_updated"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	TotalFiles     int         `json:"total_files"`
	CompletedFiles int         `json:"completed_files"`
	FailedFiles    int         `json:"failed_files"`
	SkippedFiles   int         `json:"skipped_files"`
	Record         string      `json:"record"`
}
