package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/scan"
)

// audioConverter extracts upload-ready audio.
type audioConverter interface {
	ToMP3(ctx context.Context, inputPath string) (string, error)
	Duration(ctx context.Context, path string) (float64, error)
	Cleanup(path string)
}

// speechClient performs recognition on an audio file.
type speechClient interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (Transcript, error)
}

// transcriptSaver persists a transcript next to its source.
type transcriptSaver interface {
	Save(t Transcript, sourcePath string, format domain.OutputFormat, outputDir string) (string, error)
}

// Pipeline runs one file through conversion, recognition and output.
type Pipeline struct {
	converter audioConverter
	client    speechClient
	saver     transcriptSaver
	settings  domain.BatchSettings
	logger    *slog.Logger
	stat      func(name string) (os.FileInfo, error)
	isVideo   func(path string) bool
}

// NewPipeline composes the production collaborators for settings.
func NewPipeline(converter *Converter, client *Client, saver *OutputWriter, settings domain.BatchSettings, logger *slog.Logger) *Pipeline {
	return newPipeline(converter, client, saver, settings, logger)
}

func newPipeline(converter audioConverter, client speechClient, saver transcriptSaver, settings domain.BatchSettings, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		converter: converter,
		client:    client,
		saver:     saver,
		settings:  settings,
		logger:    logger.With("component", "pipeline"),
		stat:      os.Stat,
		isVideo:   scan.IsVideo,
	}
}

// Process implements batch.Processor.
func (p *Pipeline) Process(ctx context.Context, sourcePath string, report func(domain.FileStatus)) (batch.Outcome, error) {
	if _, err := p.stat(sourcePath); err != nil {
		return batch.Outcome{}, fmt.Errorf("file does not exist: %w", err)
	}

	audioPath := sourcePath
	if p.isVideo(sourcePath) {
		report(domain.FileStatusConverting)
		converted, err := p.converter.ToMP3(ctx, sourcePath)
		if err != nil {
			return batch.Outcome{}, err
		}
		defer p.converter.Cleanup(converted)
		audioPath = converted
	}

	report(domain.FileStatusTranscribing)
	transcript, err := p.client.Transcribe(ctx, audioPath, Options{
		Language:    p.settings.Language,
		Diarize:     p.settings.Diarize,
		SmartFormat: p.settings.SmartFormat,
	})
	if err != nil {
		return batch.Outcome{}, err
	}

	duration := transcript.DurationSeconds
	if duration <= 0 {
		if probed, probeErr := p.converter.Duration(ctx, audioPath); probeErr == nil {
			duration = probed
			transcript.DurationSeconds = probed
		} else {
			p.logger.Debug("duration probe failed", "path", sourcePath, "error", probeErr)
		}
	}

	report(domain.FileStatusSaving)
	outPath, err := p.saver.Save(transcript, sourcePath, p.settings.OutputFormat, p.settings.OutputDir)
	if err != nil {
		return batch.Outcome{}, &PipelineError{Stage: "saving", Message: "failed to write transcript", Err: err}
	}

	return batch.Outcome{OutputPath: outPath, DurationSeconds: duration}, nil
}
