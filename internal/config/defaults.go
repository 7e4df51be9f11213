package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"batch-transcriber/internal/domain"
)

const (
	appDirName       = ".batch-transcriber"
	settingsFileName = "settings.json"

	DefaultWorkers = 3
	MinWorkers     = 1
	MaxWorkers     = 10
	DefaultModel   = "nova-2"
)

var (
	// ErrWorkersOutOfRange indicates a worker count outside 1..10.
	ErrWorkersOutOfRange = errors.New("workers must be between 1 and 10")
	// ErrUnknownOutputFormat indicates an output format other than txt, srt or vtt.
	ErrUnknownOutputFormat = errors.New("unknown output format")
)

// DefaultDataDir returns the per-user directory holding settings and batch records.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return filepath.Join(homeDir, appDirName)
}

// DefaultSettingsPath returns the settings file inside dataDir.
func DefaultSettingsPath(dataDir string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	return filepath.Join(dataDir, settingsFileName)
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:    filepath.Join(homeDir, "Documents", "Transcripts"),
		OutputFormat: domain.OutputFormatText,
		Language:     "auto",
		Model:        DefaultModel,
		SmartFormat:  true,
		Workers:      DefaultWorkers,
	}
}

// Normalize fills zero values with defaults.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = defaults.OutputFormat
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = defaults.Language
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaults.Workers
	}

	return cfg
}

// ValidateSettings checks the user-editable fields.
func ValidateSettings(cfg domain.Settings) error {
	if cfg.Workers < MinWorkers || cfg.Workers > MaxWorkers {
		return fmt.Errorf("%w: got %d", ErrWorkersOutOfRange, cfg.Workers)
	}
	if _, err := domain.ParseOutputFormat(string(cfg.OutputFormat)); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownOutputFormat, cfg.OutputFormat)
	}

	return nil
}
