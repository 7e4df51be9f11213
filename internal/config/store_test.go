package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"batch-transcriber/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.Language != "auto" {
		t.Fatalf("language = %q, want auto", cfg.Language)
	}
	if cfg.OutputFormat != domain.OutputFormatText {
		t.Fatalf("format = %q, want txt", cfg.OutputFormat)
	}
	if cfg.Workers != 3 {
		t.Fatalf("workers = %d, want 3", cfg.Workers)
	}
	if !cfg.SmartFormat {
		t.Fatal("expected smart formatting on by default")
	}
	if cfg.OutputDir == "" {
		t.Fatal("expected non-empty output dir")
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		OutputDir:    "/out",
		OutputFormat: domain.OutputFormatVTT,
		Language:     "en",
		Model:        "nova-3",
		Diarize:      true,
		Workers:      5,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadFillsMissingFields checks older files pick up new defaults.
func TestJSONStoreLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"outputDir":"/legacy","language":"de"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.OutputDir != "/legacy" || got.Language != "de" {
		t.Fatalf("settings = %+v, want stored values kept", got)
	}
	if got.Workers != DefaultWorkers || got.OutputFormat != domain.OutputFormatText {
		t.Fatalf("settings = %+v, want defaults for missing fields", got)
	}
}

// TestJSONStoreSaveRejectsInvalidWorkers checks validation runs before writing.
func TestJSONStoreSaveRejectsInvalidWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	cfg := DefaultSettings()
	cfg.Workers = 11

	err := NewJSONStore(path).Save(cfg)
	if !errors.Is(err, ErrWorkersOutOfRange) {
		t.Fatalf("Save() error = %v, want ErrWorkersOutOfRange", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("settings file should not exist, stat err = %v", statErr)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}
