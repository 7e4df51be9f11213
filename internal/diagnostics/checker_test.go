package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"batch-transcriber/internal/domain"
)

func allToolsFound(name string) (string, error) { return "/usr/local/bin/" + name, nil }

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(allToolsFound, os.MkdirAll, os.CreateTemp, os.Remove)

	report := checker.Run(Input{
		Settings: domain.Settings{OutputDir: filepath.Join(root, "output")},
		APIKey:   "key",
		DataDir:  filepath.Join(root, "data"),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if _, err := os.Stat(filepath.Join(root, "output")); err != nil {
		t.Fatalf("output dir should be created: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("read data dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("write-check file left behind: %v", entries)
	}
}

// TestCheckerRunMissingToolsAndKey validates failure reporting.
func TestCheckerRunMissingToolsAndKey(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(Input{DataDir: ""})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_ffprobe", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_yt-dlp", domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, "api_key", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusPass)
	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)
}

// TestCheckerRunOnlyOptionalToolMissing checks a warning alone does not block.
func TestCheckerRunOnlyOptionalToolMissing(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			if name == ToolYtDlp {
				return "", errors.New("not found")
			}
			return "/usr/bin/" + name, nil
		},
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(Input{APIKey: "key", DataDir: root})
	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	assertStatusByID(t, report, "tool_yt-dlp", domain.DiagnosticStatusWarn)
}

// TestCheckerRunUnwritableDataDir checks write probe errors surface as failures.
func TestCheckerRunUnwritableDataDir(t *testing.T) {
	checker := NewCheckerForTests(
		allToolsFound,
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, errors.New("permission denied") },
		os.Remove,
	)

	report := checker.Run(Input{APIKey: "key", DataDir: "/readonly"})
	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
