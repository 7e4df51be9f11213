package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/lo"

	"batch-transcriber/internal/domain"
)

// Tool IDs reported by Run.
const (
	ToolFFmpeg  = "ffmpeg"
	ToolFFprobe = "ffprobe"
	ToolYtDlp   = "yt-dlp"
)

// Input carries what the checks need beyond user settings.
type Input struct {
	Settings domain.Settings
	APIKey   string
	DataDir  string
}

// Checker validates external tools, credentials and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(in Input) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(ToolFFmpeg, true),
		c.checkTool(ToolFFprobe, true),
		c.checkTool(ToolYtDlp, false),
		checkAPIKey(in.APIKey),
		c.checkOutputDir(in.Settings.OutputDir),
		c.checkDataDir(in.DataDir),
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: lo.ContainsBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// checkTool verifies a CLI executable is on PATH. Optional tools only warn.
func (c *Checker) checkTool(name string, required bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "tool_" + name,
		Name: name,
	}

	path, err := c.lookPath(name)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", name)
		item.Hint = "Install it and ensure the binary is available on PATH before starting a batch."
		item.Fixable = true
		if !required {
			item.Status = domain.DiagnosticStatusWarn
			item.Hint = "Only needed for URL downloads."
		}
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

func checkAPIKey(key string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "api_key",
		Name: "Speech API key",
	}

	if strings.TrimSpace(key) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No API key configured."
		item.Hint = "Set api.key in .batch-transcriber.yaml or export TRANSCRIBER_API_KEY."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "API key configured."
	return item
}

// checkOutputDir validates output directory existence and write access.
// An empty directory means transcripts are written next to their sources.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Transcripts are saved next to each source file."
		return item
	}

	return c.checkWritable(item, outputDir, "Choose a writable directory for transcript export.")
}

// checkDataDir validates the directory holding settings and batch records.
func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Batch history directory",
	}

	if strings.TrimSpace(dataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is empty."
		item.Hint = "Set data_dir in the application config."
		return item
	}

	return c.checkWritable(item, dataDir, "Batch progress cannot be saved; adjust filesystem permissions.")
}

func (c *Checker) checkWritable(item domain.DiagnosticItem, dir, hint string) domain.DiagnosticItem {
	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = hint
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = hint
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}
