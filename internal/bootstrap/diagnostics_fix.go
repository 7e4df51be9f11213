package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"batch-transcriber/internal/config"
	"batch-transcriber/internal/diagnostics"
	"batch-transcriber/internal/domain"
)

const (
	installCommandTimeout = 45 * time.Minute
	downloadToolTimeout   = 30 * time.Minute

	ytDlpReleaseBase = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/"
)

type installOption struct {
	manager  string
	commands [][]string
}

// installer runs package-manager commands; fields are swapped in tests.
type installer struct {
	goos       string
	lookPath   func(string) (string, error)
	runCommand func(name string, args ...string) error
	download   func(dest, url string, timeout time.Duration) error
}

func newInstaller() *installer {
	return &installer{
		goos:       goruntime.GOOS,
		lookPath:   exec.LookPath,
		runCommand: runCommand,
		download:   downloadURLToFile,
	}
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	inst := newInstaller()
	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_" + diagnostics.ToolFFmpeg, "tool_" + diagnostics.ToolFFprobe:
		fixErr = inst.installFFmpeg()
	case "tool_" + diagnostics.ToolYtDlp:
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return domain.DiagnosticReport{}, fmt.Errorf("resolve user home: %w", homeErr)
		}
		fixErr = inst.installYtDlp(localBinDir(homeDir))
	case "output_dir":
		settings, settingsChanged, fixErr = installOrFixOutputDir(settings)
	case "data_dir":
		if a.Config == nil {
			return domain.DiagnosticReport{}, fmt.Errorf("application config is not loaded")
		}
		fixErr = os.MkdirAll(a.Config.DataDir, 0o755)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(a.diagnosticsInput(settings))
	}
	return a.Diagnostics
}

func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".batch-transcriber", "bin")
}

// ffmpegOptions lists package managers able to install ffmpeg and ffprobe on goos.
func ffmpegOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

// ytDlpOptions lists package managers able to install yt-dlp on goos.
func ytDlpOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "yt-dlp.yt-dlp", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "yt-dlp"}}},
		}
	default:
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "yt-dlp"}}},
			{manager: "pipx", commands: [][]string{{"pipx", "install", "yt-dlp"}}},
		}
	}
}

// ytDlpAsset returns the standalone release asset and local binary name for goos.
func ytDlpAsset(goos string) (asset, binary string) {
	switch goos {
	case "windows":
		return "yt-dlp.exe", "yt-dlp.exe"
	case "darwin":
		return "yt-dlp_macos", "yt-dlp"
	default:
		return "yt-dlp", "yt-dlp"
	}
}

func (i *installer) installFFmpeg() error {
	if err := i.runFirstSuccessful(ffmpegOptions(i.goos)); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := i.requireTools(diagnostics.ToolFFmpeg, diagnostics.ToolFFprobe); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	return nil
}

// installYtDlp tries package managers first, then the standalone release binary in binDir.
func (i *installer) installYtDlp(binDir string) error {
	managerErr := i.runFirstSuccessful(ytDlpOptions(i.goos))
	if managerErr == nil && i.requireTools(diagnostics.ToolYtDlp) == nil {
		return nil
	}

	asset, binary := ytDlpAsset(i.goos)
	target := filepath.Join(binDir, binary)
	if err := i.download(target, ytDlpReleaseBase+asset, downloadToolTimeout); err != nil {
		if managerErr != nil {
			return fmt.Errorf("install yt-dlp: %v; download release: %w", managerErr, err)
		}
		return fmt.Errorf("download yt-dlp release: %w", err)
	}
	if err := os.Chmod(target, 0o755); err != nil {
		return fmt.Errorf("mark yt-dlp executable: %w", err)
	}
	return i.requireTools(diagnostics.ToolYtDlp)
}

func (i *installer) runFirstSuccessful(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !i.available(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := i.runCommands(option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (i *installer) runCommands(commands [][]string) error {
	for _, command := range commands {
		if err := i.runWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func (i *installer) runWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.available("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.available("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := i.runCommand(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func (i *installer) available(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func (i *installer) requireTools(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if !i.available(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

// downloadURLToFile streams sourceURL into a sibling temp file and renames it over destinationPath.
func downloadURLToFile(destinationPath string, sourceURL string, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "batch-transcriber")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}

	return nil
}

// installOrFixOutputDir creates the output directory. An empty one is reset to the default.
func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}
