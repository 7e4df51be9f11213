package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultConvertTimeout bounds one ffmpeg conversion.
const DefaultConvertTimeout = 600 * time.Second

// StaleTempAge is how long a workspace file must sit untouched before CleanupAll removes it.
const StaleTempAge = time.Hour

const (
	mp3Codec      = "libmp3lame"
	mp3SampleRate = "16000"
	mp3Channels   = "1"
	mp3Bitrate    = "64k"
)

var ffmpegMessages = []struct {
	pattern string
	message string
}{
	{"no such file or directory", "Input file not found"},
	{"invalid data found", "Invalid or corrupted file format"},
	{"does not contain any stream", "File does not contain audio"},
	{"permission denied", "Cannot access file - permission denied"},
	{"invalid argument", "Invalid file or unsupported format"},
	{"end of file", "File appears to be incomplete or corrupted"},
	{"could not find codec", "Unsupported audio codec"},
	{"discarding buffer", "File encoding issue detected"},
}

// Converter extracts mono speech-grade MP3 audio with ffmpeg.
type Converter struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	runner      commandRunner
	tempDir     string
	stat        func(name string) (os.FileInfo, error)
	mkdirAll    func(path string, perm os.FileMode) error
	remove      func(name string) error
	newID       func() string
	now         func() time.Time
}

// NewConverter constructs a converter writing into a private temp directory.
func NewConverter(timeout time.Duration) *Converter {
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}
	return &Converter{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		timeout:     timeout,
		runner:      &execRunner{},
		tempDir:     filepath.Join(os.TempDir(), "batch-transcriber"),
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		remove:      os.Remove,
		newID:       func() string { return uuid.New().String() },
		now:         time.Now,
	}
}

// ToMP3 converts inputPath and returns the temporary MP3 path. Callers remove it with Cleanup.
func (c *Converter) ToMP3(ctx context.Context, inputPath string) (string, error) {
	if _, err := c.stat(inputPath); err != nil {
		return "", &PipelineError{
			Stage:   "converting",
			Message: fmt.Sprintf("file does not exist: %s", filepath.Base(inputPath)),
			Err:     err,
		}
	}
	if err := c.mkdirAll(c.tempDir, 0o700); err != nil {
		return "", &PipelineError{
			Stage:   "converting",
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}

	outPath := filepath.Join(c.tempDir, c.newID()+".mp3")
	args := buildFFmpegArgs(inputPath, outPath)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log, runErr := runLogged(runCtx, c.runner, c.ffmpegPath, args)
	if runErr != nil {
		_ = c.remove(outPath)
		message := sanitizeFFmpegError(log.Stderr)
		if errors.Is(runErr, context.DeadlineExceeded) {
			message = fmt.Sprintf("conversion timed out after %s", c.timeout)
		}
		return "", &PipelineError{
			Stage:      "converting",
			Message:    message,
			CommandLog: log,
			Err:        runErr,
		}
	}

	if _, err := c.stat(outPath); err != nil {
		return "", &PipelineError{
			Stage:      "converting",
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}
	return outPath, nil
}

// Duration probes media duration in seconds.
func (c *Converter) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{"-v", "error", "-print_format", "json", "-show_format", path}
	log, err := runLogged(ctx, c.runner, c.ffprobePath, args)
	if err != nil {
		return 0, &PipelineError{Stage: "probing", Message: "ffprobe failed", CommandLog: log, Err: err}
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(log.Stdout), &probe); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return seconds, nil
}

// Cleanup removes a converted file. Paths outside the converter workspace are left alone.
func (c *Converter) Cleanup(path string) {
	if path == "" || filepath.Dir(path) != c.tempDir {
		return
	}
	_ = c.remove(path)
}

// CleanupAll sweeps the converter workspace, downloads included, and removes files untouched
// for longer than olderThan. Paths in keep survive. It returns how many files were removed.
func (c *Converter) CleanupAll(olderThan time.Duration, keep ...string) (int, error) {
	kept := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		kept[filepath.Clean(p)] = struct{}{}
	}
	cutoff := c.now().Add(-olderThan)

	removed := 0
	var errs []error
	err := filepath.WalkDir(c.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := kept[path]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := c.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

// buildFFmpegArgs builds conversion args for mono 16 kHz MP3 output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-acodec", mp3Codec,
		"-ar", mp3SampleRate,
		"-ac", mp3Channels,
		"-b:a", mp3Bitrate,
		"-y",
		outPath,
	}
}

// sanitizeFFmpegError maps ffmpeg stderr to a message without local paths.
func sanitizeFFmpegError(stderr string) string {
	lower := strings.ToLower(stderr)
	for _, m := range ffmpegMessages {
		if strings.Contains(lower, m.pattern) {
			return m.message
		}
	}
	return "Media conversion failed - file may be corrupted or unsupported"
}

// NewConverterForTests constructs a converter with injectable dependencies.
func NewConverterForTests(
	runner commandRunner,
	tempDir string,
	timeout time.Duration,
	stat func(name string) (os.FileInfo, error),
	newID func() string,
) *Converter {
	c := NewConverter(timeout)
	c.runner = runner
	c.tempDir = tempDir
	c.stat = stat
	c.newID = newID
	return c
}
