package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// URLKind classifies a media URL.
type URLKind string

const (
	URLKindVideo    URLKind = "video"
	URLKindPlaylist URLKind = "playlist"
	URLKindChannel  URLKind = "channel"
	URLKindOther    URLKind = "other"
)

var (
	videoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	}
	playlistPattern = regexp.MustCompile(`youtube\.com/playlist\?list=([a-zA-Z0-9_-]+)`)
	listParam       = regexp.MustCompile(`[?&]list=([a-zA-Z0-9_-]+)`)
	channelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/@([^/?]+)`),
		regexp.MustCompile(`youtube\.com/channel/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`youtube\.com/c/([^/?]+)`),
	}
	channelTabs = []string{"/videos", "/shorts", "/streams", "/playlists"}
)

// DetectURLKind reports whether url names a single video, a playlist or a channel.
// A video link carrying a list parameter counts as its playlist.
func DetectURLKind(url string) URLKind {
	url = strings.TrimSpace(url)
	if playlistPattern.MatchString(url) {
		return URLKindPlaylist
	}
	for _, re := range videoPatterns {
		if re.MatchString(url) {
			if listParam.MatchString(url) {
				return URLKindPlaylist
			}
			return URLKindVideo
		}
	}
	for _, re := range channelPatterns {
		if re.MatchString(url) {
			return URLKindChannel
		}
	}
	return URLKindOther
}

// collectionURL rewrites playlist links to the canonical playlist page and points
// channel links at their uploads tab.
func collectionURL(url string, kind URLKind) string {
	url = strings.TrimSpace(url)
	switch kind {
	case URLKindPlaylist:
		if m := listParam.FindStringSubmatch(url); m != nil {
			return "https://www.youtube.com/playlist?list=" + m[1]
		}
	case URLKindChannel:
		if strings.Contains(url, "?") {
			return url
		}
		url = strings.TrimRight(url, "/")
		for _, tab := range channelTabs {
			if strings.HasSuffix(url, tab) {
				return url
			}
		}
		return url + "/videos"
	}
	return url
}

// DownloadFailure is one playlist entry that could not be fetched.
type DownloadFailure struct {
	URL string
	Err error
}

// DownloadResult lists the local files fetched for one URL.
type DownloadResult struct {
	Kind   URLKind
	Paths  []string
	Failed []DownloadFailure
}

// Downloader fetches remote media audio with yt-dlp.
type Downloader struct {
	ytdlpPath string
	runner    commandRunner
	tempDir   string
	mkdirAll  func(path string, perm os.FileMode) error
	stat      func(name string) (os.FileInfo, error)
	newID     func() string
}

// NewDownloader constructs a downloader writing into dir, or a temp directory when empty.
func NewDownloader(dir string) *Downloader {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "batch-transcriber", "downloads")
	}
	return &Downloader{
		ytdlpPath: "yt-dlp",
		runner:    &execRunner{},
		tempDir:   dir,
		mkdirAll:  os.MkdirAll,
		stat:      os.Stat,
		newID:     func() string { return uuid.New().String()[:8] },
	}
}

// Download fetches the best audio stream of url as MP3 and returns the local path.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", &PipelineError{Stage: "downloading", Message: "url is required"}
	}
	if err := d.mkdirAll(d.tempDir, 0o755); err != nil {
		return "", &PipelineError{Stage: "downloading", Message: "failed to create download directory", Err: err}
	}

	args := buildYtDlpArgs(url, d.tempDir, d.newID())
	log, runErr := runLogged(ctx, d.runner, d.ytdlpPath, args)
	if runErr != nil {
		return "", &PipelineError{
			Stage:      "downloading",
			Message:    friendlyDownloadError(log.Stderr),
			CommandLog: log,
			Err:        runErr,
		}
	}

	path := lastLine(log.Stdout)
	if path == "" {
		return "", &PipelineError{
			Stage:      "downloading",
			Message:    "yt-dlp did not report an output file",
			CommandLog: log,
			Err:        errors.New("empty yt-dlp output"),
		}
	}
	if _, err := d.stat(path); err != nil {
		return "", &PipelineError{
			Stage:      "downloading",
			Message:    fmt.Sprintf("downloaded file is missing: %s", filepath.Base(path)),
			CommandLog: log,
			Err:        err,
		}
	}
	return path, nil
}

// DownloadAll fetches url, expanding playlists and channels into their entries. Entries are
// fetched one after another; a failing entry is recorded and the rest continue. An error is
// returned when nothing was downloaded or ctx ends.
func (d *Downloader) DownloadAll(ctx context.Context, url string) (DownloadResult, error) {
	kind := DetectURLKind(url)
	result := DownloadResult{Kind: kind}

	if kind != URLKindPlaylist && kind != URLKindChannel {
		path, err := d.Download(ctx, url)
		if err != nil {
			return result, err
		}
		result.Paths = []string{path}
		return result, nil
	}

	entries, err := d.ListEntries(ctx, collectionURL(url, kind))
	if err != nil {
		return result, err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		path, err := d.Download(ctx, entry)
		if err != nil {
			result.Failed = append(result.Failed, DownloadFailure{URL: entry, Err: err})
			continue
		}
		result.Paths = append(result.Paths, path)
	}
	if len(result.Paths) == 0 {
		return result, &PipelineError{
			Stage:   "downloading",
			Message: fmt.Sprintf("none of the %d %s entries could be downloaded", len(entries), kind),
			Err:     errors.Join(failureErrors(result.Failed)...),
		}
	}
	return result, nil
}

// ListEntries returns the video URLs of a playlist or channel without downloading them.
func (d *Downloader) ListEntries(ctx context.Context, url string) ([]string, error) {
	args := []string{"--flat-playlist", "--no-warnings", "--print", "url", url}
	log, runErr := runLogged(ctx, d.runner, d.ytdlpPath, args)
	if runErr != nil {
		return nil, &PipelineError{
			Stage:      "downloading",
			Message:    friendlyDownloadError(log.Stderr),
			CommandLog: log,
			Err:        runErr,
		}
	}

	var entries []string
	for _, line := range strings.Split(log.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "NA" {
			continue
		}
		entries = append(entries, line)
	}
	if len(entries) == 0 {
		return nil, &PipelineError{
			Stage:      "downloading",
			Message:    "playlist has no entries",
			CommandLog: log,
			Err:        errors.New("empty yt-dlp listing"),
		}
	}
	return entries, nil
}

func failureErrors(failed []DownloadFailure) []error {
	errs := make([]error, 0, len(failed))
	for _, f := range failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// buildYtDlpArgs builds args that extract audio to MP3 and print the final path.
func buildYtDlpArgs(url, dir, id string) []string {
	return []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--no-playlist",
		"--no-progress",
		"-o", filepath.Join(dir, "%(title).50s_"+id+".%(ext)s"),
		"--print", "after_move:filepath",
		url,
	}
}

func friendlyDownloadError(stderr string) string {
	switch {
	case strings.Contains(stderr, "Private video"):
		return "Video is private"
	case strings.Contains(stderr, "Video unavailable"):
		return "Video unavailable"
	case strings.Contains(stderr, "Sign in"):
		return "Requires sign-in"
	case strings.Contains(strings.ToLower(stderr), "ffmpeg not found"):
		return "ffmpeg not found"
	}
	msg := lastLine(stderr)
	if len(msg) > 100 {
		msg = msg[:100]
	}
	if msg == "" {
		msg = "download failed"
	}
	return msg
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
