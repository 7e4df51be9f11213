package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"batch-transcriber/internal/domain"
)

const (
	maxCueWords   = 10
	maxCueSeconds = 5.0
)

// OutputWriter renders transcripts to txt, srt or vtt files.
type OutputWriter struct {
	stat      func(name string) (os.FileInfo, error)
	mkdirAll  func(path string, perm os.FileMode) error
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// NewOutputWriter constructs a writer over the real file system.
func NewOutputWriter() *OutputWriter {
	return &OutputWriter{
		stat:      os.Stat,
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
	}
}

// Save writes t next to sourcePath, or into outputDir when set, and returns the written path.
// Existing files are never overwritten; a numeric suffix is added instead.
func (w *OutputWriter) Save(t Transcript, sourcePath string, format domain.OutputFormat, outputDir string) (string, error) {
	var content string
	switch format {
	case domain.OutputFormatText:
		content = renderText(t)
	case domain.OutputFormatSRT:
		content = renderSRT(t)
	case domain.OutputFormatVTT:
		content = renderVTT(t)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}

	dir := filepath.Dir(sourcePath)
	if strings.TrimSpace(outputDir) != "" {
		dir = outputDir
		if err := w.mkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}

	path := w.resolveConflict(filepath.Join(dir, baseName(sourcePath)+"."+string(format)))
	if err := w.writeFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// resolveConflict returns path, or path with _1, _2, ... before the extension if taken.
func (w *OutputWriter) resolveConflict(path string) string {
	if _, err := w.stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := stem + "_" + strconv.Itoa(i) + ext
		if _, err := w.stat(candidate); err != nil {
			return candidate
		}
	}
}

func baseName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "transcript"
	}
	return name
}

func renderText(t Transcript) string {
	if len(t.Paragraphs) == 0 {
		return strings.TrimSpace(t.Text)
	}

	var lines []string
	current := -1
	for _, p := range t.Paragraphs {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if p.Speaker != nil && *p.Speaker != current {
			current = *p.Speaker
			lines = append(lines, fmt.Sprintf("\n[Speaker %d]", current+1))
		}
		lines = append(lines, text)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type cue struct {
	start, end float64
	text       string
}

// cues prefers utterances, then grouped words, then one cue over the whole duration.
func cues(t Transcript) []cue {
	var out []cue
	if len(t.Utterances) > 0 {
		for _, u := range t.Utterances {
			text := strings.TrimSpace(u.Text)
			if u.Speaker != nil {
				text = fmt.Sprintf("[Speaker %d] %s", *u.Speaker+1, text)
			}
			out = append(out, cue{start: u.Start, end: u.End, text: text})
		}
		return out
	}

	if len(t.Words) > 0 {
		for _, group := range groupWords(t.Words, maxCueWords, maxCueSeconds) {
			texts := make([]string, len(group))
			for i, w := range group {
				texts[i] = w.Text
			}
			out = append(out, cue{start: group[0].Start, end: group[len(group)-1].End, text: strings.Join(texts, " ")})
		}
		return out
	}

	if text := strings.TrimSpace(t.Text); text != "" {
		return []cue{{start: 0, end: t.DurationSeconds, text: text}}
	}
	return nil
}

func groupWords(words []Word, maxWords int, maxSeconds float64) [][]Word {
	var groups [][]Word
	var current []Word
	for _, w := range words {
		current = append(current, w)
		if len(current) >= maxWords || w.End-current[0].Start >= maxSeconds {
			groups = append(groups, current)
			current = nil
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func renderSRT(t Transcript) string {
	var b strings.Builder
	for i, c := range cues(t) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, timestamp(c.start, ","), timestamp(c.end, ","), c.text)
	}
	return b.String()
}

func renderVTT(t Transcript) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues(t) {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", timestamp(c.start, "."), timestamp(c.end, "."), c.text)
	}
	return b.String()
}

// timestamp formats seconds as HH:MM:SS<sep>mmm.
func timestamp(seconds float64, sep string) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds*1000 + 0.5)
	ms := total % 1000
	s := total / 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", s/3600, (s%3600)/60, s%60, sep, ms)
}
