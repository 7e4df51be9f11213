package transcribe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"batch-transcriber/internal/domain"
)

func intPtr(v int) *int { return &v }

// TestOutputWriterSaveResolvesConflicts checks existing transcripts are never overwritten.
func TestOutputWriterSaveResolvesConflicts(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "talk.mp3")
	mustWriteFile(t, filepath.Join(root, "talk.txt"), "old")
	mustWriteFile(t, filepath.Join(root, "talk_1.txt"), "older")

	w := NewOutputWriter()
	path, err := w.Save(Transcript{Text: " new "}, source, domain.OutputFormatText, "")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(root, "talk_2.txt") {
		t.Fatalf("path = %q", path)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "new" {
		t.Fatalf("content = %q", content)
	}
}

// TestOutputWriterSaveCustomDir checks output directory creation.
func TestOutputWriterSaveCustomDir(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, "nested", "out")

	path, err := NewOutputWriter().Save(Transcript{Text: "x", DurationSeconds: 2}, "/src/clip.mkv", domain.OutputFormatVTT, outDir)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(outDir, "clip.vtt") {
		t.Fatalf("path = %q", path)
	}
}

// TestRenderTextSpeakers checks speaker labels appear on speaker change only.
func TestRenderTextSpeakers(t *testing.T) {
	got := renderText(Transcript{Paragraphs: []Paragraph{
		{Text: "one", Speaker: intPtr(0)},
		{Text: "two", Speaker: intPtr(0)},
		{Text: "three", Speaker: intPtr(1)},
	}})
	want := "[Speaker 1]\none\ntwo\n\n[Speaker 2]\nthree"
	if got != want {
		t.Fatalf("renderText = %q, want %q", got, want)
	}
}

// TestRenderSRTUtterances checks cue numbering and timestamp format.
func TestRenderSRTUtterances(t *testing.T) {
	got := renderSRT(Transcript{Utterances: []Utterance{
		{Text: "Hello", Start: 1, End: 4.5, Speaker: intPtr(0)},
		{Text: "World", Start: 3661.25, End: 3662},
	}})
	want := "1\n00:00:01,000 --> 00:00:04,500\n[Speaker 1] Hello\n\n" +
		"2\n01:01:01,250 --> 01:01:02,000\nWorld\n\n"
	if got != want {
		t.Fatalf("renderSRT = %q, want %q", got, want)
	}
}

// TestRenderVTTWordGroups checks the word grouping fallback.
func TestRenderVTTWordGroups(t *testing.T) {
	var words []Word
	for i := 0; i < 12; i++ {
		words = append(words, Word{Text: "w", Start: float64(i) * 0.2, End: float64(i)*0.2 + 0.1})
	}
	got := renderVTT(Transcript{Words: words})
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Fatalf("missing header: %q", got)
	}
	if n := strings.Count(got, "-->"); n != 2 {
		t.Fatalf("cue count = %d, want 2", n)
	}
	if !strings.Contains(got, "00:00:00.000 --> 00:00:01.900\nw w w w w w w w w w\n") {
		t.Fatalf("first cue mismatch: %q", got)
	}
}

// TestRenderSRTSingleCueFallback checks plain text becomes one full-length cue.
func TestRenderSRTSingleCueFallback(t *testing.T) {
	got := renderSRT(Transcript{Text: "just text", DurationSeconds: 7.5})
	want := "1\n00:00:00,000 --> 00:00:07,500\njust text\n\n"
	if got != want {
		t.Fatalf("renderSRT = %q, want %q", got, want)
	}
	if renderSRT(Transcript{}) != "" {
		t.Fatal("empty transcript should render nothing")
	}
}
