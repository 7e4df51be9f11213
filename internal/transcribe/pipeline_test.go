package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"batch-transcriber/internal/domain"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// fakeConverter records conversion calls.
type fakeConverter struct {
	converted []string
	cleaned   []string
	duration  float64
	err       error
}

func (f *fakeConverter) ToMP3(_ context.Context, in string) (string, error) {
	f.converted = append(f.converted, in)
	if f.err != nil {
		return "", f.err
	}
	return in + ".converted.mp3", nil
}

func (f *fakeConverter) Duration(context.Context, string) (float64, error) {
	return f.duration, nil
}

func (f *fakeConverter) Cleanup(path string) {
	f.cleaned = append(f.cleaned, path)
}

// fakeClient returns a canned transcript.
type fakeClient struct {
	gotPath string
	gotOpts Options
	result  Transcript
	err     error
}

func (f *fakeClient) Transcribe(_ context.Context, path string, opts Options) (Transcript, error) {
	f.gotPath = path
	f.gotOpts = opts
	return f.result, f.err
}

// TestPipelineProcessVideo checks the convert, transcribe and save sequence for video input.
func TestPipelineProcessVideo(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "meeting.mp4")
	outDir := filepath.Join(root, "out")
	mustWriteFile(t, input, "media")

	conv := &fakeConverter{duration: 12}
	client := &fakeClient{result: Transcript{Text: "hello world"}}
	settings := domain.BatchSettings{OutputFormat: domain.OutputFormatText, OutputDir: outDir, Language: "auto", SmartFormat: true, Workers: 1}
	p := newPipeline(conv, client, NewOutputWriter(), settings, nil)

	var stages []domain.FileStatus
	outcome, err := p.Process(context.Background(), input, func(s domain.FileStatus) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := []domain.FileStatus{domain.FileStatusConverting, domain.FileStatusTranscribing, domain.FileStatusSaving}
	if !reflect.DeepEqual(stages, want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	if client.gotPath != input+".converted.mp3" {
		t.Fatalf("transcribed path = %q", client.gotPath)
	}
	if !client.gotOpts.SmartFormat || client.gotOpts.Language != "auto" {
		t.Fatalf("options = %+v", client.gotOpts)
	}
	if len(conv.cleaned) != 1 {
		t.Fatalf("cleanup calls = %d, want 1", len(conv.cleaned))
	}
	if outcome.OutputPath != filepath.Join(outDir, "meeting.txt") {
		t.Fatalf("output path = %q", outcome.OutputPath)
	}
	if outcome.DurationSeconds != 12 {
		t.Fatalf("duration = %v, want probed 12", outcome.DurationSeconds)
	}
	content, err := os.ReadFile(outcome.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(content) != "hello world" {
		t.Fatalf("content = %q", content)
	}
}

// TestPipelineProcessAudioSkipsConversion checks audio goes straight to the API.
func TestPipelineProcessAudioSkipsConversion(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "call.mp3")
	mustWriteFile(t, input, "audio")

	conv := &fakeConverter{}
	client := &fakeClient{result: Transcript{Text: "hi", DurationSeconds: 3}}
	p := newPipeline(conv, client, NewOutputWriter(), domain.BatchSettings{OutputFormat: domain.OutputFormatSRT, Workers: 1}, nil)

	var stages []domain.FileStatus
	outcome, err := p.Process(context.Background(), input, func(s domain.FileStatus) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(conv.converted) != 0 {
		t.Fatalf("unexpected conversion: %v", conv.converted)
	}
	if stages[0] != domain.FileStatusTranscribing {
		t.Fatalf("first stage = %s, want transcribing", stages[0])
	}
	if outcome.OutputPath != filepath.Join(root, "call.srt") {
		t.Fatalf("output path = %q", outcome.OutputPath)
	}
}

// TestPipelineProcessMissingSource checks missing input is reported as not-exist.
func TestPipelineProcessMissingSource(t *testing.T) {
	p := newPipeline(&fakeConverter{}, &fakeClient{}, NewOutputWriter(), domain.BatchSettings{Workers: 1}, nil)
	_, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"), func(domain.FileStatus) {})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

// TestPipelineProcessConversionFailureStops checks the API is not called after a failed conversion.
func TestPipelineProcessConversionFailureStops(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "clip.mkv")
	mustWriteFile(t, input, "media")

	convErr := &PipelineError{Stage: "converting", Message: "Invalid or corrupted file format"}
	client := &fakeClient{}
	p := newPipeline(&fakeConverter{err: convErr}, client, NewOutputWriter(), domain.BatchSettings{Workers: 1}, nil)

	_, err := p.Process(context.Background(), input, func(domain.FileStatus) {})
	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) || pipeErr.Stage != "converting" {
		t.Fatalf("err = %v, want converting PipelineError", err)
	}
	if client.gotPath != "" {
		t.Fatalf("client should not be called, got %q", client.gotPath)
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args include the target flag.
func hasArg(args []string, key string) bool {
	for _, arg := range args {
		if arg == key {
			return true
		}
	}
	return false
}
