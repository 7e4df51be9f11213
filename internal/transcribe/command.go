package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxCapturedOutput bounds how much of a tool's stdout/stderr is kept per stream.
const maxCapturedOutput = 16 << 10

// CommandLog records one external tool invocation.
type CommandLog struct {
	Command  string        `json:"command"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exitCode"`
	Elapsed  time.Duration `json:"elapsed"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
}

// String renders the invocation as a shell-like line.
func (l CommandLog) String() string {
	return strings.TrimSpace(l.Command + " " + strings.Join(l.Args, " "))
}

// PipelineError is a failure in one stage of processing a file.
// Stage is one of downloading, converting, probing, transcribing or saving.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Stage + ": " + e.Message
	switch {
	case e.CommandLog.Command == "":
		return msg
	case e.TimedOut():
		return fmt.Sprintf("%s (%s timed out after %s)", msg, e.CommandLog.Command, e.CommandLog.Elapsed.Round(time.Second))
	default:
		return fmt.Sprintf("%s (%s exit %d)", msg, e.CommandLog.Command, e.CommandLog.ExitCode)
	}
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ToolStage names the stage whose external tool failed.
func (e *PipelineError) ToolStage() string {
	return e.Stage
}

// TimedOut reports whether the tool was stopped by its deadline.
func (e *PipelineError) TimedOut() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

// Run executes name and returns its captured output. A context error wins over the exit error.
func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: tail(stdout.String()), Stderr: tail(stderr.String())}
	if err == nil {
		return res, nil
	}

	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, err
}

// runLogged runs name through runner and records the invocation.
func runLogged(ctx context.Context, runner commandRunner, name string, args []string) (CommandLog, error) {
	started := time.Now()
	res, err := runner.Run(ctx, name, args...)
	return CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Elapsed:  time.Since(started),
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}, err
}

func tail(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[len(s)-maxCapturedOutput:]
}
