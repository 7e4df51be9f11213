package batch

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// ErrorKind is the failure category used for retry decisions.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindTransientNetwork ErrorKind = "transient-network"
	KindRateLimit        ErrorKind = "rate-limit"
	KindServerError      ErrorKind = "server-error"
	KindAuthentication   ErrorKind = "authentication"
	KindFileNotFound     ErrorKind = "file-not-found"
	KindToolTimeout      ErrorKind = "tool-timeout"
	KindToolFailure      ErrorKind = "tool-failure"
	KindStateCorruption  ErrorKind = "state-corruption"
	KindUnknown          ErrorKind = "unknown"
)

// Classification is the classifier verdict for one error.
type Classification struct {
	Kind      ErrorKind `json:"kind"`
	Retryable bool      `json:"retryable"`
}

// Classifier decides whether a failed file attempt may be retried.
type Classifier func(error) Classification

// statusCoder is implemented by HTTP API errors.
type statusCoder interface {
	HTTPStatus() int
}

// toolError is implemented by external tool failures.
type toolError interface {
	ToolStage() string
	TimedOut() bool
}

var patternTable = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindRateLimit, []string{"rate limit", "too many requests", "429"}},
	{KindTransientNetwork, []string{
		"timeout", "timed out", "connection error", "connection refused",
		"network unreachable", "connection reset", "operation took too long",
	}},
	{KindServerError, []string{
		"500", "502", "503", "504", "internal server error",
		"service unavailable", "bad gateway", "gateway timeout",
	}},
	{KindAuthentication, []string{"invalid api key", "access denied", "unauthorized", "401", "403", "forbidden"}},
	{KindFileNotFound, []string{"file does not exist", "file not found", "file too large", "max 2gb", "no such file"}},
	{KindToolFailure, []string{
		"corrupted", "unsupported", "does not contain audio", "does not contain any stream",
		"invalid data found", "ffmpeg not found", "permission denied", "cannot access file",
	}},
}

// Classify maps err onto the failure taxonomy. Typed errors win over message patterns;
// anything unrecognised is unknown and not retried.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindNone}
	}
	kind := classifyKind(err)
	return Classification{Kind: kind, Retryable: kind.Retryable()}
}

// Retryable reports whether errors of this kind are retried automatically.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransientNetwork, KindRateLimit, KindServerError:
		return true
	default:
		return false
	}
}

func classifyKind(err error) ErrorKind {
	if errors.Is(err, ErrStateCorrupted) {
		return KindStateCorruption
	}

	var coder statusCoder
	if errors.As(err, &coder) {
		switch code := coder.HTTPStatus(); {
		case code == 401 || code == 403:
			return KindAuthentication
		case code == 429:
			return KindRateLimit
		case code >= 500:
			return KindServerError
		}
	}

	var tool toolError
	if errors.As(err, &tool) {
		if tool.TimedOut() {
			return KindToolTimeout
		}
		if errors.Is(err, os.ErrNotExist) {
			return KindFileNotFound
		}
		return KindToolFailure
	}

	if errors.Is(err, os.ErrNotExist) {
		return KindFileNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, entry := range patternTable {
		for _, p := range entry.patterns {
			if strings.Contains(msg, p) {
				return entry.kind
			}
		}
	}
	return KindUnknown
}

// FriendlyMessage renders a short user-facing explanation for a failed file.
func FriendlyMessage(err error, c Classification) string {
	if err == nil {
		return ""
	}
	switch c.Kind {
	case KindAuthentication:
		return "Authentication failed: check the API key"
	case KindRateLimit:
		return "Rate limited by the transcription service: " + err.Error()
	case KindToolTimeout:
		return "Conversion timed out: " + err.Error()
	default:
		return err.Error()
	}
}
