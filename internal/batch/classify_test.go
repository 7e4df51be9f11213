package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type httpErr struct{ code int }

func (e httpErr) Error() string   { return fmt.Sprintf("api status %d", e.code) }
func (e httpErr) HTTPStatus() int { return e.code }

type toolErr struct {
	timedOut bool
	err      error
}

func (e toolErr) Error() string     { return "ffmpeg failed" }
func (e toolErr) ToolStage() string { return "convert" }
func (e toolErr) TimedOut() bool    { return e.timedOut }
func (e toolErr) Unwrap() error     { return e.err }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{"nil", nil, KindNone, false},
		{"api unauthorized", httpErr{401}, KindAuthentication, false},
		{"api forbidden", fmt.Errorf("wrap: %w", httpErr{403}), KindAuthentication, false},
		{"api rate limit", httpErr{429}, KindRateLimit, true},
		{"api server", httpErr{502}, KindServerError, true},
		{"tool timeout", toolErr{timedOut: true}, KindToolTimeout, false},
		{"tool failure", toolErr{}, KindToolFailure, false},
		{"tool missing input", toolErr{err: os.ErrNotExist}, KindFileNotFound, false},
		{"not exist", fmt.Errorf("open: %w", os.ErrNotExist), KindFileNotFound, false},
		{"deadline", context.DeadlineExceeded, KindTransientNetwork, true},
		{"corrupted state", fmt.Errorf("load: %w", ErrStateCorrupted), KindStateCorruption, false},
		{"pattern rate", errors.New("Too Many Requests"), KindRateLimit, true},
		{"pattern network", errors.New("dial tcp: connection refused"), KindTransientNetwork, true},
		{"pattern server", errors.New("Service Unavailable"), KindServerError, true},
		{"pattern auth", errors.New("Invalid API key supplied"), KindAuthentication, false},
		{"pattern file", errors.New("file too large (max 2GB)"), KindFileNotFound, false},
		{"pattern conversion", errors.New("stream does not contain audio"), KindToolFailure, false},
		{"unknown", errors.New("something odd"), KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tt.err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.retryable, got.Retryable)
		})
	}
}

func TestFriendlyMessage(t *testing.T) {
	t.Parallel()

	err := httpErr{401}
	assert.Contains(t, FriendlyMessage(err, Classify(err)), "API key")
	assert.Empty(t, FriendlyMessage(nil, Classification{}))

	plain := errors.New("disk is on fire")
	assert.Equal(t, "disk is on fire", FriendlyMessage(plain, Classify(plain)))
}

func TestSessionStats_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	stats := NewSessionStats()
	done := make(chan struct{})
	for w := 0; w < 3; w++ {
		go func() {
			for i := 0; i < 1000; i++ {
				stats.AddCompleted(0.5)
				stats.AddRetry()
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < 3; w++ {
		<-done
	}
	stats.AddFailed()

	snap := stats.Snapshot()
	assert.Equal(t, 3000, snap.Completed)
	assert.Equal(t, 3000, snap.Retried)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 1500.0, snap.AudioSeconds, 0.001)
	assert.InDelta(t, 3000.0/3001.0*100, snap.SuccessRate, 0.001)
}
