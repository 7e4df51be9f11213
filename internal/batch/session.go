package batch

import (
	"sync"
	"time"
)

// SessionSnapshot is a consistent copy of SessionStats.
type SessionSnapshot struct {
	StartedAt      time.Time `json:"startedAt"`
	Completed      int       `json:"completed"`
	Failed         int       `json:"failed"`
	Retried        int       `json:"retried"`
	AudioSeconds   float64   `json:"audioSeconds"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	SuccessRate    float64   `json:"successRate"`
}

// SessionStats holds process-wide totals updated concurrently by workers.
type SessionStats struct {
	mu        sync.Mutex
	startedAt time.Time
	completed int
	failed    int
	retried   int
	audio     float64
	now       func() time.Time
}

// NewSessionStats starts a session clock.
func NewSessionStats() *SessionStats {
	return &SessionStats{startedAt: time.Now(), now: time.Now}
}

// AddCompleted counts one finished file and its audio duration.
func (s *SessionStats) AddCompleted(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.audio += seconds
}

// AddFailed counts one permanently failed file.
func (s *SessionStats) AddFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

// AddRetry counts one retry attempt.
func (s *SessionStats) AddRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried++
}

// Snapshot returns the current totals.
func (s *SessionStats) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := SessionSnapshot{
		StartedAt:      s.startedAt,
		Completed:      s.completed,
		Failed:         s.failed,
		Retried:        s.retried,
		AudioSeconds:   s.audio,
		ElapsedSeconds: s.now().Sub(s.startedAt).Seconds(),
	}
	if total := s.completed + s.failed; total > 0 {
		out.SuccessRate = float64(s.completed) / float64(total) * 100
	}
	return out
}
