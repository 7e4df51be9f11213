package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"batch-transcriber/internal/domain"
)

// ErrBatchAlreadyRunning is returned when starting a second active batch.
var ErrBatchAlreadyRunning = errors.New("batch already running")

// ErrNoRunningBatch is returned when cancel is requested for idle state.
var ErrNoRunningBatch = errors.New("no running batch")

// Manager tracks the single allowed active batch and its lifecycle transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.ActiveBatch
	cancel  context.CancelFunc
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{}
}

// Start claims the slot for batchID; cancel is invoked by Cancel.
func (m *Manager) Start(batchID string, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.BatchStatusActive {
		return ErrBatchAlreadyRunning
	}

	m.current = domain.ActiveBatch{
		ID:     batchID,
		Status: domain.BatchStatusActive,
	}
	m.cancel = cancel
	return nil
}

// Transition validates and applies lifecycle transitions for the current batch.
func (m *Manager) Transition(status domain.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return fmt.Errorf("cannot transition without an active batch")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	if status != domain.BatchStatusActive {
		m.cancel = nil
	}
	return nil
}

// Current returns a snapshot of the current batch.
func (m *Manager) Current() domain.ActiveBatch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears batch metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.ActiveBatch{}
	m.cancel = nil
}

// IsRunning reports whether a batch is actively processing.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status == domain.BatchStatusActive
}

// Cancel signals the running batch to stop starting new files.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.BatchStatusActive {
		return ErrNoRunningBatch
	}
	if m.current.CancelRequested {
		return nil
	}
	m.current.CancelRequested = true
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// isValidTransition enforces the allowed batch lifecycle edges.
func isValidTransition(from, to domain.BatchStatus) bool {
	switch from {
	case domain.BatchStatusActive:
		return to == domain.BatchStatusPaused || to == domain.BatchStatusCompleted
	case domain.BatchStatusPaused:
		return to == domain.BatchStatusActive
	case domain.BatchStatusCompleted:
		return to == domain.BatchStatusArchived
	default:
		return false
	}
}
