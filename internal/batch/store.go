package batch

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"batch-transcriber/internal/domain"
)

const (
	activeFileName  = "active.json"
	indexFileName   = "index.json"
	corruptedSuffix = ".corrupted_"
	stampLayout     = "20060102_150405"
)

//go:embed schema/batch_state.json
var batchStateSchema []byte

// Verification lists recorded paths that no longer exist on disk.
type Verification struct {
	MissingSources []string `json:"missingSources"`
	MissingOutputs []string `json:"missingOutputs"`
}

// Store persists the active batch, archived batches and the history index in one directory.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
	schema *gojsonschema.Schema

	// indexedActive remembers which active batch already has an index entry.
	indexedActive string

	now       func() time.Time
	stat      func(string) (os.FileInfo, error)
	mkdirAll  func(string, os.FileMode) error
	rename    func(string, string) error
	remove    func(string) error
	readFile  func(string) ([]byte, error)
	createTmp func(string, string) (*os.File, error)
	newID     func() string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("batch store directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(batchStateSchema))
	if err != nil {
		return nil, fmt.Errorf("load batch state schema: %w", err)
	}

	return &Store{
		dir:       dir,
		logger:    logger.With("component", "batch-store"),
		schema:    schema,
		now:       func() time.Time { return time.Now().UTC() },
		stat:      os.Stat,
		mkdirAll:  os.MkdirAll,
		rename:    os.Rename,
		remove:    os.Remove,
		readFile:  os.ReadFile,
		createTmp: os.CreateTemp,
		newID:     func() string { return uuid.New().String()[:8] },
	}, nil
}

// Dir returns the directory holding batch records.
func (s *Store) Dir() string {
	return s.dir
}

// HasActive reports whether an active batch record exists.
func (s *Store) HasActive() bool {
	_, err := s.stat(s.activePath())
	return err == nil
}

// LoadActive returns the active batch, or nil when absent or unreadable.
func (s *Store) LoadActive() *domain.BatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRecord(s.activePath())
}

// SaveActive atomically replaces the active batch record.
func (s *Store) SaveActive(state *domain.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveActiveLocked(state)
}

// Pause marks state paused and keeps it in the active slot.
func (s *Store) Pause(state *domain.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.Status = domain.BatchStatusPaused
	state.LastUpdated = s.now()
	if err := s.saveActiveLocked(state); err != nil {
		return err
	}
	if err := s.upsertIndex(Summarize(state, activeFileName)); err != nil {
		return err
	}
	s.logger.Info("batch paused", "batch_id", state.ID, "pending", state.Statistics.Pending)
	return nil
}

// Complete marks state completed, archives it and clears the active slot.
func (s *Store) Complete(state *domain.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state.Status = domain.BatchStatusCompleted
	state.CompletedAt = &now
	state.LastUpdated = now

	record := archiveFileName(state)
	if err := s.writeRecord(filepath.Join(s.dir, record), state); err != nil {
		return fmt.Errorf("archive batch %s: %w", state.ID, err)
	}
	if err := s.upsertIndex(Summarize(state, record)); err != nil {
		return err
	}
	if err := s.remove(s.activePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove active batch: %w", err)
	}
	s.indexedActive = ""
	s.logger.Info("batch completed", "batch_id", state.ID, "record", record)
	return nil
}

// Reactivate moves a finished batch back into the active slot so it can run again.
// The archived record is dropped; Complete writes a fresh one.
func (s *Store) Reactivate(state *domain.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.loadRecord(s.activePath()); current != nil && current.ID != state.ID {
		return fmt.Errorf("%w: %s", ErrActiveSlotTaken, current.ID)
	}

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	previous := index[state.ID].Record

	state.Status = domain.BatchStatusActive
	state.CompletedAt = nil
	state.LastUpdated = s.now()
	s.indexedActive = ""
	if err := s.saveActiveLocked(state); err != nil {
		return err
	}

	if previous != "" && previous != activeFileName {
		if err := s.remove(filepath.Join(s.dir, previous)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove archived record failed", "batch_id", state.ID, "record", previous, "error", err)
		}
	}
	s.logger.Info("batch reactivated", "batch_id", state.ID, "pending", state.Statistics.Pending)
	return nil
}

// DismissActive drops the active record without archiving. Missing records are not an error.
func (s *Store) DismissActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.remove(s.activePath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("dismiss active batch: %w", err)
	}

	index, loadErr := s.loadIndex()
	if loadErr != nil {
		return loadErr
	}
	changed := false
	for id, entry := range index {
		if entry.Record == activeFileName {
			delete(index, id)
			changed = true
		}
	}
	s.indexedActive = ""
	if changed {
		if err := s.saveIndex(index); err != nil {
			return err
		}
	}
	if err == nil {
		s.logger.Info("dismissed active batch")
	}
	return nil
}

// LoadByID returns the active or archived batch with id, or nil.
func (s *Store) LoadByID(id string) *domain.BatchState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active := s.loadRecord(s.activePath()); active != nil && active.ID == id {
		return active
	}

	index, err := s.loadIndex()
	if err != nil {
		return nil
	}
	entry, ok := index[id]
	if !ok || entry.Record == activeFileName {
		return nil
	}
	return s.loadRecord(filepath.Join(s.dir, entry.Record))
}

// List returns index entries newest first, optionally filtered by status.
func (s *Store) List(status domain.BatchStatus) ([]domain.BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	out := make([]domain.BatchSummary, 0, len(index))
	for _, entry := range index {
		if status != "" && entry.Status != status {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Archive moves a completed batch to archived status.
func (s *Store) Archive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	entry, ok := index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if entry.Status != domain.BatchStatusCompleted {
		return fmt.Errorf("batch %s is %s, only completed batches can be archived", id, entry.Status)
	}

	path := filepath.Join(s.dir, entry.Record)
	state := s.loadRecord(path)
	if state == nil {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	state.Status = domain.BatchStatusArchived
	state.LastUpdated = s.now()
	if err := s.writeRecord(path, state); err != nil {
		return fmt.Errorf("archive batch %s: %w", id, err)
	}
	return s.upsertIndex(Summarize(state, entry.Record))
}

// Delete removes an archived batch and its index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

// CleanupOlderThan deletes batches completed more than days ago and returns how many were removed.
func (s *Store) CleanupOlderThan(days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().AddDate(0, 0, -days)
	deleted := 0
	for id, entry := range index {
		if entry.CompletedAt == nil || !entry.CompletedAt.Before(cutoff) {
			continue
		}
		if err := s.deleteLocked(id); err != nil {
			s.logger.Error("cleanup batch failed", "batch_id", id, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("cleaned up old batches", "deleted", deleted, "days", days)
	}
	return deleted, nil
}

// Verify checks that every source exists and every completed output exists. It never mutates state.
func (s *Store) Verify(state *domain.BatchState) Verification {
	var out Verification
	for _, f := range state.Files {
		if _, err := s.stat(f.SourcePath); err != nil {
			out.MissingSources = append(out.MissingSources, f.SourcePath)
		}
		if f.Status != domain.FileStatusCompleted {
			continue
		}
		if f.OutputPath == "" {
			out.MissingOutputs = append(out.MissingOutputs, f.SourcePath)
			continue
		}
		if _, err := s.stat(f.OutputPath); err != nil {
			out.MissingOutputs = append(out.MissingOutputs, f.OutputPath)
		}
	}
	return out
}

func (s *Store) activePath() string {
	return filepath.Join(s.dir, activeFileName)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *Store) saveActiveLocked(state *domain.BatchState) error {
	if s.indexedActive != state.ID {
		if current := s.loadRecord(s.activePath()); current != nil && current.ID != state.ID {
			return fmt.Errorf("%w: %s", ErrActiveSlotTaken, current.ID)
		}
	}
	if err := s.writeRecord(s.activePath(), state); err != nil {
		return fmt.Errorf("save active batch: %w", err)
	}
	if s.indexedActive != state.ID {
		if err := s.upsertIndex(Summarize(state, activeFileName)); err != nil {
			return err
		}
		s.indexedActive = state.ID
	}
	return nil
}

func (s *Store) deleteLocked(id string) error {
	if active := s.loadRecord(s.activePath()); active != nil && active.ID == id {
		return ErrActiveBatchDelete
	}

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	entry, ok := index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if entry.Record != "" && entry.Record != activeFileName {
		if err := s.remove(filepath.Join(s.dir, entry.Record)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete batch record: %w", err)
		}
	}
	delete(index, id)
	if err := s.saveIndex(index); err != nil {
		return err
	}
	s.logger.Info("deleted batch", "batch_id", id)
	return nil
}

// loadRecord decodes one record; corrupted files are backed up and reported as absent.
func (s *Store) loadRecord(path string) *domain.BatchState {
	data, err := s.readFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("read batch record failed", "path", path, "error", err)
		}
		return nil
	}

	state, err := s.decode(data)
	if err != nil {
		s.logger.Error("batch record corrupted", "path", path, "error", err)
		s.backupCorrupted(path, data)
		return nil
	}
	return state
}

func (s *Store) decode(data []byte) (*domain.BatchState, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrStateCorrupted, strings.Join(msgs, "; "))
	}

	var state domain.BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}
	return &state, nil
}

func (s *Store) backupCorrupted(path string, data []byte) {
	backup := path + corruptedSuffix + s.now().Format(stampLayout) + "_" + s.newID()
	if err := s.writeAtomic(backup, data); err != nil {
		s.logger.Warn("backup corrupted record failed", "path", path, "error", err)
		return
	}
	if err := s.remove(path); err != nil {
		s.logger.Warn("remove corrupted record failed", "path", path, "error", err)
		return
	}
	s.logger.Info("backed up corrupted record", "backup", backup)
}

func (s *Store) writeRecord(path string, state *domain.BatchState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch state: %w", err)
	}
	return s.writeAtomic(path, data)
}

// writeAtomic writes to a temp file in the same directory and renames it over path.
func (s *Store) writeAtomic(path string, data []byte) error {
	if err := s.mkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create batch dir: %w", err)
	}

	tmp, err := s.createTmp(s.dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = s.remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) loadIndex() (map[string]domain.BatchSummary, error) {
	data, err := s.readFile(s.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.BatchSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read batch index: %w", err)
	}

	index := map[string]domain.BatchSummary{}
	if err := json.Unmarshal(data, &index); err != nil {
		s.logger.Error("batch index corrupted", "error", err)
		s.backupCorrupted(s.indexPath(), data)
		return map[string]domain.BatchSummary{}, nil
	}
	return index, nil
}

func (s *Store) saveIndex(index map[string]domain.BatchSummary) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch index: %w", err)
	}
	if err := s.writeAtomic(s.indexPath(), data); err != nil {
		return fmt.Errorf("save batch index: %w", err)
	}
	return nil
}

func (s *Store) upsertIndex(summary domain.BatchSummary) error {
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	index[summary.ID] = summary
	return s.saveIndex(index)
}

func archiveFileName(state *domain.BatchState) string {
	stamp := state.CreatedAt
	if state.CompletedAt != nil {
		stamp = *state.CompletedAt
	}
	return stamp.Format(stampLayout) + "_" + state.ID + ".json"
}
