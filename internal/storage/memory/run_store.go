package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// RunStore provides an in-memory implementation for development/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]crawler.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]crawler.Run),
	}
}

// CreateRun stores a new run in queued status.
func (s *RunStore) CreateRun(_ context.Context, run crawler.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunStatus updates the status and outcome for a run.
func (s *RunStore) UpdateRunStatus(
	_ context.Context,
	runID string,
	status crawler.RunStatus,
	errText string,
	outcome crawler.Outcome,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %q: %w", runID, crawler.ErrNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	run.Outcome = outcome
	now := time.Now().UTC()
	if status == crawler.RunStatusRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		run.Finished = pointerTime(now)
	}
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (crawler.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.Run{}, fmt.Errorf("run %q: %w", runID, crawler.ErrNotFound)
	}
	return run, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
