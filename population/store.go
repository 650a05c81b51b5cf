package population

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RunStore manages persistence of generation runs and their agents.
type RunStore interface {
	// CreateRun persists a run and its full population atomically
	CreateRun(run *Run, agents []Agent) error

	// GetRun retrieves a run by ID
	GetRun(id string) (*Run, error)

	// ListRuns returns all runs for one demographic, newest first
	ListRuns(demographicID string) ([]*Run, error)

	// ListAgents returns agents of a run ordered by ID, with pagination
	ListAgents(runID string, offset, limit int) ([]Agent, error)

	// DeleteRun removes a run and its agents
	DeleteRun(id string) error
}

// InMemoryRunStore implements RunStore using in-memory maps. Thread-safe.
type InMemoryRunStore struct {
	runs   map[string]*Run
	agents map[string][]Agent
	mu     sync.RWMutex
}

// NewInMemoryRunStore creates a new in-memory run store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:   make(map[string]*Run),
		agents: make(map[string][]Agent),
	}
}

// CreateRun stores a run and its agents.
func (s *InMemoryRunStore) CreateRun(run *Run, agents []Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run with ID %s already exists", run.ID)
	}

	run.CreatedAt = time.Now()
	s.runs[run.ID] = run
	stored := make([]Agent, len(agents))
	copy(stored, agents)
	s.agents[run.ID] = stored
	return nil
}

// GetRun retrieves a run by ID.
func (s *InMemoryRunStore) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run with ID %s not found", id)
	}
	return run, nil
}

// ListRuns returns runs for a demographic, newest first.
func (s *InMemoryRunStore) ListRuns(demographicID string) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*Run
	for _, run := range s.runs {
		if run.DemographicID == demographicID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// ListAgents returns a page of a run's agents in ID order.
func (s *InMemoryRunStore) ListAgents(runID string, offset, limit int) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents, exists := s.agents[runID]
	if !exists {
		return nil, fmt.Errorf("run with ID %s not found", runID)
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(agents) {
		return []Agent{}, nil
	}
	end := len(agents)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]Agent, end-offset)
	copy(page, agents[offset:end])
	return page, nil
}

// DeleteRun removes a run and its agents.
func (s *InMemoryRunStore) DeleteRun(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return fmt.Errorf("run with ID %s not found", id)
	}

	delete(s.runs, id)
	delete(s.agents, id)
	return nil
}
