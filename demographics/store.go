package demographics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store manages persistence of demographic specifications.
type Store interface {
	// Add a new specification under the given ID
	Add(rec *Record) error

	// Get a specification by ID
	Get(id string) (*Record, error)

	// List all specifications, oldest first
	List() ([]*Record, error)

	// Update an existing specification
	Update(rec *Record) error

	// Delete a specification
	Delete(id string) error
}

// InMemoryStore implements Store using an in-memory map. Thread-safe.
type InMemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewInMemoryStore creates a new in-memory demographics store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
	}
}

// Add adds a new specification, setting both timestamps.
func (s *InMemoryStore) Add(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("demographic with ID %s already exists", rec.ID)
	}

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return nil
}

// Get retrieves a specification by ID.
func (s *InMemoryStore) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("demographic with ID %s not found", id)
	}
	return rec, nil
}

// List returns all specifications ordered by creation time.
func (s *InMemoryStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Update replaces an existing specification, preserving CreatedAt.
func (s *InMemoryStore) Update(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[rec.ID]
	if !exists {
		return fmt.Errorf("demographic with ID %s not found", rec.ID)
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now()
	s.records[rec.ID] = rec
	return nil
}

// Delete removes a specification.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("demographic with ID %s not found", id)
	}

	delete(s.records, id)
	return nil
}
