package store

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRunStore implements RunStore for tests and the "memory" driver.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewInMemoryRunStore creates a new in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]RunRecord)}
}

// Save stores a run.
func (s *InMemoryRunStore) Save(ctx context.Context, rec RunRecord) (string, error) {
	rec, err := prepare(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec
	return rec.ID, nil
}

// Get retrieves a run by ID.
func (s *InMemoryRunStore) Get(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// List returns all runs, newest first.
func (s *InMemoryRunStore) List(ctx context.Context) ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunInfo, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec.Info())
	}
	sortInfos(out)
	return out, nil
}

// Delete removes a run.
func (s *InMemoryRunStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return ErrNotFound
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryRunStore) Close() error {
	return nil
}

func sortInfos(infos []RunInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
