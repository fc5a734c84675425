package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/hetcore/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.RunRecord
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.RunRecord),
	}
}

func cloneRun(run *domain.RunRecord) *domain.RunRecord {
	c := *run
	c.Sections = append([]domain.SectionResult(nil), run.Sections...)
	return &c
}

// Save persists the record in memory.
func (s *Store) Save(ctx context.Context, run *domain.RunRecord) error {
	c := cloneRun(run)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[run.ID] = c
	return nil
}

// Load retrieves a record from memory.
func (s *Store) Load(ctx context.Context, id string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	// Copy on read so callers can't mutate the stored record.
	return cloneRun(run), nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns stored run IDs, oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.RunRecord, 0, len(s.data))
	for _, run := range s.data {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}
	return ids, nil
}
