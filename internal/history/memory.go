package history

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]models.ScanResult
}

func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		limit:   normalizeLimit(limit),
		entries: make(map[string][]models.ScanResult),
	}
}

func (s *MemoryStore) List(_ context.Context, owner string) ([]models.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ScanResult{}, s.entries[owner]...), nil
}

func (s *MemoryStore) Append(_ context.Context, owner string, result models.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[owner]
	if len(list) >= s.limit {
		list = list[:s.limit-1]
	}
	next := make([]models.ScanResult, 0, len(list)+1)
	next = append(next, result)
	s.entries[owner] = append(next, list...)
	return nil
}

func (s *MemoryStore) RemoveByID(_ context.Context, owner string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[owner]
	for i, r := range list {
		if r.ID != id {
			continue
		}
		next := make([]models.ScanResult, 0, len(list)-1)
		next = append(next, list[:i]...)
		s.entries[owner] = append(next, list[i+1:]...)
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, owner)
	return nil
}

var _ Store = (*MemoryStore)(nil)
