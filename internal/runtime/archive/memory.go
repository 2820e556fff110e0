package archive

import (
	"context"
	"fmt"
	"slices"
	"sync"

	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("archive: record id is required")
	}
	rec.ReceivedAt = rec.ReceivedAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byID[rec.ID]; taken {
		return fmt.Errorf("%w: %s", errspkg.ErrDuplicateRecord, rec.ID)
	}
	s.byID[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", errspkg.ErrRecordNotFound, id)
	}
	return s.records[idx], nil
}

func (s *MemoryStore) List(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	matched := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if q.matches(rec) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b Record) int {
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})
	if limit := q.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
