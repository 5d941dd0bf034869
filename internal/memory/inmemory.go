package memory

import (
	"context"
	"sync"
)

// InMemoryStore is a simple in-process timeline store for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	timelines map[string]Timeline
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{timelines: make(map[string]Timeline)}
}

func (s *InMemoryStore) Read(_ context.Context, actor string) (Timeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timelines[actor]
	if !ok {
		return NewTimeline(), nil
	}
	return t.Clone(), nil
}

func (s *InMemoryStore) Write(_ context.Context, actor string, t Timeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines[actor] = t.Clone()
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
