package contracts

import (
	"context"
	"sync"
)

// InMemoryTranscriptStore is a process-local store for tests and throwaway runs.
type InMemoryTranscriptStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	writes  map[string]int
}

func NewInMemoryTranscriptStore() *InMemoryTranscriptStore {
	return &InMemoryTranscriptStore{
		entries: make(map[string][]Entry),
		writes:  make(map[string]int),
	}
}

func (s *InMemoryTranscriptStore) Ref(id string) string { return "memory:" + id }

func (s *InMemoryTranscriptStore) Read(_ context.Context, id string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries[id]), nil
}

func (s *InMemoryTranscriptStore) Write(_ context.Context, id string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = cloneEntries(entries)
	s.writes[id]++
	return nil
}

// Writes reports how many times id's transcript has been written.
func (s *InMemoryTranscriptStore) Writes(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[id]
}

func (s *InMemoryTranscriptStore) Close() error { return nil }
