package preferences

import (
	"context"
	"maps"
	"sort"
	"sync"
)

type memoryStore struct {
	mu    sync.RWMutex
	items map[string]Preference
}

// NewMemory returns a process-local store; contents vanish on restart.
func NewMemory() Store {
	return &memoryStore{items: make(map[string]Preference)}
}

func (s *memoryStore) Get(_ context.Context, clientID string) (Preference, error) {
	s.mu.RLock()
	pref, ok := s.items[clientID]
	s.mu.RUnlock()
	if !ok {
		return Preference{}, ErrNotFound
	}
	pref.Metadata = maps.Clone(pref.Metadata)
	return pref, nil
}

func (s *memoryStore) Save(_ context.Context, pref Preference) error {
	pref.Metadata = maps.Clone(pref.Metadata)
	s.mu.Lock()
	s.items[pref.ClientID] = pref
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Remove(_ context.Context, clientID string) error {
	s.mu.Lock()
	delete(s.items, clientID)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := 0
	for _, p := range s.items {
		if p.TutorialSeen {
			seen++
		}
	}
	return map[string]any{"type": DriverMemory, "total": len(s.items), "tutorial_seen": seen}, nil
}

func (s *memoryStore) Close(context.Context) error { return nil }
