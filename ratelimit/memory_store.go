package ratelimit

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// MemoryStateStore keeps throttle windows for a single bridge process.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[Key]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[Key]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key Key) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	state, ok := s.items[key.normalized()]
	s.mu.RUnlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = maps.Clone(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = state.Key.normalized()
	state.Metadata = maps.Clone(state.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = map[Key]State{}
	}
	s.items[state.Key] = state
	return nil
}

func mergeMetadata(current, update map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(update))
	maps.Copy(merged, current)
	maps.Copy(merged, update)
	return merged
}

var _ StateStore = (*MemoryStateStore)(nil)
