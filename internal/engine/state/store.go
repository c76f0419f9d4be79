// Package state implements the process-wide state store (§4.A): a single
// holder of the current EngineState snapshot plus a list of observers
// notified synchronously on every update. The store enforces no domain
// rules of its own — it is purely a container.
package state

import (
	"sync"

	"github.com/zgeoff/decree/internal/domain"
)

// Observer is notified with the new snapshot every time setState runs.
type Observer func(snapshot *domain.EngineState)

// Store holds the authoritative EngineState snapshot.
type Store struct {
	mu        sync.RWMutex
	snapshot  *domain.EngineState
	observers map[int]Observer
	nextID    int
}

// New creates a Store seeded with the empty EngineState.
func New() *Store {
	return &Store{
		snapshot:  domain.Empty(),
		observers: map[int]Observer{},
	}
}

// GetState returns the current snapshot. Snapshots are never mutated in
// place (I5), so callers may hold onto the returned pointer freely.
func (s *Store) GetState() *domain.EngineState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SetState replaces the snapshot and notifies every observer
// synchronously, in subscription order, before returning.
func (s *Store) SetState(next *domain.EngineState) {
	s.mu.Lock()
	s.snapshot = next
	observers := make([]Observer, 0, len(s.observers))
	for id := 0; id < s.nextID; id++ {
		if o, ok := s.observers[id]; ok {
			observers = append(observers, o)
		}
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(next)
	}
}

// Subscribe registers an observer and returns an unsubscribe func.
func (s *Store) Subscribe(observer Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = observer
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}
