package session

import (
	"sync"
	"time"
)

// Store holds sessions by id. The Manager only ever stores sessions it will
// not mutate again, so implementations may hand back the stored pointer.
type Store interface {
	Get(id string) (*Session, bool)
	Set(s *Session)
	Delete(id string)

	// Sweep removes every session whose last activity is before olderThan
	// and returns the removed ids.
	Sweep(olderThan time.Time) []string

	// DeleteWhere removes every session matching pred and returns the count.
	DeleteWhere(pred func(*Session) bool) int

	Len() int
}

// MemoryStore implements Store with a map.
//
// MemoryStore is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) Set(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) Sweep(olderThan time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, s := range m.sessions {
		if s.LastActivityAt.Before(olderThan) {
			delete(m.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (m *MemoryStore) DeleteWhere(pred func(*Session) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, s := range m.sessions {
		if pred(s) {
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
