package battleship

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store. It backs tests and single-node deployments
// that run without a database.
type MemStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*Session)}
}

func (m *MemStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.RoomID]; exists {
		return ErrRoomExists
	}
	m.sessions[s.RoomID] = s.Clone()
	return nil
}

func (m *MemStore) FindByRoom(_ context.Context, roomID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[roomID]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return s.Clone(), nil
}

func (m *MemStore) UpdateSession(_ context.Context, s *Session, guard UpdateGuard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.sessions[s.RoomID]
	if !exists {
		return ErrRoomNotFound
	}
	if guard.Status != "" && cur.Status != guard.Status {
		return ErrSessionConflicted
	}
	if guard.GuestEmpty && cur.Guest != "" {
		return ErrSessionConflicted
	}
	m.sessions[s.RoomID] = s.Clone()
	return nil
}

func (m *MemStore) DeleteSession(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[roomID]; !exists {
		return ErrRoomNotFound
	}
	delete(m.sessions, roomID)
	return nil
}

func (m *MemStore) ListSessions(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s.Clone())
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}
