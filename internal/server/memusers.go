package server

import (
	"context"
	"sync"

	"battleship-server/internal/postgres"
)

// memUsers is the UserStore used when the server runs without a database.
type memUsers struct {
	byEmail map[string]postgres.User
	mu      sync.RWMutex
}

func newMemUsers() *memUsers {
	return &memUsers{byEmail: make(map[string]postgres.User)}
}

func (m *memUsers) Create(_ context.Context, user postgres.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[user.Email]; exists {
		return postgres.ErrUserExists
	}
	m.byEmail[user.Email] = user
	return nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (postgres.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.byEmail[email]
	if !exists {
		return postgres.User{}, postgres.ErrUserNotFound
	}
	return user, nil
}

func (m *memUsers) FindByName(_ context.Context, name string) (postgres.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.byEmail {
		if user.Name == name {
			return user, nil
		}
	}
	return postgres.User{}, postgres.ErrUserNotFound
}
