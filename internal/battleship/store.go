package battleship

import "context"

// UpdateGuard makes a session update conditional on the stored pre-state.
// A store must apply the update only when every set condition still holds,
// returning ErrSessionConflicted otherwise.
type UpdateGuard struct {
	Status     Status // apply only while the session is in this status
	GuestEmpty bool   // apply only while the guest slot is unclaimed
}

// Store is the durable session record keyed by room ID. Implementations
// return *Error values from this package so callers can branch on Kind.
type Store interface {
	// CreateSession inserts a new record, failing with ErrRoomExists if the
	// room ID is already taken.
	CreateSession(ctx context.Context, s *Session) error

	// FindByRoom returns the session for roomID or ErrRoomNotFound.
	FindByRoom(ctx context.Context, roomID string) (*Session, error)

	// UpdateSession overwrites the record for s.RoomID subject to guard.
	UpdateSession(ctx context.Context, s *Session, guard UpdateGuard) error

	// DeleteSession removes the record, ErrRoomNotFound if absent.
	DeleteSession(ctx context.Context, roomID string) error

	// ListSessions returns all sessions, newest first.
	ListSessions(ctx context.Context) ([]*Session, error)
}
