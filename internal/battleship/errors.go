package battleship

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can branch without parsing messages.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindAuthorization
	KindNotFound
	KindTransient
	KindInternal
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

var (
	ErrMissingFields     = &Error{Kind: KindValidation, Code: "MISSING_FIELDS", Message: "missing required fields"}
	ErrRoomExists        = &Error{Kind: KindConflict, Code: "ROOM_EXISTS", Message: "a game with this room ID already exists"}
	ErrRoomNotFound      = &Error{Kind: KindNotFound, Code: "ROOM_NOT_FOUND", Message: "game not found"}
	ErrNotJoinable       = &Error{Kind: KindConflict, Code: "NOT_JOINABLE", Message: "game is not available for joining"}
	ErrHostMissing       = &Error{Kind: KindConflict, Code: "HOST_MISSING", Message: "host has not joined the game"}
	ErrSelfJoin          = &Error{Kind: KindValidation, Code: "SELF_JOIN", Message: "you cannot join your own game"}
	ErrRoomFull          = &Error{Kind: KindConflict, Code: "ROOM_FULL", Message: "game is already full"}
	ErrPasswordRequired  = &Error{Kind: KindAuthorization, Code: "PASSWORD_REQUIRED", Message: "this game requires a password"}
	ErrPasswordMismatch  = &Error{Kind: KindAuthorization, Code: "PASSWORD_MISMATCH", Message: "incorrect password"}
	ErrAlreadyStarted    = &Error{Kind: KindConflict, Code: "ALREADY_STARTED", Message: "game is already started"}
	ErrNotHost           = &Error{Kind: KindAuthorization, Code: "NOT_HOST", Message: "only the host can start the game"}
	ErrGuestMissing      = &Error{Kind: KindConflict, Code: "GUEST_MISSING", Message: "all players must join the game before starting it"}
	ErrNotYourTurn       = &Error{Kind: KindConflict, Code: "NOT_YOUR_TURN", Message: "it is not your turn"}
	ErrNotAPlayer        = &Error{Kind: KindAuthorization, Code: "NOT_A_PLAYER", Message: "you are not a player in this game"}
	ErrPlayerNotFound    = &Error{Kind: KindNotFound, Code: "PLAYER_NOT_FOUND", Message: "player not found in this game"}
	ErrCannotKickHost    = &Error{Kind: KindAuthorization, Code: "CANNOT_KICK_HOST", Message: "you cannot kick the host"}
	ErrCannotKickActive  = &Error{Kind: KindConflict, Code: "CANNOT_KICK_ACTIVE", Message: "you cannot kick a player while the game is active"}
	ErrSessionConflicted = &Error{Kind: KindConflict, Code: "STATE_CHANGED", Message: "session changed underneath the operation"}
)

// Transient wraps a store failure that is safe to retry with backoff.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Code: "STORE_UNAVAILABLE", Message: "session store unavailable", cause: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal error", cause: err}
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the stable code of err, or "INTERNAL" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}
