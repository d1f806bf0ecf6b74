package server

import "battleship-server/internal/battleship"

// ============================================================================
// HTTP ENVELOPE
// ============================================================================
type SuccessResponse struct {
	Status string `json:"Status"`
	Data   any    `json:"Data"`
}

type FailureResponse struct {
	Status string    `json:"Status"`
	Error  ErrorBody `json:"Error"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Code    string `json:"code"`
}

// ============================================================================
// SESSION ACTIONS
// ============================================================================
type CreateGameRequest struct {
	RoomID   string `json:"roomID"`
	Player1  string `json:"player1"`
	Password string `json:"password,omitempty"`
}

type JoinGameRequest struct {
	RoomID   string `json:"roomID"`
	Player   string `json:"player"`
	Password string `json:"password,omitempty"`
}

type StartGameRequest struct {
	RoomID string `json:"roomID"`
	Player string `json:"player"`
}

type LeaveGameRequest struct {
	RoomID string `json:"roomID"`
	Player string `json:"player"`
}

type KickPlayerRequest struct {
	RoomID string `json:"roomID"`
	Player string `json:"player"`
}

type UpdateBoardRequest struct {
	RoomID   string `json:"roomID"`
	Player   string `json:"player"`
	Board    string `json:"board"`
	Key      string `json:"key,omitempty"`
	NextTurn string `json:"nextTurn,omitempty"`
}

type RoomListData struct {
	Message string               `json:"message,omitempty"`
	Items   []battleship.Summary `json:"items"`
	Count   int                  `json:"count"`
}

// ============================================================================
// AUTH
// ============================================================================
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// ============================================================================
// REAL-TIME EVENTS
// ============================================================================
type JoinGameEvent struct {
	PlayerID string `json:"playerId"`
	GameID   string `json:"gameId"`
}

type PlayerJoinedEvent struct {
	PlayerID string `json:"playerId"`
	GameID   string `json:"gameId"`
}

type PlayerLeftEvent struct {
	PlayerID string `json:"playerId"`
	GameID   string `json:"gameId"`
	Message  string `json:"message,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type PlayerKickedEvent struct {
	KickedPlayerID string `json:"kickedPlayerId"`
	GameID         string `json:"gameId"`
}

type KickPlayerEvent struct {
	KickedPlayerID string `json:"kickedPlayerId"`
	GameID         string `json:"gameId"`
}

type GameStartedEvent struct {
	GameID string `json:"gameId"`
}

type CreateCompleteEvent struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type PlayerReconnectedEvent struct {
	PlayerID string `json:"playerId"`
}

type ReconnectErrorEvent struct {
	Message string `json:"message"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
