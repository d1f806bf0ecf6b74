package battleship

import "time"

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session is the authoritative record for one two-player game.
// Boards and keys are opaque payloads; the server never interprets them.
type Session struct {
	ID        string
	RoomID    string
	Host      string
	Guest     string
	Board1    string
	Key1      string
	Board2    string
	Key2      string
	Status    Status
	Secret    string
	Turn      string
	Winner    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) IsPlayer(player string) bool {
	return player != "" && (player == s.Host || player == s.Guest)
}

// Opponent returns the other player, or "" if player is not in the session.
func (s *Session) Opponent(player string) string {
	switch player {
	case s.Host:
		return s.Guest
	case s.Guest:
		return s.Host
	default:
		return ""
	}
}

func (s *Session) boardOf(player string) string {
	if player == s.Host {
		return s.Board1
	}
	return s.Board2
}

func (s *Session) setBoard(player, board, key string) {
	if player == s.Host {
		s.Board1 = board
		if key != "" {
			s.Key1 = key
		}
		return
	}
	s.Board2 = board
	if key != "" {
		s.Key2 = key
	}
}

func (s *Session) bothBoardsSet() bool {
	return s.Board1 != "" && s.Board2 != ""
}

// View is a sanitized projection of a Session: the access secret is never
// included, only whether one exists.
type View struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomID"`
	Player1     string `json:"player1"`
	Player2     string `json:"player2,omitempty"`
	Board1      string `json:"board1"`
	Board2      string `json:"board2"`
	Status      Status `json:"status"`
	Turn        string `json:"turn,omitempty"`
	Winner      string `json:"winner,omitempty"`
	HasPassword bool   `json:"hasPassword"`
}

func (s *Session) Sanitized() View {
	return View{
		ID:          s.ID,
		RoomID:      s.RoomID,
		Player1:     s.Host,
		Player2:     s.Guest,
		Board1:      s.Board1,
		Board2:      s.Board2,
		Status:      s.Status,
		Turn:        s.Turn,
		Winner:      s.Winner,
		HasPassword: s.Secret != "",
	}
}

// Summary is the listing projection: no boards, no secret.
type Summary struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomID"`
	Player1     string `json:"player1"`
	Player2     string `json:"player2,omitempty"`
	Status      Status `json:"status"`
	HasPassword bool   `json:"hasPassword"`
}

func (s *Session) Summarized() Summary {
	return Summary{
		ID:          s.ID,
		RoomID:      s.RoomID,
		Player1:     s.Host,
		Player2:     s.Guest,
		Status:      s.Status,
		HasPassword: s.Secret != "",
	}
}

// Clone returns a deep copy so stores can hand out records without aliasing
// their internal state.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}
