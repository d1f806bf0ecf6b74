package battleship

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Machine validates and applies every session-lifecycle transition. Mutating
// operations on the same room are serialized through a per-room lock; the
// store's conditional updates are a second line of defense.
type Machine struct {
	store Store
	locks roomLocks
	log   zerolog.Logger
}

func NewMachine(store Store, log zerolog.Logger) *Machine {
	return &Machine{
		store: store,
		locks: roomLocks{locks: make(map[string]*sync.Mutex)},
		log:   log.With().Str("component", "machine").Logger(),
	}
}

// roomLocks hands out one mutex per room ID. Entries are dropped when the
// session is deleted.
type roomLocks struct {
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func (r *roomLocks) lock(roomID string) *sync.Mutex {
	for {
		r.mu.Lock()
		l, exists := r.locks[roomID]
		if !exists {
			l = &sync.Mutex{}
			r.locks[roomID] = l
		}
		r.mu.Unlock()

		l.Lock()

		// The entry may have been forgotten (room deleted) while we were
		// blocked. Holding a stale mutex serializes nothing, so start over
		// against the current entry.
		r.mu.Lock()
		current := r.locks[roomID]
		r.mu.Unlock()
		if current == l {
			return l
		}
		l.Unlock()
	}
}

func (r *roomLocks) forget(roomID string) {
	r.mu.Lock()
	delete(r.locks, roomID)
	r.mu.Unlock()
}

// Create opens a new waiting session for roomID hosted by host. An empty
// secret makes the room public.
func (m *Machine) Create(ctx context.Context, roomID, host, secret string) (Summary, error) {
	roomID = strings.TrimSpace(roomID)
	host = strings.TrimSpace(host)
	if roomID == "" || host == "" {
		return Summary{}, ErrMissingFields
	}

	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Host:      host,
		Status:    StatusWaiting,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return Summary{}, err
	}

	m.log.Info().Str("room", roomID).Str("host", host).Msg("session created")
	return session.Summarized(), nil
}

// Join claims the guest slot. On success the session activates: the guest is
// set, the turn goes to the host, and both boards are cleared for placement.
func (m *Machine) Join(ctx context.Context, roomID, player, secret string) (View, error) {
	roomID = strings.TrimSpace(roomID)
	player = strings.TrimSpace(player)
	if roomID == "" || player == "" {
		return View{}, ErrMissingFields
	}

	l := m.locks.lock(roomID)
	defer l.Unlock()

	session, err := m.store.FindByRoom(ctx, roomID)
	if err != nil {
		return View{}, err
	}

	if session.Status != StatusWaiting {
		return View{}, ErrNotJoinable
	}
	if session.Host == "" {
		return View{}, ErrHostMissing
	}
	if session.Host == player {
		return View{}, ErrSelfJoin
	}
	if session.Guest != "" {
		return View{}, ErrRoomFull
	}
	if session.Secret != "" {
		if secret == "" {
			return View{}, ErrPasswordRequired
		}
		if session.Secret != secret {
			return View{}, ErrPasswordMismatch
		}
	}

	session.Guest = player
	session.Turn = session.Host
	session.Board1 = ""
	session.Key1 = ""
	session.Board2 = ""
	session.Key2 = ""
	session.Status = StatusActive
	session.UpdatedAt = time.Now()

	guard := UpdateGuard{Status: StatusWaiting, GuestEmpty: true}
	if err := m.store.UpdateSession(ctx, session, guard); err != nil {
		return View{}, err
	}

	m.log.Info().Str("room", roomID).Str("guest", player).Msg("guest joined, session active")
	return session.Sanitized(), nil
}

// Start is the explicit activation path kept for clients that predate
// activate-on-join. Once Join has activated the session it reports
// ErrAlreadyStarted.
func (m *Machine) Start(ctx context.Context, roomID, requester string) (View, error) {
	roomID = strings.TrimSpace(roomID)
	requester = strings.TrimSpace(requester)
	if roomID == "" || requester == "" {
		return View{}, ErrMissingFields
	}

	l := m.locks.lock(roomID)
	defer l.Unlock()

	session, err := m.store.FindByRoom(ctx, roomID)
	if err != nil {
		return View{}, err
	}

	if session.Status != StatusWaiting {
		return View{}, ErrAlreadyStarted
	}
	if session.Host != requester {
		return View{}, ErrNotHost
	}
	if session.Guest == "" {
		return View{}, ErrGuestMissing
	}

	session.Status = StatusActive
	session.Turn = session.Host
	session.UpdatedAt = time.Now()

	if err := m.store.UpdateSession(ctx, session, UpdateGuard{Status: StatusWaiting}); err != nil {
		return View{}, err
	}

	return session.Sanitized(), nil
}

// BoardResult echoes the stored payload and whose turn it is after an
// UpdateBoard call.
type BoardResult struct {
	Board string `json:"board"`
	Turn  string `json:"turn,omitempty"`
}

// UpdateBoard handles both board phases. Until a player's own slot is filled
// and before both boards exist, the call is a placement submission: the
// payload is stored in the caller's slot with no turn check. Once both boards
// are populated, the call is a move: the caller must hold the turn, the
// payload overwrites the opponent's slot (shots are recorded against the
// opponent's board), and the turn passes to nextTurn.
func (m *Machine) UpdateBoard(ctx context.Context, roomID, player, board, key, nextTurn string) (BoardResult, error) {
	roomID = strings.TrimSpace(roomID)
	player = strings.TrimSpace(player)
	nextTurn = strings.TrimSpace(nextTurn)
	if roomID == "" || player == "" || board == "" {
		return BoardResult{}, ErrMissingFields
	}

	l := m.locks.lock(roomID)
	defer l.Unlock()

	session, err := m.store.FindByRoom(ctx, roomID)
	if err != nil {
		return BoardResult{}, err
	}

	if !session.IsPlayer(player) {
		return BoardResult{}, ErrNotAPlayer
	}

	if session.boardOf(player) == "" && !session.bothBoardsSet() {
		// Placement phase: both players submit independently.
		session.setBoard(player, board, key)
		session.UpdatedAt = time.Now()
		if err := m.store.UpdateSession(ctx, session, UpdateGuard{}); err != nil {
			return BoardResult{}, err
		}
		return BoardResult{Board: board, Turn: session.Turn}, nil
	}

	if session.Turn != player {
		return BoardResult{}, ErrNotYourTurn
	}

	opponent := session.Opponent(player)
	if nextTurn == "" {
		nextTurn = opponent
	}
	if !session.IsPlayer(nextTurn) {
		return BoardResult{}, ErrPlayerNotFound
	}

	session.setBoard(opponent, board, "")
	session.Turn = nextTurn
	session.UpdatedAt = time.Now()

	if err := m.store.UpdateSession(ctx, session, UpdateGuard{Status: session.Status}); err != nil {
		return BoardResult{}, err
	}

	return BoardResult{Board: board, Turn: session.Turn}, nil
}

// LeaveOutcome describes how a leave resolved.
type LeaveOutcome struct {
	Message string `json:"message"`
	Winner  string `json:"winner,omitempty"`
	Deleted bool   `json:"-"`
	Reason  string `json:"reason,omitempty"`
}

// Leave removes a player from the session. A player abandoning an active
// session forfeits it to the opponent; leaving before that either deletes the
// room (host) or reopens the guest slot (guest).
func (m *Machine) Leave(ctx context.Context, roomID, player string) (LeaveOutcome, error) {
	return m.leave(ctx, roomID, player, "")
}

// LeaveForfeit is Leave invoked on behalf of a player whose disconnect grace
// window expired.
func (m *Machine) LeaveForfeit(ctx context.Context, roomID, player string) (LeaveOutcome, error) {
	return m.leave(ctx, roomID, player, "afk")
}

func (m *Machine) leave(ctx context.Context, roomID, player, reason string) (LeaveOutcome, error) {
	roomID = strings.TrimSpace(roomID)
	player = strings.TrimSpace(player)
	if roomID == "" || player == "" {
		return LeaveOutcome{}, ErrMissingFields
	}

	l := m.locks.lock(roomID)
	defer l.Unlock()

	session, err := m.store.FindByRoom(ctx, roomID)
	if err != nil {
		return LeaveOutcome{}, err
	}

	now := time.Now()

	switch player {
	case session.Host:
		if session.Status == StatusActive {
			winner := session.Guest
			session.Status = StatusCompleted
			session.Winner = winner
			session.Turn = ""
			session.UpdatedAt = now
			if err := m.store.UpdateSession(ctx, session, UpdateGuard{Status: StatusActive}); err != nil {
				return LeaveOutcome{}, err
			}
			m.log.Info().Str("room", roomID).Str("winner", winner).Str("reason", reason).Msg("host left active session")
			return LeaveOutcome{Message: "Host left the game. Player 2 wins!", Winner: winner, Reason: reason}, nil
		}

		if err := m.store.DeleteSession(ctx, roomID); err != nil {
			return LeaveOutcome{}, err
		}
		m.locks.forget(roomID)
		return LeaveOutcome{Message: "Game deleted by host", Deleted: true, Reason: reason}, nil

	case session.Guest:
		if session.Status == StatusActive {
			winner := session.Host
			session.Status = StatusCompleted
			session.Winner = winner
			session.Turn = ""
			session.UpdatedAt = now
			if err := m.store.UpdateSession(ctx, session, UpdateGuard{Status: StatusActive}); err != nil {
				return LeaveOutcome{}, err
			}
			m.log.Info().Str("room", roomID).Str("winner", winner).Str("reason", reason).Msg("guest left active session")
			return LeaveOutcome{Message: "Player 2 left the game. Player 1 wins!", Winner: winner, Reason: reason}, nil
		}

		// A completed session keeps its status and winner; only the guest
		// slot is vacated. Anything else reopens the room for a new guest.
		session.Guest = ""
		session.Board2 = ""
		session.Key2 = ""
		if session.Status != StatusCompleted {
			session.Status = StatusWaiting
			session.Turn = ""
		}
		session.UpdatedAt = now
		if err := m.store.UpdateSession(ctx, session, UpdateGuard{}); err != nil {
			return LeaveOutcome{}, err
		}
		return LeaveOutcome{Message: "Player 2 left the game", Reason: reason}, nil

	default:
		return LeaveOutcome{}, ErrPlayerNotFound
	}
}

// Kick ejects the guest and reopens the room. The host cannot be kicked and
// nobody can be kicked out of an active session.
func (m *Machine) Kick(ctx context.Context, roomID, requester, target string) (LeaveOutcome, error) {
	roomID = strings.TrimSpace(roomID)
	target = strings.TrimSpace(target)
	if roomID == "" || target == "" {
		return LeaveOutcome{}, ErrMissingFields
	}

	l := m.locks.lock(roomID)
	defer l.Unlock()

	session, err := m.store.FindByRoom(ctx, roomID)
	if err != nil {
		return LeaveOutcome{}, err
	}

	if target == session.Host {
		return LeaveOutcome{}, ErrCannotKickHost
	}
	if session.Status == StatusActive {
		return LeaveOutcome{}, ErrCannotKickActive
	}
	if target != session.Guest {
		return LeaveOutcome{}, ErrPlayerNotFound
	}

	session.Guest = ""
	session.Board1 = ""
	session.Key1 = ""
	session.Board2 = ""
	session.Key2 = ""
	session.Status = StatusWaiting
	session.Turn = ""
	session.Winner = ""
	session.UpdatedAt = time.Now()

	if err := m.store.UpdateSession(ctx, session, UpdateGuard{}); err != nil {
		return LeaveOutcome{}, err
	}

	m.log.Info().Str("room", roomID).Str("requester", requester).Str("target", target).Msg("guest kicked")
	return LeaveOutcome{Message: "Player 2 kicked out"}, nil
}

// Get returns the sanitized session for roomID.
func (m *Machine) Get(ctx context.Context, roomID string) (View, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return View{}, ErrMissingFields
	}

	session, err := m.store.FindByRoom(ctx, roomID)
	if err != nil {
		return View{}, err
	}
	return session.Sanitized(), nil
}

// List returns summaries for every session; secrets are never included.
func (m *Machine) List(ctx context.Context) ([]Summary, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, s.Summarized())
	}
	return summaries, nil
}
