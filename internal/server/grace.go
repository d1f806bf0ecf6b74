package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"battleship-server/internal/battleship"
)

// Publisher is the slice of the connection manager the grace coordinator
// needs: fan an event out to a session's sockets.
type Publisher interface {
	Publish(sessionID, event string, payload any)
}

type graceTimer struct {
	timer     *time.Timer
	sessionID string
}

// GraceCoordinator gives a disconnected player a window to come back before
// their absence is treated as abandoning the game. One timer per player;
// a reconnect cancels it, expiry forfeits the session to the opponent and
// tells the remaining player why.
type GraceCoordinator struct {
	machine  *battleship.Machine
	presence *PresenceTracker
	publish  Publisher
	grace    time.Duration

	timers map[string]*graceTimer // playerID → pending timer
	mu     sync.Mutex
	log    zerolog.Logger
}

func NewGraceCoordinator(machine *battleship.Machine, presence *PresenceTracker, publish Publisher, grace time.Duration, log zerolog.Logger) *GraceCoordinator {
	return &GraceCoordinator{
		machine:  machine,
		presence: presence,
		publish:  publish,
		grace:    grace,
		timers:   make(map[string]*graceTimer),
		log:      log.With().Str("component", "grace").Logger(),
	}
}

// PlayerDisconnected starts the reconnect window for a player. A second
// disconnect for the same player restarts the window rather than stacking a
// second timer.
func (gc *GraceCoordinator) PlayerDisconnected(sessionID, playerID string) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if old, ok := gc.timers[playerID]; ok {
		old.timer.Stop()
	}

	gt := &graceTimer{sessionID: sessionID}
	gt.timer = time.AfterFunc(gc.grace, func() {
		gc.fire(gt, sessionID, playerID)
	})
	gc.timers[playerID] = gt

	gc.log.Info().
		Str("session", sessionID).
		Str("player", playerID).
		Dur("grace", gc.grace).
		Msg("player disconnected, grace window started")
}

// Cancel stops a pending grace timer. It reports whether a timer was actually
// pending, so callers can tell a real reconnect from a stale one.
func (gc *GraceCoordinator) Cancel(playerID string) bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	gt, ok := gc.timers[playerID]
	if !ok {
		return false
	}
	gt.timer.Stop()
	delete(gc.timers, playerID)
	return true
}

// fire runs when a grace window expires. The identity check against the
// registered timer closes the race with Cancel and with a newer disconnect
// replacing this timer while AfterFunc was already dispatching.
func (gc *GraceCoordinator) fire(gt *graceTimer, sessionID, playerID string) {
	gc.mu.Lock()
	if gc.timers[playerID] != gt {
		gc.mu.Unlock()
		return
	}
	delete(gc.timers, playerID)
	gc.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	outcome, err := gc.machine.LeaveForfeit(ctx, sessionID, playerID)
	gc.presence.RecordLeave(sessionID, playerID)

	if err != nil {
		var dErr *battleship.Error
		if errors.As(err, &dErr) && dErr.Kind == battleship.KindNotFound {
			gc.log.Debug().
				Str("session", sessionID).
				Str("player", playerID).
				Msg("grace expired but session already gone")
		} else {
			gc.log.Error().Err(err).
				Str("session", sessionID).
				Str("player", playerID).
				Msg("grace expiry forfeit failed")
		}
		return
	}

	gc.log.Info().
		Str("session", sessionID).
		Str("player", playerID).
		Str("winner", outcome.Winner).
		Msg("grace window expired, player forfeits")

	gc.publish.Publish(sessionID, "playerLeft", PlayerLeftEvent{
		PlayerID: playerID,
		GameID:   sessionID,
		Message:  outcome.Message,
		Reason:   outcome.Reason,
	})
}

// Stop cancels every pending timer. Used on shutdown so no forfeit races the
// server teardown.
func (gc *GraceCoordinator) Stop() {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	for playerID, gt := range gc.timers {
		gt.timer.Stop()
		delete(gc.timers, playerID)
	}
}
