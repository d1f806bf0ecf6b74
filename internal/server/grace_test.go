package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battleship-server/internal/battleship"
)

type publishedEvent struct {
	SessionID string
	Event     string
	Payload   any
}

// capturingPublisher records broadcasts instead of writing to sockets.
type capturingPublisher struct {
	events []publishedEvent
	mu     sync.Mutex
}

func (c *capturingPublisher) Publish(sessionID, event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, publishedEvent{SessionID: sessionID, Event: event, Payload: payload})
}

func (c *capturingPublisher) all() []publishedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishedEvent(nil), c.events...)
}

func newGraceFixture(t *testing.T, grace time.Duration) (*GraceCoordinator, *battleship.Machine, *PresenceTracker, *capturingPublisher) {
	t.Helper()

	machine := battleship.NewMachine(battleship.NewMemStore(), zerolog.Nop())
	presence := NewPresenceTracker()
	pub := &capturingPublisher{}
	gc := NewGraceCoordinator(machine, presence, pub, grace, zerolog.Nop())
	t.Cleanup(gc.Stop)

	return gc, machine, presence, pub
}

func activeSession(t *testing.T, machine *battleship.Machine, presence *PresenceTracker) {
	t.Helper()
	ctx := context.Background()

	_, err := machine.Create(ctx, "R1", "alice", "")
	require.NoError(t, err)
	_, err = machine.Join(ctx, "R1", "bob", "")
	require.NoError(t, err)

	presence.RecordJoin("R1", "alice")
	presence.RecordJoin("R1", "bob")
}

func TestGrace_ExpiryForfeitsAndBroadcastsAfk(t *testing.T) {
	gc, machine, presence, pub := newGraceFixture(t, 20*time.Millisecond)
	activeSession(t, machine, presence)

	gc.PlayerDisconnected("R1", "bob")

	assert.Eventually(t, func() bool {
		view, err := machine.Get(context.Background(), "R1")
		return err == nil && view.Status == battleship.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	view, err := machine.Get(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "alice", view.Winner)

	assert.False(t, presence.Contains("R1", "bob"))
	assert.True(t, presence.Contains("R1", "alice"))

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, "playerLeft", events[0].Event)
	left, ok := events[0].Payload.(PlayerLeftEvent)
	require.True(t, ok)
	assert.Equal(t, "afk", left.Reason)
	assert.Equal(t, "bob", left.PlayerID)
}

func TestGrace_CancelBeforeExpiryPreventsForfeit(t *testing.T) {
	gc, machine, presence, pub := newGraceFixture(t, 30*time.Millisecond)
	activeSession(t, machine, presence)

	gc.PlayerDisconnected("R1", "bob")
	assert.True(t, gc.Cancel("bob"))

	time.Sleep(100 * time.Millisecond)

	view, err := machine.Get(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, battleship.StatusActive, view.Status)
	assert.Empty(t, pub.all(), "a reconnected player must never see a forfeit broadcast")
}

func TestGrace_CancelIsIdempotent(t *testing.T) {
	gc, machine, presence, _ := newGraceFixture(t, time.Minute)
	activeSession(t, machine, presence)

	gc.PlayerDisconnected("R1", "bob")
	assert.True(t, gc.Cancel("bob"))
	assert.False(t, gc.Cancel("bob"))
	assert.False(t, gc.Cancel("never-disconnected"))
}

func TestGrace_NewDisconnectReplacesOldTimer(t *testing.T) {
	gc, machine, presence, pub := newGraceFixture(t, 40*time.Millisecond)
	activeSession(t, machine, presence)

	gc.PlayerDisconnected("R1", "bob")
	gc.PlayerDisconnected("R1", "bob")
	gc.PlayerDisconnected("R1", "bob")

	assert.Eventually(t, func() bool {
		return len(pub.all()) > 0
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)

	// One timer per player: three disconnect episodes still produce exactly
	// one forfeit.
	assert.Len(t, pub.all(), 1)
}

func TestGrace_ExpiredTimerNotCancellable(t *testing.T) {
	gc, machine, presence, pub := newGraceFixture(t, 10*time.Millisecond)
	activeSession(t, machine, presence)

	gc.PlayerDisconnected("R1", "bob")

	assert.Eventually(t, func() bool {
		return len(pub.all()) == 1
	}, time.Second, 5*time.Millisecond)

	// The forfeit already ran; cancelling now is a no-op, not an error.
	assert.False(t, gc.Cancel("bob"))
}

func TestGrace_FireAgainstDeletedSessionStaysConsistent(t *testing.T) {
	gc, machine, presence, pub := newGraceFixture(t, 15*time.Millisecond)
	ctx := context.Background()

	_, err := machine.Create(ctx, "R1", "alice", "")
	require.NoError(t, err)
	presence.RecordJoin("R1", "alice")

	// Host deletes the room before the timer fires.
	gc.PlayerDisconnected("R1", "alice")
	_, err = machine.Leave(ctx, "R1", "alice")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	// The forfeit path swallows the NotFound: no broadcast, presence clean.
	assert.Empty(t, pub.all())
	assert.False(t, presence.Contains("R1", "alice"))
}

func TestGrace_StopCancelsEverything(t *testing.T) {
	gc, machine, presence, pub := newGraceFixture(t, 25*time.Millisecond)
	activeSession(t, machine, presence)

	gc.PlayerDisconnected("R1", "alice")
	gc.PlayerDisconnected("R1", "bob")
	gc.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, pub.all())
}
