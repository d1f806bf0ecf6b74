package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battleship-server/internal/battleship"
)

func newWSFixture(t *testing.T, grace time.Duration) (*Server, string) {
	t.Helper()

	cfg := Config{JWTSecret: "test-secret", GracePeriod: grace, RateLimit: 100}
	srv := newServerWithConfig(cfg, zerolog.Nop())
	t.Cleanup(srv.grace.Stop)

	ts := httptest.NewServer(srv.RegisterRoutes())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/websocket"
	return srv, wsURL
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	msg, err := json.Marshal(ClientMessage{Type: eventType, Payload: data})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, msg))
}

// waitForEvent reads until a message of the wanted type arrives, returning
// its raw payload.
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err, "waiting for %s", eventType)

		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == eventType {
			return msg.Payload
		}
	}
	t.Fatalf("no %s event before deadline", eventType)
	return nil
}

func TestWS_JoinBroadcastsToSessionGroup(t *testing.T) {
	_, wsURL := newWSFixture(t, time.Minute)

	alice := dialWS(t, wsURL)
	sendEvent(t, alice, "joinGame", JoinGameEvent{PlayerID: "alice", GameID: "R1"})
	waitForEvent(t, alice, "playerJoined")

	bob := dialWS(t, wsURL)
	sendEvent(t, bob, "joinGame", JoinGameEvent{PlayerID: "bob", GameID: "R1"})

	payload := waitForEvent(t, alice, "playerJoined")
	var ev PlayerJoinedEvent
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.Equal(t, "bob", ev.PlayerID)
	assert.Equal(t, "R1", ev.GameID)
}

func TestWS_ReconnectWithinGraceSyncsState(t *testing.T) {
	srv, wsURL := newWSFixture(t, 2*time.Second)
	ctx := context.Background()

	_, err := srv.machine.Create(ctx, "R1", "alice", "")
	require.NoError(t, err)
	_, err = srv.machine.Join(ctx, "R1", "bob", "")
	require.NoError(t, err)

	alice := dialWS(t, wsURL)
	sendEvent(t, alice, "joinGame", JoinGameEvent{PlayerID: "alice", GameID: "R1"})
	waitForEvent(t, alice, "playerJoined")

	bob := dialWS(t, wsURL)
	sendEvent(t, bob, "joinGame", JoinGameEvent{PlayerID: "bob", GameID: "R1"})
	waitForEvent(t, alice, "playerJoined")

	// Bob's transport drops; the grace timer starts server-side.
	bob.Close(websocket.StatusNormalClosure, "network blip")

	bob2 := dialWS(t, wsURL)
	sendEvent(t, bob2, "reconnect_player", JoinGameEvent{PlayerID: "bob", GameID: "R1"})

	payload := waitForEvent(t, bob2, "game_state_sync")
	var view battleship.View
	require.NoError(t, json.Unmarshal(payload, &view))
	assert.Equal(t, battleship.StatusActive, view.Status)
	assert.Equal(t, "bob", view.Player2)

	payload = waitForEvent(t, alice, "player_reconnected")
	var rec PlayerReconnectedEvent
	require.NoError(t, json.Unmarshal(payload, &rec))
	assert.Equal(t, "bob", rec.PlayerID)

	// The session survives untouched and no forfeit fires afterwards.
	time.Sleep(100 * time.Millisecond)
	view2, err := srv.machine.Get(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, battleship.StatusActive, view2.Status)
}

func TestWS_GraceExpiryForfeitsAndRejectsReconnect(t *testing.T) {
	srv, wsURL := newWSFixture(t, 50*time.Millisecond)
	ctx := context.Background()

	_, err := srv.machine.Create(ctx, "R1", "alice", "")
	require.NoError(t, err)
	_, err = srv.machine.Join(ctx, "R1", "bob", "")
	require.NoError(t, err)

	alice := dialWS(t, wsURL)
	sendEvent(t, alice, "joinGame", JoinGameEvent{PlayerID: "alice", GameID: "R1"})
	waitForEvent(t, alice, "playerJoined")

	bob := dialWS(t, wsURL)
	sendEvent(t, bob, "joinGame", JoinGameEvent{PlayerID: "bob", GameID: "R1"})
	waitForEvent(t, alice, "playerJoined")

	bob.Close(websocket.StatusNormalClosure, "gone for good")

	payload := waitForEvent(t, alice, "playerLeft")
	var left PlayerLeftEvent
	require.NoError(t, json.Unmarshal(payload, &left))
	assert.Equal(t, "bob", left.PlayerID)
	assert.Equal(t, "afk", left.Reason)

	view, err := srv.machine.Get(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, battleship.StatusCompleted, view.Status)
	assert.Equal(t, "alice", view.Winner)

	// Reconnecting after expiry cannot resurrect the forfeited episode.
	bob2 := dialWS(t, wsURL)
	sendEvent(t, bob2, "reconnect_player", JoinGameEvent{PlayerID: "bob", GameID: "R1"})
	waitForEvent(t, bob2, "reconnect_error")
}

func TestWS_PingPong(t *testing.T) {
	_, wsURL := newWSFixture(t, time.Minute)

	conn := dialWS(t, wsURL)
	sendEvent(t, conn, "ping", struct{}{})
	waitForEvent(t, conn, "pong")
}

func TestWS_UnknownEventType(t *testing.T) {
	_, wsURL := newWSFixture(t, time.Minute)

	conn := dialWS(t, wsURL)
	sendEvent(t, conn, "teleport", struct{}{})

	payload := waitForEvent(t, conn, "error")
	var ev ErrorEvent
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.Contains(t, ev.Message, "Unknown message type")
}
