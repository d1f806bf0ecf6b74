package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

type PlayerConnection struct {
	SessionID string
	PlayerID  string
}

// ConnectionManager tracks live sockets and which player/session each one is
// bound to. Its Publish method is the broadcast gateway: events fan out to
// every socket bound to a session ID.
type ConnectionManager struct {
	connections map[string]*websocket.Conn // connectionID → socket
	players     map[string]PlayerConnection
	mu          sync.RWMutex
	log         zerolog.Logger
}

func NewConnectionManager(log zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		players:     make(map[string]PlayerConnection),
		log:         log.With().Str("component", "connections").Logger(),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
}

// RemoveConnection drops the socket and returns the binding it carried, so
// the caller can start a grace timer for the player.
func (cm *ConnectionManager) RemoveConnection(id string) (PlayerConnection, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	binding, bound := cm.players[id]
	delete(cm.connections, id)
	delete(cm.players, id)
	return binding, bound
}

// BindPlayer attaches a player/session identity to a connection. A player
// reconnecting on a new socket steals the binding: the previous socket for
// the same player in the same session is unbound and returned.
func (cm *ConnectionManager) BindPlayer(connectionID, sessionID, playerID string) (oldConnectionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for id, p := range cm.players {
		if id != connectionID && p.SessionID == sessionID && p.PlayerID == playerID {
			delete(cm.players, id)
			oldConnectionID = id
			break
		}
	}

	cm.players[connectionID] = PlayerConnection{SessionID: sessionID, PlayerID: playerID}
	return oldConnectionID
}

func (cm *ConnectionManager) Binding(connectionID string) (PlayerConnection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	p, ok := cm.players[connectionID]
	return p, ok
}

func (cm *ConnectionManager) GetConnection(connectionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.connections[connectionID]
}

// Publish sends an event to every socket bound to sessionID.
func (cm *ConnectionManager) Publish(sessionID, event string, payload any) {
	cm.publishTo(sessionID, "", event, payload)
}

// PublishExcept is Publish minus one player, for notifications the acting
// player should not receive about themselves.
func (cm *ConnectionManager) PublishExcept(sessionID, skipPlayerID, event string, payload any) {
	cm.publishTo(sessionID, skipPlayerID, event, payload)
}

func (cm *ConnectionManager) publishTo(sessionID, skipPlayerID, event string, payload any) {
	msg := ServerMessage{Type: event, Payload: payload}
	data, err := json.Marshal(msg)
	if err != nil {
		cm.log.Error().Err(err).Str("event", event).Msg("marshal broadcast")
		return
	}

	cm.mu.RLock()
	var targets []*websocket.Conn
	for id, p := range cm.players {
		if p.SessionID != sessionID {
			continue
		}
		if skipPlayerID != "" && p.PlayerID == skipPlayerID {
			continue
		}
		if conn := cm.connections[id]; conn != nil {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
			cm.log.Warn().Err(err).Str("event", event).Str("session", sessionID).Msg("broadcast write failed")
		}
	}
}

// CloseAll closes every socket. Used on shutdown.
func (cm *ConnectionManager) CloseAll(reason string) {
	cm.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(cm.connections))
	for id, conn := range cm.connections {
		conns = append(conns, conn)
		delete(cm.connections, id)
		delete(cm.players, id)
	}
	cm.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, reason)
	}
}
