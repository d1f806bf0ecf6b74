package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	s.log.Debug().Str("conn", connectionID).Msg("new connection")
	s.connections.AddConnection(connectionID, socket)

	defer func() {
		binding, bound := s.connections.RemoveConnection(connectionID)
		s.rateLimiter.Forget(connectionID)
		s.log.Debug().Str("conn", connectionID).Msg("connection closed")

		// A bound player gets a grace window before they forfeit.
		if bound {
			s.grace.PlayerDisconnected(binding.SessionID, binding.PlayerID)
		}
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			s.log.Debug().Err(err).Str("conn", connectionID).Msg("read error")
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(socket, ctx, "Rate limit exceeded")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(socket, ctx, "Invalid JSON")
			continue
		}

		switch msg.Type {
		case "ping":
			s.send(socket, ctx, ServerMessage{Type: "pong", Payload: struct{}{}})

		case "joinGame":
			s.handleWSJoinGame(socket, ctx, connectionID, msg.Payload)

		case "leaveGame":
			s.handleWSLeaveGame(socket, ctx, msg.Payload)

		case "startGame":
			s.handleWSStartGame(socket, ctx, msg.Payload)

		case "kickPlayer":
			s.handleWSKickPlayer(socket, ctx, msg.Payload)

		case "creationComplete":
			s.handleWSCreationComplete(socket, ctx, msg.Payload)

		case "makeMove":
			s.handleWSMakeMove(socket, ctx, msg.Payload)

		case "reconnect_player":
			s.handleWSReconnectPlayer(socket, ctx, connectionID, msg.Payload)

		default:
			s.sendError(socket, ctx, "Unknown message type: "+msg.Type)
		}
	}
}

func (s *Server) send(socket *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return socket.Write(ctx, websocket.MessageText, data)
}

func (s *Server) sendError(socket *websocket.Conn, ctx context.Context, message string) {
	if err := s.send(socket, ctx, ServerMessage{Type: "error", Payload: ErrorEvent{Message: message}}); err != nil {
		s.log.Warn().Err(err).Msg("failed to send error message")
	}
}

func (s *Server) handleWSJoinGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var ev JoinGameEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.GameID == "" || ev.PlayerID == "" {
		s.sendError(socket, ctx, "Invalid joinGame payload")
		return
	}

	// Joining resolves any pending disconnect for this player.
	s.grace.Cancel(ev.PlayerID)

	old := s.connections.BindPlayer(connectionID, ev.GameID, ev.PlayerID)
	if old != "" {
		if conn := s.connections.GetConnection(old); conn != nil {
			conn.Close(websocket.StatusNormalClosure, "Connected from another device")
		}
	}

	s.presence.RecordJoin(ev.GameID, ev.PlayerID)
	s.connections.Publish(ev.GameID, "playerJoined", PlayerJoinedEvent{PlayerID: ev.PlayerID, GameID: ev.GameID})
}

func (s *Server) handleWSLeaveGame(socket *websocket.Conn, ctx context.Context, payload json.RawMessage) {
	var ev JoinGameEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.GameID == "" || ev.PlayerID == "" {
		s.sendError(socket, ctx, "Invalid leaveGame payload")
		return
	}

	s.grace.Cancel(ev.PlayerID)
	s.presence.RecordLeave(ev.GameID, ev.PlayerID)
	s.connections.Publish(ev.GameID, "playerLeft", PlayerLeftEvent{PlayerID: ev.PlayerID, GameID: ev.GameID})
}

func (s *Server) handleWSStartGame(socket *websocket.Conn, ctx context.Context, payload json.RawMessage) {
	var ev GameStartedEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.GameID == "" {
		s.sendError(socket, ctx, "Invalid startGame payload")
		return
	}

	// Starting play settles the lobby: pending disconnects no longer apply.
	for _, playerID := range s.presence.MembersOf(ev.GameID) {
		s.grace.Cancel(playerID)
	}

	s.connections.Publish(ev.GameID, "gameStarted", ev)
}

func (s *Server) handleWSKickPlayer(socket *websocket.Conn, ctx context.Context, payload json.RawMessage) {
	var ev KickPlayerEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.GameID == "" || ev.KickedPlayerID == "" {
		s.sendError(socket, ctx, "Invalid kickPlayer payload")
		return
	}

	s.grace.Cancel(ev.KickedPlayerID)
	s.presence.RecordLeave(ev.GameID, ev.KickedPlayerID)
	s.connections.Publish(ev.GameID, "playerKicked", PlayerKickedEvent{KickedPlayerID: ev.KickedPlayerID, GameID: ev.GameID})
}

func (s *Server) handleWSCreationComplete(socket *websocket.Conn, ctx context.Context, payload json.RawMessage) {
	var ev CreateCompleteEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.GameID == "" {
		s.sendError(socket, ctx, "Invalid creationComplete payload")
		return
	}

	s.connections.Publish(ev.GameID, "createComplete", ev)
}

// handleWSMakeMove relays the move event to the session group. The move
// itself is validated and applied through the update-board HTTP action; the
// socket layer only fans out the notification.
func (s *Server) handleWSMakeMove(socket *websocket.Conn, ctx context.Context, payload json.RawMessage) {
	var ev struct {
		GameID string `json:"gameId"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.GameID == "" {
		s.sendError(socket, ctx, "Invalid makeMove payload")
		return
	}

	s.connections.Publish(ev.GameID, "movePlayed", payload)
}

func (s *Server) handleWSReconnectPlayer(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var ev JoinGameEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.GameID == "" || ev.PlayerID == "" {
		s.send(socket, ctx, ServerMessage{Type: "reconnect_error", Payload: ReconnectErrorEvent{Message: "Failed to reconnect"}})
		return
	}

	// Only a player the grace window hasn't expired on can come back; after
	// expiry they were removed from presence and forfeited.
	if !s.presence.Contains(ev.GameID, ev.PlayerID) {
		s.send(socket, ctx, ServerMessage{Type: "reconnect_error", Payload: ReconnectErrorEvent{Message: "Failed to reconnect"}})
		return
	}

	s.grace.Cancel(ev.PlayerID)

	old := s.connections.BindPlayer(connectionID, ev.GameID, ev.PlayerID)
	if old != "" {
		if conn := s.connections.GetConnection(old); conn != nil {
			conn.Close(websocket.StatusNormalClosure, "Connected from another device")
		}
	}

	view, err := s.machine.Get(ctx, ev.GameID)
	if err != nil {
		s.send(socket, ctx, ServerMessage{Type: "reconnect_error", Payload: ReconnectErrorEvent{Message: "Failed to reconnect"}})
		return
	}

	s.send(socket, ctx, ServerMessage{Type: "game_state_sync", Payload: view})
	s.connections.PublishExcept(ev.GameID, ev.PlayerID, "player_reconnected", PlayerReconnectedEvent{PlayerID: ev.PlayerID})
}
