package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"battleship-server/internal/battleship"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/websocket", s.websocketHandler)

	r.Post("/user/signup", s.handleSignup)
	r.Post("/user/signin", s.handleSignin)

	r.Route("/battleship/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/create", s.handleCreateGame)
		r.Post("/join", s.handleJoinGame)
		r.Post("/start", s.handleStartGame)
		r.Post("/leave", s.handleLeaveGame)
		r.Post("/kick", s.handleKickPlayer)
		r.Post("/update-board", s.handleUpdateBoard)
		r.Get("/get-game/{roomID}", s.handleGetGame)
		r.Get("/get-all-rooms", s.handleGetAllRooms)
	})

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, accessToken")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "up"}
	if s.db != nil {
		health = s.db.Health()
	}
	writeSuccess(w, http.StatusOK, health)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}

	summary, err := s.machine.Create(r.Context(), req.RoomID, req.Player1, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, summary)
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req JoinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}

	view, err := s.machine.Join(r.Context(), req.RoomID, req.Player, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view)
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req StartGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}

	view, err := s.machine.Start(r.Context(), req.RoomID, req.Player)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view)
}

func (s *Server) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	var req LeaveGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}

	outcome, err := s.machine.Leave(r.Context(), req.RoomID, req.Player)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Explicit leave also resolves any pending disconnect for the player.
	s.grace.Cancel(req.Player)
	s.presence.RecordLeave(req.RoomID, req.Player)

	writeSuccess(w, http.StatusOK, outcome)
}

func (s *Server) handleKickPlayer(w http.ResponseWriter, r *http.Request) {
	var req KickPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}

	requester, _ := r.Context().Value(userIDKey).(string)
	outcome, err := s.machine.Kick(r.Context(), req.RoomID, requester, req.Player)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.grace.Cancel(req.Player)
	s.presence.RecordLeave(req.RoomID, req.Player)

	writeSuccess(w, http.StatusOK, outcome)
}

func (s *Server) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	var req UpdateBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}

	result, err := s.machine.UpdateBoard(r.Context(), req.RoomID, req.Player, req.Board, req.Key, req.NextTurn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	view, err := s.machine.Get(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view)
}

func (s *Server) handleGetAllRooms(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.machine.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data := RoomListData{Items: summaries, Count: len(summaries)}
	if len(summaries) == 0 {
		data.Message = "No games found"
		data.Items = []battleship.Summary{}
	}
	writeSuccess(w, http.StatusOK, data)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{Status: "success", Data: data})
}

func writeFailure(w http.ResponseWriter, status int, name, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(FailureResponse{
		Status: "failure",
		Error:  ErrorBody{Message: message, Name: name, Code: code},
	})
}

// writeDomainError maps the battleship error taxonomy onto HTTP.
func writeDomainError(w http.ResponseWriter, err error) {
	var e *battleship.Error
	if !errors.As(err, &e) {
		writeFailure(w, http.StatusInternalServerError, "InternalError", "INTERNAL", "Internal server error")
		return
	}

	var status int
	var name string
	switch e.Kind {
	case battleship.KindValidation:
		status, name = http.StatusBadRequest, "ValidationError"
	case battleship.KindConflict:
		status, name = http.StatusConflict, "ConflictError"
	case battleship.KindAuthorization:
		status, name = http.StatusUnauthorized, "AuthorizationError"
	case battleship.KindNotFound:
		status, name = http.StatusNotFound, "NotFoundError"
	case battleship.KindTransient:
		status, name = http.StatusServiceUnavailable, "TransientError"
	default:
		status, name = http.StatusInternalServerError, "InternalError"
	}

	writeFailure(w, status, name, e.Code, e.Message)
}
