package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"battleship-server/internal/postgres"
)

// UserStore is the credential backend consumed by the auth layer.
type UserStore interface {
	Create(ctx context.Context, user postgres.User) error
	FindByEmail(ctx context.Context, email string) (postgres.User, error)
	FindByName(ctx context.Context, name string) (postgres.User, error)
}

type contextKey string

const userIDKey contextKey = "userID"

const tokenTTL = time.Hour

func (s *Server) issueToken(user postgres.User) (string, error) {
	claims := jwt.MapClaims{
		"name": user.Name,
		"id":   user.ID,
		"exp":  time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Server) verifyToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return "", errors.New("token missing subject")
	}
	return id, nil
}

// authMiddleware guards the battleship routes. The token travels in the
// accessToken header as "Bearer <jwt>".
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("accessToken")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[1] == "" {
			writeFailure(w, http.StatusForbidden, "AuthenticationError", "NO_TOKEN", "Unauthorized. No token provided.")
			return
		}

		userID, err := s.verifyToken(parts[1])
		if err != nil {
			writeFailure(w, http.StatusForbidden, "AuthenticationError", "BAD_TOKEN", "Invalid or expired token.")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "MISSING_FIELDS", "email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "InternalError", "INTERNAL", "Something went wrong")
		return
	}

	user := postgres.User{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, postgres.ErrUserExists) {
			writeFailure(w, http.StatusBadRequest, "ConflictError", "USER_EXISTS", "User already exists")
			return
		}
		s.log.Error().Err(err).Msg("signup failed")
		writeFailure(w, http.StatusInternalServerError, "InternalError", "INTERNAL", "Something went wrong")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "InternalError", "INTERNAL", "Something went wrong")
		return
	}

	writeSuccess(w, http.StatusCreated, AuthResponse{Name: user.Name, Email: user.Email, Token: token})
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "ValidationError", "BAD_JSON", "Invalid request body")
		return
	}

	var user postgres.User
	var err error
	switch {
	case req.Email != "":
		user, err = s.users.FindByEmail(r.Context(), req.Email)
	case req.Name != "":
		user, err = s.users.FindByName(r.Context(), req.Name)
	default:
		writeFailure(w, http.StatusBadRequest, "ValidationError", "MISSING_FIELDS", "name or email is required")
		return
	}
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			writeFailure(w, http.StatusNotFound, "NotFoundError", "USER_NOT_FOUND", "User doesn't exist")
			return
		}
		s.log.Error().Err(err).Msg("signin lookup failed")
		writeFailure(w, http.StatusInternalServerError, "InternalError", "INTERNAL", "Something went wrong")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeFailure(w, http.StatusBadRequest, "AuthenticationError", "BAD_CREDENTIALS", "Invalid credentials")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "InternalError", "INTERNAL", "Something went wrong")
		return
	}

	writeSuccess(w, http.StatusOK, AuthResponse{Name: user.Name, Email: user.Email, Token: token})
}
