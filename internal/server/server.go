package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"battleship-server/internal/battleship"
	"battleship-server/internal/database"
	"battleship-server/internal/postgres"
)

type Config struct {
	Port        int           `env:"PORT" envDefault:"8080"`
	DatabaseURL string        `env:"BATTLESHIP_DB_URL"`
	JWTSecret   string        `env:"JWT_SECRET" envDefault:"battleArena"`
	GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"120s"`
	RateLimit   int           `env:"RATE_LIMIT" envDefault:"20"`
}

type Server struct {
	cfg         Config
	log         zerolog.Logger
	db          database.Service
	store       battleship.Store
	users       UserStore
	machine     *battleship.Machine
	presence    *PresenceTracker
	grace       *GraceCoordinator
	connections *ConnectionManager
	rateLimiter *RateLimiter
	pgStore     *postgres.Store
}

func NewServer() (*Server, *http.Server) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(fmt.Sprintf("parse config: %v", err))
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	srv := newServerWithConfig(cfg, log)

	// Run background cleanup only when games are durable.
	if srv.pgStore != nil {
		go srv.cleanupTask()
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return srv, httpServer
}

func newServerWithConfig(cfg Config, log zerolog.Logger) *Server {
	srv := &Server{
		cfg:         cfg,
		log:         log,
		rateLimiter: NewRateLimiter(cfg.RateLimit, time.Second),
	}

	if cfg.DatabaseURL != "" {
		srv.db = database.New()
		if err := runMigrations(srv.db.DB()); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		srv.pgStore = postgres.NewStore(srv.db.DB())
		srv.store = srv.pgStore
		srv.users = postgres.NewUsers(srv.db.DB())
	} else {
		log.Warn().Msg("BATTLESHIP_DB_URL not set, sessions are in-memory only")
		srv.store = battleship.NewMemStore()
		srv.users = newMemUsers()
	}

	srv.machine = battleship.NewMachine(srv.store, log)
	srv.presence = NewPresenceTracker()
	srv.connections = NewConnectionManager(log)
	srv.grace = NewGraceCoordinator(srv.machine, srv.presence, srv.connections, cfg.GracePeriod, log)

	return srv
}

func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "./db/migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// cleanupTask deletes completed games older than 24 hours, once an hour.
func (s *Server) cleanupTask() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		deleted, err := s.pgStore.CleanupCompleted(context.Background(), 24*time.Hour)
		if err != nil {
			s.log.Warn().Err(err).Msg("cleanup task failed")
			continue
		}
		if deleted > 0 {
			s.log.Info().Int("deleted", deleted).Msg("cleanup task removed old games")
		}
	}
}

// Shutdown stops timers, closes sockets, and releases the database.
func (s *Server) Shutdown(ctx context.Context) error {
	s.grace.Stop()
	s.connections.CloseAll("Server shutting down")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}
	return nil
}
