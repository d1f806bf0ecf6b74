// Package postgres implements the battleship session store and the user
// repository on top of Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"battleship-server/internal/battleship"
)

// Store is the durable battleship.Store. Mutations carry their guard into
// the WHERE clause so a lost race surfaces as a conflict instead of a silent
// overwrite.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (st *Store) CreateSession(ctx context.Context, s *battleship.Session) error {
	query := `
		INSERT INTO games (id, room_id, player1, player2, board1, key1, board2, key2, status, password, turn, winner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (room_id) DO NOTHING
	`

	res, err := st.db.ExecContext(ctx, query,
		s.ID, s.RoomID, s.Host, s.Guest,
		s.Board1, s.Key1, s.Board2, s.Key2,
		string(s.Status), s.Secret, s.Turn, s.Winner,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return battleship.Transient(fmt.Errorf("insert game %s: %w", s.RoomID, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return battleship.Internal(err)
	}
	if affected == 0 {
		return battleship.ErrRoomExists
	}
	return nil
}

func (st *Store) FindByRoom(ctx context.Context, roomID string) (*battleship.Session, error) {
	query := `
		SELECT id, room_id, player1, player2, board1, key1, board2, key2, status, password, turn, winner, created_at, updated_at
		FROM games WHERE room_id = $1
	`

	s, err := scanSession(st.db.QueryRowContext(ctx, query, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, battleship.ErrRoomNotFound
	}
	if err != nil {
		return nil, battleship.Transient(fmt.Errorf("load game %s: %w", roomID, err))
	}
	return s, nil
}

func (st *Store) UpdateSession(ctx context.Context, s *battleship.Session, guard battleship.UpdateGuard) error {
	query := `
		UPDATE games
		SET player1 = $2, player2 = $3, board1 = $4, key1 = $5, board2 = $6, key2 = $7,
		    status = $8, turn = $9, winner = $10, updated_at = $11
		WHERE room_id = $1
	`
	args := []any{
		s.RoomID, s.Host, s.Guest,
		s.Board1, s.Key1, s.Board2, s.Key2,
		string(s.Status), s.Turn, s.Winner, s.UpdatedAt,
	}

	if guard.Status != "" {
		args = append(args, string(guard.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if guard.GuestEmpty {
		query += " AND player2 = ''"
	}

	res, err := st.db.ExecContext(ctx, query, args...)
	if err != nil {
		return battleship.Transient(fmt.Errorf("update game %s: %w", s.RoomID, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return battleship.Internal(err)
	}
	if affected == 0 {
		// Either the room vanished or a guard condition no longer holds.
		if _, findErr := st.FindByRoom(ctx, s.RoomID); findErr != nil {
			return findErr
		}
		return battleship.ErrSessionConflicted
	}
	return nil
}

func (st *Store) DeleteSession(ctx context.Context, roomID string) error {
	res, err := st.db.ExecContext(ctx, `DELETE FROM games WHERE room_id = $1`, roomID)
	if err != nil {
		return battleship.Transient(fmt.Errorf("delete game %s: %w", roomID, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return battleship.Internal(err)
	}
	if affected == 0 {
		return battleship.ErrRoomNotFound
	}
	return nil
}

func (st *Store) ListSessions(ctx context.Context) ([]*battleship.Session, error) {
	query := `
		SELECT id, room_id, player1, player2, board1, key1, board2, key2, status, password, turn, winner, created_at, updated_at
		FROM games ORDER BY created_at DESC
	`

	rows, err := st.db.QueryContext(ctx, query)
	if err != nil {
		return nil, battleship.Transient(fmt.Errorf("list games: %w", err))
	}
	defer rows.Close()

	var sessions []*battleship.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, battleship.Internal(fmt.Errorf("scan game row: %w", err))
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, battleship.Transient(fmt.Errorf("iterate game rows: %w", err))
	}
	return sessions, nil
}

// CleanupCompleted deletes completed games older than the given age and
// returns how many were removed.
func (st *Store) CleanupCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	res, err := st.db.ExecContext(ctx,
		`DELETE FROM games WHERE status = $1 AND updated_at < $2`,
		string(battleship.StatusCompleted), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup old games: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check cleanup result: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*battleship.Session, error) {
	var s battleship.Session
	var status string
	err := row.Scan(
		&s.ID, &s.RoomID, &s.Host, &s.Guest,
		&s.Board1, &s.Key1, &s.Board2, &s.Key2,
		&status, &s.Secret, &s.Turn, &s.Winner,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = battleship.Status(status)
	return &s, nil
}
