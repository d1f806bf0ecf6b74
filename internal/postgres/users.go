package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is a stored account. PasswordHash is a bcrypt digest, never the
// plaintext.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user already exists")

type Users struct {
	db *sql.DB
}

func NewUsers(db *sql.DB) *Users {
	return &Users{db: db}
}

func (u *Users) Create(ctx context.Context, user User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`

	res, err := u.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", user.Email, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserExists
	}
	return nil
}

func (u *Users) FindByEmail(ctx context.Context, email string) (User, error) {
	return u.findBy(ctx, "email", email)
}

func (u *Users) FindByName(ctx context.Context, name string) (User, error) {
	return u.findBy(ctx, "name", name)
}

func (u *Users) findBy(ctx context.Context, column, value string) (User, error) {
	query := fmt.Sprintf(
		`SELECT id, name, email, password_hash, created_at FROM users WHERE %s = $1`, column)

	var user User
	err := u.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user by %s: %w", column, err)
	}
	return user, nil
}
