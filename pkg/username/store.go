package username

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrAlreadySet is returned when assigning a username to a user that has
// one. Usernames are immutable once set.
var ErrAlreadySet = errors.New("username already set")

// ErrUserNotFound is returned when assigning a username to an unknown user
var ErrUserNotFound = errors.New("user not found")

// PostgresStore implements Store over the users table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// UsernameTaken reports whether the username is already assigned
func (s *PostgresStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return taken, nil
}

// AssignUsername writes the username onto the user row. The WHERE clause
// refuses rows that already carry a username.
func (s *PostgresStore) AssignUsername(ctx context.Context, userID int64, username string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET username = $1, updated_at = NOW() WHERE id = $2 AND username IS NULL",
		username, userID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return &uniqueViolationError{username: username, cause: err}
		}
		return fmt.Errorf("failed to assign username: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check user existence: %w", err)
		}
		if !exists {
			return ErrUserNotFound
		}
		return ErrAlreadySet
	}

	return nil
}

// uniqueViolationError wraps the database unique-constraint error so the
// allocator can recognize a lost race
type uniqueViolationError struct {
	username string
	cause    error
}

func (e *uniqueViolationError) Error() string {
	return fmt.Sprintf("username %q taken concurrently: %v", e.username, e.cause)
}

func (e *uniqueViolationError) Unwrap() error { return e.cause }

func (e *uniqueViolationError) UniqueViolation() bool { return true }
