package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrUserNotFound indicates no user matches the given identifier
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken indicates a registration attempt with an email that
	// already has an account.
	ErrEmailTaken = errors.New("email is already registered")

	// ErrInvalidCredentials indicates a failed login. The same error is
	// returned for an unknown email, a wrong password, and a deactivated
	// account so that login responses do not reveal which one failed.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// UserStore manages user accounts in PostgreSQL
type UserStore struct {
	db     *sql.DB
	hasher *PasswordHasher
	now    func() time.Time
}

// NewUserStore creates a new UserStore
func NewUserStore(db *sql.DB, hasher *PasswordHasher) *UserStore {
	if hasher == nil {
		hasher = NewPasswordHasher(0)
	}
	return &UserStore{db: db, hasher: hasher, now: time.Now}
}

const userColumns = `id, COALESCE(username, ''), email, COALESCE(full_name, ''), is_active, created_at, updated_at, last_login_at`

// CreateUser registers a new account. The email is normalized to lowercase
// before storage so lookups are case-insensitive.
func (s *UserStore) CreateUser(ctx context.Context, email, fullName, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user User
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		email, fullName, hash,
	).Scan(&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// GetUserByID returns the user with the given id
func (s *UserStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail returns the user with the given email
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetUserByUsername returns the user with the given username
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *UserStore) getUser(ctx context.Context, query string, arg interface{}) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Authenticate verifies an email and password pair and returns the matching
// active user. All failure modes return ErrInvalidCredentials.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user User
	var passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`, password_hash FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
		&passwordHash)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.hasher.Compare(passwordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// UpdateLastLogin records a successful login time for the user
func (s *UserStore) UpdateLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $1 WHERE id = $2`,
		s.now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// DeactivateUser disables an account without deleting its rows
func (s *UserStore) DeactivateUser(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
