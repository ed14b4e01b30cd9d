package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userRowColumns() []string {
	return []string{"id", "username", "email", "full_name", "is_active", "created_at", "updated_at", "last_login_at"}
}

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("s3cret-passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-passphrase", hash)

	assert.NoError(t, h.Compare(hash, "s3cret-passphrase"))
	assert.Error(t, h.Compare(hash, "wrong-password"))
}

func TestNewPasswordHasherClampsCost(t *testing.T) {
	assert.Equal(t, 10, NewPasswordHasher(0).cost)
	assert.Equal(t, 4, NewPasswordHasher(1).cost)
	assert.Equal(t, 31, NewPasswordHasher(99).cost)
}

func TestCreateUser(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, NewPasswordHasher(4))
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice@example.com", "Alice Smith", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userRowColumns()).
			AddRow(int64(1), "", "alice@example.com", "Alice Smith", true, now, now, nil))

	user, err := store.CreateUser(context.Background(), " Alice@Example.COM ", "Alice Smith", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.False(t, user.HasUsername())
	assert.Nil(t, user.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserEmailTaken(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, NewPasswordHasher(4))

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice@example.com", "Alice", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err = store.CreateUser(context.Background(), "alice@example.com", "Alice", "hunter22")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserRequiresEmail(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, NewPasswordHasher(4))
	_, err = store.CreateUser(context.Background(), "   ", "Nobody", "hunter22")
	assert.Error(t, err)
}

func TestGetUserByID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, nil)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(userRowColumns()).
			AddRow(int64(7), "bob", "bob@example.com", "Bob", true, now, now, now))

	user, err := store.GetUserByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.True(t, user.HasUsername())
	require.NotNil(t, user.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, nil)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(userRowColumns()))

	_, err = store.GetUserByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthenticate(t *testing.T) {
	hasher := NewPasswordHasher(4)
	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)
	now := time.Now()

	authColumns := append(userRowColumns(), "password_hash")

	tests := []struct {
		name     string
		password string
		active   bool
		wantErr  error
	}{
		{name: "valid credentials", password: "correct-horse", active: true},
		{name: "wrong password", password: "battery-staple", active: true, wantErr: ErrInvalidCredentials},
		{name: "deactivated account", password: "correct-horse", active: false, wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
			require.NoError(t, err)
			defer db.Close()

			store := NewUserStore(db, hasher)

			mock.ExpectQuery(`SELECT .+ FROM users WHERE email`).
				WithArgs("alice@example.com").
				WillReturnRows(sqlmock.NewRows(authColumns).
					AddRow(int64(1), "", "alice@example.com", "Alice", tt.active, now, now, nil, hash))

			user, err := store.Authenticate(context.Background(), "alice@example.com", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), user.ID)
		})
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, NewPasswordHasher(4))

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(append(userRowColumns(), "password_hash")))

	// Unknown email and wrong password are indistinguishable to the caller
	_, err = store.Authenticate(context.Background(), "ghost@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateLastLogin(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, nil)

	mock.ExpectExec(`UPDATE users SET last_login_at`).
		WithArgs(sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.UpdateLastLogin(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateUser(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, nil)

	mock.ExpectExec(`UPDATE users SET is_active`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET is_active`).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.DeactivateUser(context.Background(), 3))
	assert.ErrorIs(t, store.DeactivateUser(context.Background(), 404), ErrUserNotFound)
}

func TestGetUserStoreQueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	store := NewUserStore(db, nil)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset"))

	_, err = store.GetUserByID(context.Background(), 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}
