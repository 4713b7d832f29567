package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/crm-console/internal/identity"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgresStore(sqlx.NewDb(db, "pgx"))
	require.NoError(t, err)
	return store, mock
}

const (
	testUserID    = "7f1c3a52-9d4e-4b8a-a1f0-2c6e5d9b8a10"
	missingUserID = "00000000-0000-4000-8000-000000000000"
)

var userRowColumns = []string{
	"id", "email", "name", "password_hash", "role", "status", "avatar_url",
	"login_attempts", "last_login_at", "created_at", "updated_at",
}

func TestPostgresStore_GetByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(testUserID, "alice@example.com", "Alice", "hash", "manager", "active", "", 2, nil, now, now))

	u, err := store.GetByEmail(context.Background(), " Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, testUserID, u.ID)
	assert.Equal(t, identity.RoleManager, u.Role)
	assert.Equal(t, StatusActive, u.Status)
	assert.Equal(t, 2, u.LoginAttempts)
	assert.Nil(t, u.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(missingUserID).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := store.GetByID(context.Background(), missingUserID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "bob@example.com", "Bob", "hash", "user", "active", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &User{Email: "Bob@example.com", Name: "Bob", PasswordHash: "hash", Role: identity.RoleUser, Status: StatusActive}
	require.NoError(t, store.Create(context.Background(), u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, now, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Create(context.Background(), &User{Email: "dup@example.com", Role: identity.RoleUser, Status: StatusActive})
	assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordLogin(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE users SET last_login_at = \$2, login_attempts = 0`).
		WithArgs(testUserID, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RecordLogin(context.Background(), testUserID, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdatePasswordMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs(missingUserID, "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdatePassword(context.Background(), missingUserID, "hash")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementLoginAttempts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE users SET login_attempts = login_attempts \+ 1`).
		WithArgs(testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.IncrementLoginAttempts(context.Background(), testUserID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MalformedIDIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdatePassword(ctx, "abc", "hash"), ErrNotFound)
	assert.ErrorIs(t, store.RecordLogin(ctx, "abc", time.Now()), ErrNotFound)
	assert.ErrorIs(t, store.IncrementLoginAttempts(ctx, "abc"), ErrNotFound)
	// 問い合わせは発行されない
	assert.NoError(t, mock.ExpectationsWereMet())
}
