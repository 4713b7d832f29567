package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// PostgreSQL の一意制約違反
const uniqueViolation = "23505"

const userColumns = `id, email, name, password_hash, role, status, avatar_url,
	login_attempts, last_login_at, created_at, updated_at`

// PostgresStore は users テーブルを使う Store 実装です。
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore は PostgresStore を作成します。
func NewPostgresStore(db *sqlx.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*User, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	const q = `
INSERT INTO users (id, email, name, password_hash, role, status, avatar_url)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`
	err := s.db.QueryRowxContext(ctx, q,
		user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role), string(user.Status), user.AvatarURL,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE users SET last_login_at = $2, login_attempts = 0, updated_at = NOW() WHERE id = $1`
	return s.execOne(ctx, q, id, at.UTC())
}

func (s *PostgresStore) IncrementLoginAttempts(ctx context.Context, id string) error {
	const q = `UPDATE users SET login_attempts = login_attempts + 1, updated_at = NOW() WHERE id = $1`
	return s.execOne(ctx, q, id)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id string, hash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return s.execOne(ctx, q, id, hash)
}

// execOne は先頭の引数を id として 1 行だけ更新します。
func (s *PostgresStore) execOne(ctx context.Context, query string, id string, args ...any) error {
	if !validID(id) {
		return ErrNotFound
	}
	args = append([]any{id}, args...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// validID は id 列が UUID 型のため、形式外の値を問い合わせ前に除外します。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
