// Package users はログイン資格情報を持つユーザーレコードの保存先を提供します。
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yourusername/crm-console/internal/identity"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// Status はアカウントの状態です。
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// User はユーザーの資格情報レコードです。PasswordHash は JSON に出しません。
type User struct {
	ID            string        `db:"id" json:"id"`
	Email         string        `db:"email" json:"email"`
	Name          string        `db:"name" json:"name"`
	PasswordHash  string        `db:"password_hash" json:"-"`
	Role          identity.Role `db:"role" json:"role"`
	Status        Status        `db:"status" json:"status"`
	AvatarURL     string        `db:"avatar_url" json:"avatarUrl"`
	LoginAttempts int           `db:"login_attempts" json:"loginAttempts"`
	LastLoginAt   *time.Time    `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`
}

// Identity はトークンに載せる主体情報を返します。
func (u *User) Identity() identity.Identity {
	return identity.Identity{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
	}
}

// Active はログイン可能な状態かを返します。
func (u *User) Active() bool {
	return u.Status == StatusActive
}

// NormalizeEmail は比較用にメールアドレスを正規化します。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store はユーザーレコードの保存先です。
type Store interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	// RecordLogin は最終ログイン時刻を更新し、失敗回数を 0 に戻します。
	RecordLogin(ctx context.Context, id string, at time.Time) error
	IncrementLoginAttempts(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, hash string) error
}
