package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore はデータベースを使わない開発用の保存先です。
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := *s.byID[id]
	return &u, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = NormalizeEmail(user.Email)
	if _, exists := s.byEmail[user.Email]; exists {
		return ErrAlreadyExists
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	s.byID[user.ID] = &stored
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *User) {
		at := at.UTC()
		u.LastLoginAt = &at
		u.LoginAttempts = 0
	})
}

func (s *MemoryStore) IncrementLoginAttempts(_ context.Context, id string) error {
	return s.update(id, func(u *User) {
		u.LoginAttempts++
	})
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id string, hash string) error {
	return s.update(id, func(u *User) {
		u.PasswordHash = hash
	})
}

// SetStatus はアカウント状態を変更します（管理画面・テスト用）。
func (s *MemoryStore) SetStatus(id string, status Status) error {
	return s.update(id, func(u *User) {
		u.Status = status
	})
}

func (s *MemoryStore) update(id string, mutate func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	mutate(u)
	u.UpdatedAt = s.now().UTC()
	return nil
}
