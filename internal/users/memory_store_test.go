package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourusername/crm-console/internal/identity"
)

func TestMemoryStoreCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u := &User{Email: " Alice@Example.com ", Name: "Alice", PasswordHash: "h", Role: identity.RoleUser, Status: StatusActive}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" || u.Email != "alice@example.com" {
		t.Fatalf("unexpected created user: %+v", u)
	}

	got, err := s.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("GetByEmail returned %q, want %q", got.ID, u.ID)
	}

	if err := s.Create(ctx, &User{Email: "alice@example.com"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate Create = %v, want ErrAlreadyExists", err)
	}
	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := &User{Email: "bob@example.com", Role: identity.RoleUser, Status: StatusActive}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := s.GetByID(ctx, u.ID)
	got.Role = identity.RoleAdmin

	again, _ := s.GetByID(ctx, u.ID)
	if again.Role != identity.RoleUser {
		t.Fatal("mutating a returned user must not change the stored record")
	}
}

func TestMemoryStoreLoginBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := &User{Email: "carol@example.com", Status: StatusActive}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementLoginAttempts(ctx, u.ID); err != nil {
			t.Fatalf("IncrementLoginAttempts: %v", err)
		}
	}
	got, _ := s.GetByID(ctx, u.ID)
	if got.LoginAttempts != 3 {
		t.Fatalf("LoginAttempts = %d, want 3", got.LoginAttempts)
	}

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.RecordLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	got, _ = s.GetByID(ctx, u.ID)
	if got.LoginAttempts != 0 || got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Fatalf("unexpected state after RecordLogin: %+v", got)
	}

	if err := s.UpdatePassword(ctx, u.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	got, _ = s.GetByID(ctx, u.ID)
	if got.PasswordHash != "new-hash" {
		t.Fatalf("PasswordHash = %q", got.PasswordHash)
	}

	if err := s.SetStatus(u.ID, StatusSuspended); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ = s.GetByID(ctx, u.ID)
	if got.Active() {
		t.Fatal("suspended user must not be active")
	}

	if err := s.UpdatePassword(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdatePassword(missing) = %v, want ErrNotFound", err)
	}
}
