package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/password"
)

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, testLogger())
	ctx := context.Background()

	u, err := svc.Register(ctx, "  alice ", "secret123", "Alice")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if u.Username != "alice" || u.Role != domain.RoleUser || u.ID == "" {
		t.Errorf("unexpected user: %+v", u)
	}

	stored := repo.users[u.ID]
	if strings.Contains(stored.PasswordHash, "secret123") {
		t.Error("expected password not stored in clear text")
	}
	if !password.Verify(stored.PasswordHash, "secret123") {
		t.Error("expected stored hash to verify")
	}
	if password.Verify(stored.PasswordHash, "wrong") {
		t.Error("expected wrong password not to verify")
	}

	logged, err := svc.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if logged.ID != u.ID || logged.Name != "Alice" {
		t.Errorf("expected same user back, got %+v", logged)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo(), nil, testLogger())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "a", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "b", ""); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterRejectsInvalidNames(t *testing.T) {
	tests := []struct {
		name     string
		username string
		display  string
	}{
		{"blank username", "   ", ""},
		{"long username", strings.Repeat("u", domain.MaxUsernameLength+1), ""},
		{"long display name", "alice", strings.Repeat("n", domain.MaxTextLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			svc := NewAuthService(repo, nil, testLogger())
			if _, err := svc.Register(context.Background(), tt.username, "pw", tt.display); !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	svc := NewAuthService(newFakeUserRepo(), nil, testLogger())
	if _, err := svc.Register(context.Background(), strings.Repeat("ö", domain.MaxUsernameLength), "pw", ""); err != nil {
		t.Errorf("expected username at the limit to register, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, testLogger())
	ctx := context.Background()
	svc.Register(ctx, "alice", "secret123", "")

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"wrong password", "alice", "secret", domain.ErrInvalidCredentials},
		{"unknown user", "mallory", "secret123", domain.ErrInvalidCredentials},
		{"blank username", " ", "secret123", domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoginStorageError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.err = errBoom
	svc := NewAuthService(repo, nil, testLogger())

	_, err := svc.Login(context.Background(), "alice", "pw")
	if !errors.Is(err, errBoom) || errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestChangeHomeCity(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo(), nil, testLogger())
	ctx := context.Background()
	u, _ := svc.Register(ctx, "alice", "pw", "")

	updated, err := svc.ChangeHomeCity(ctx, u.ID, " Lerum ")
	if err != nil {
		t.Fatalf("ChangeHomeCity failed: %v", err)
	}
	if updated.HomeCity != "Lerum" {
		t.Errorf("expected Lerum, got %q", updated.HomeCity)
	}

	if _, err := svc.ChangeHomeCity(ctx, u.ID, ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.ChangeHomeCity(ctx, u.ID, strings.Repeat("x", domain.MaxTextLength+1)); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for a long city, got %v", err)
	}
	if _, err := svc.ChangeHomeCity(ctx, "missing", "Lerum"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminUserManagement(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, testLogger())
	ctx := context.Background()
	u, _ := svc.Register(ctx, "alice", "pw", "")

	if _, err := svc.ListUsers(ctx, u); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ListUsers(ctx, nil); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}

	users, err := svc.ListUsers(ctx, admin)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}

	if err := svc.DeleteUser(ctx, u.ID, u); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteUser(ctx, admin.ID, admin); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected admin self-delete refused, got %v", err)
	}
	if err := svc.DeleteUser(ctx, u.ID, admin); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if len(repo.users) != 0 {
		t.Error("expected user removed")
	}
}
