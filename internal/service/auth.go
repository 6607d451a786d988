package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/metrics"
	"github.com/grus-gras/internal/password"
)

// UserRepository is the account storage used by AuthService
type UserRepository interface {
	CreateUser(ctx context.Context, creds domain.UserCredentials) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserCredentials, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpdateHomeCity(ctx context.Context, userID, city string) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// AuthService registers and authenticates users
type AuthService struct {
	repo    UserRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(repo UserRepository, m *metrics.Metrics, logger *slog.Logger) *AuthService {
	return &AuthService{
		repo:    repo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Register creates an account with the user role
func (s *AuthService) Register(ctx context.Context, username, pass, name string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" ||
		domain.TooLong(username, domain.MaxUsernameLength) ||
		domain.TooLong(name, domain.MaxTextLength) {
		s.metrics.RecordAuth("register", false)
		return nil, domain.ErrInvalidRequest
	}

	hash, err := password.Hash(pass)
	if err != nil {
		s.metrics.RecordAuth("register", false)
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	creds := domain.UserCredentials{
		User: domain.User{
			ID:        uuid.NewString(),
			Username:  username,
			Name:      strings.TrimSpace(name),
			Role:      domain.RoleUser,
			CreatedAt: s.now(),
		},
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(ctx, creds); err != nil {
		s.metrics.RecordAuth("register", false)
		if errors.Is(err, domain.ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.metrics.RecordAuth("register", true)
	s.logger.Info("user registered", "user_id", creds.ID, "username", username)
	u := creds.User
	return &u, nil
}

// Login checks a username and password. Unknown users and wrong passwords
// both yield domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, pass string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		s.metrics.RecordAuth("login", false)
		return nil, domain.ErrInvalidRequest
	}

	creds, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.metrics.RecordAuth("login", false)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !password.Verify(creds.PasswordHash, pass) {
		s.metrics.RecordAuth("login", false)
		return nil, domain.ErrInvalidCredentials
	}

	s.metrics.RecordAuth("login", true)
	u := creds.User
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	return &u, nil
}

// ChangeHomeCity stores a new home city and returns the updated user
func (s *AuthService) ChangeHomeCity(ctx context.Context, userID, city string) (*domain.User, error) {
	city = strings.TrimSpace(city)
	if city == "" || domain.TooLong(city, domain.MaxTextLength) {
		return nil, domain.ErrInvalidRequest
	}
	if err := s.repo.UpdateHomeCity(ctx, userID, city); err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, userID)
}

// ListUsers returns every account. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, caller *domain.User) ([]domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// DeleteUser removes an account. Admin only; admins cannot delete themselves.
func (s *AuthService) DeleteUser(ctx context.Context, userID string, caller *domain.User) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if userID == caller.ID {
		return domain.ErrInvalidRequest
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", userID, "deleted_by", caller.ID)
	return nil
}

func requireAdmin(caller *domain.User) error {
	if caller == nil {
		return domain.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}
