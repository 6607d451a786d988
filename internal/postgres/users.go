package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/grus-gras/internal/domain"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, name, password_hash, role, home_city, created_at`

func scanUser(row pgx.Row) (domain.UserCredentials, error) {
	var (
		creds    domain.UserCredentials
		name     *string
		homeCity *string
		role     string
	)
	err := row.Scan(
		&creds.ID,
		&creds.Username,
		&name,
		&creds.PasswordHash,
		&role,
		&homeCity,
		&creds.CreatedAt,
	)
	if err != nil {
		return domain.UserCredentials{}, err
	}
	creds.Name = deref(name)
	creds.HomeCity = deref(homeCity)
	creds.Role = domain.Role(role)
	if creds.Role == "" {
		creds.Role = domain.RoleUser
	}
	return creds, nil
}

// CreateUser stores a new user. A taken username yields domain.ErrUsernameTaken.
func (r *Repository) CreateUser(ctx context.Context, creds domain.UserCredentials) error {
	role := creds.Role
	if role == "" {
		role = domain.RoleUser
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		creds.ID,
		creds.Username,
		nullable(creds.Name),
		creds.PasswordHash,
		string(role),
		nullable(creds.HomeCity),
		creds.CreatedAt,
	)
	if err != nil {
		switch {
		case hasCode(err, uniqueViolation):
			return domain.ErrUsernameTaken
		case hasCode(err, stringTooLong):
			return domain.ErrInvalidRequest
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user and its password hash
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.UserCredentials, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	creds, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return &creds, nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	creds, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &creds.User, nil
}

// UpdateHomeCity sets a user's home city
func (r *Repository) UpdateHomeCity(ctx context.Context, userID, city string) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET home_city = $2 WHERE id = $1`, userID, nullable(city))
	if hasCode(err, stringTooLong) {
		return domain.ErrInvalidRequest
	}
	if err != nil {
		return fmt.Errorf("updating home city: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ListUsers returns every user, oldest first
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		creds, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, creds.User)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a user
func (r *Repository) DeleteUser(ctx context.Context, userID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
