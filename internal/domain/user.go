package domain

import "time"

// Role is a user's permission level
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an authenticated account. ID is the only ownership key.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	HomeCity  string    `json:"homeCity,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// IsAdmin reports whether u has the admin role. A nil user is not an admin.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName is the name shown on rosters, falling back to the username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// AsPlayer returns the roster entry for u.
func (u *User) AsPlayer() Player {
	return Player{ID: u.ID, Name: u.DisplayName()}
}

// UserCredentials is a user row together with its stored password hash.
// It never leaves the service layer.
type UserCredentials struct {
	User
	PasswordHash string
}
