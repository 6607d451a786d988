package domain

import "errors"

// Domain errors
var (
	ErrMatchNotFound      = errors.New("match not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidMatch       = errors.New("invalid match")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnauthenticated    = errors.New("not logged in")
	ErrForbidden          = errors.New("not allowed")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrConflict           = errors.New("match was modified concurrently")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrMatchNotFound) || errors.Is(err, ErrUserNotFound)
}
