package domain

import "errors"

// Domain errors
var (
	ErrRiddleNotFound     = errors.New("riddle not found")
	ErrNoRiddlesAvailable = errors.New("no riddles available for the given criteria")
	ErrProgressNotFound   = errors.New("player progress not found")
	ErrProfileNotFound    = errors.New("user profile not found")
	ErrProfileExists      = errors.New("user profile already exists")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrVersionConflict    = errors.New("progress record was modified concurrently")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRiddleNotFound) ||
		errors.Is(err, ErrProgressNotFound) ||
		errors.Is(err, ErrProfileNotFound)
}
