package session

import "errors"

var (
	// ErrNotFound is returned when no session has the given id.
	ErrNotFound = errors.New("session not found")

	// ErrForbidden is returned when a session exists but belongs to another account.
	ErrForbidden = errors.New("session belongs to another account")

	// ErrSessionExpired is returned when a session is past its inactivity window
	// or absolute expiry. The row has been deleted by the time this is returned.
	ErrSessionExpired = errors.New("session expired")

	// ErrAccountNotFound is returned by Create for an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
