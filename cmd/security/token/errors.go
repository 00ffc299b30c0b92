package token

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("hash key missing")
	ErrHMACKeyTooShort = errors.New("hash key too short")
)
