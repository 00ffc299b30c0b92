package tokens

import "errors"

var (
	// ErrInvalid covers bad signatures, malformed tokens, wrong issuer and wrong type.
	ErrInvalid = errors.New("invalid token")

	// ErrExpired is returned for a well-formed, correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")

	// ErrMissingSession is returned when issuing a token without a session id.
	ErrMissingSession = errors.New("token requires a session id")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid token config")
)
