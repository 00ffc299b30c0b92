// Package tokens mints and verifies access and renewal tokens.
//
// Both token kinds carry the session id ("sid"); issuing without one fails.
// The wire format is chosen once at startup: JWT (HS256) or PASETO v4.public.
package tokens
