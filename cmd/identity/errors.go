package identity

import (
	"errors"
	"strings"
)

// OpError carries the failing operation and one of the sentinel kinds.
// Msg is safe to show to a client; it never contains credentials.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string { return describe(e.Op, e.Kind, e.Msg) }

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError names the unique field ("email", "id") that collided.
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string { return describe(e.Op, ErrConflict, e.Field) }

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing account row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string { return describe(e.Op, ErrNotFound, e.Resource) }

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// describe renders "op: kind[: detail]".
func describe(op string, kind error, detail string) string {
	var b strings.Builder
	b.WriteString(op)
	b.WriteString(": ")
	b.WriteString(kind.Error())
	if detail != "" {
		b.WriteString(": ")
		b.WriteString(detail)
	}
	return b.String()
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// IsConflict reports a duplicate email or id.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
