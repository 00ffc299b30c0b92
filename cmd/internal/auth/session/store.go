package session

import (
	"context"
	"time"
)

// Store abstracts persistence for session rows.
type Store interface {
	// Create inserts s while holding the account's session set exclusively.
	// It first deletes the account's rows that are past expiry or last active
	// before staleBefore, then deletes the oldest rows (by creation time) until
	// one slot under limit is free. Rows deleted for the limit are returned.
	Create(ctx context.Context, s Session, limit int, staleBefore time.Time) (evicted []Session, err error)

	// Get loads a session by id.
	Get(ctx context.Context, id string) (Session, error)

	// Touch moves last activity forward to now. It never moves it back.
	Touch(ctx context.Context, id string, now time.Time) error

	// Delete removes id only if accountID owns it: ErrNotFound when missing,
	// ErrForbidden when owned by someone else.
	Delete(ctx context.Context, id, accountID string) error

	// DeleteByID removes id regardless of owner. Missing rows are not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteAllExcept removes every session of accountID other than keepID.
	DeleteAllExcept(ctx context.Context, accountID, keepID string) (int, error)

	// ListByAccount returns accountID's sessions, oldest first.
	ListByAccount(ctx context.Context, accountID string) ([]Session, error)

	// DeleteExpired removes every row past absolute expiry at now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
