package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a Account) error {
	const op = "identity.CreateAccount"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[a.EmailNorm]; ok {
		return ConflictError{Op: op, Field: "email"}
	}
	if _, ok := s.byID[a.ID]; ok {
		return ConflictError{Op: op, Field: "id"}
	}
	s.byID[a.ID] = a
	s.byEmail[a.EmailNorm] = a.ID
	return nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, emailNorm string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailNorm]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.GetByEmail", Resource: "account"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.GetByID", Resource: "account"}
	}
	return a, nil
}

func (s *MemoryStore) TouchActivity(ctx context.Context, id string, now time.Time) error {
	return s.update(ctx, "identity.TouchActivity", id, func(a *Account) {
		ts := now
		a.LastActivityAt = &ts
	})
}

func (s *MemoryStore) SetRole(ctx context.Context, id string, role Role, now time.Time) error {
	if !role.Valid() {
		return invalid("identity.SetRole", "unknown role")
	}
	return s.update(ctx, "identity.SetRole", id, func(a *Account) {
		a.Role = role
		a.UpdatedAt = now
	})
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	return s.update(ctx, "identity.UpdatePasswordHash", id, func(a *Account) {
		a.PasswordHash = hash
		a.UpdatedAt = now
	})
}

func (s *MemoryStore) update(ctx context.Context, op, id string, fn func(*Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	fn(&a)
	s.byID[id] = a
	return nil
}
