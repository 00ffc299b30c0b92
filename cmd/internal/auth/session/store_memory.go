package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same semantics as PostgresStore.
// A single mutex plays the role of the account row lock.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Session)}
}

func (m *MemoryStore) Create(ctx context.Context, s Session, limit int, staleBefore time.Time) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var live []Session
	for id, row := range m.rows {
		if row.AccountID != s.AccountID {
			continue
		}
		if !row.ExpiresAt.After(s.CreatedAt) || row.LastActivityAt.Before(staleBefore) {
			delete(m.rows, id)
			continue
		}
		live = append(live, row)
	}
	sortOldestFirst(live)

	var evicted []Session
	if overflow := len(live) - limit + 1; overflow > 0 {
		evicted = append(evicted, live[:overflow]...)
		for _, row := range evicted {
			delete(m.rows, row.ID)
		}
	}

	m.rows[s.ID] = s
	return evicted, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return row, nil
}

func (m *MemoryStore) Touch(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if now.After(row.LastActivityAt) {
		row.LastActivityAt = now
		m.rows[id] = row
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if row.AccountID != accountID {
		return ErrForbidden
	}
	delete(m.rows, id)
	return nil
}

func (m *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.rows, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteAllExcept(ctx context.Context, accountID, keepID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, row := range m.rows {
		if row.AccountID == accountID && id != keepID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListByAccount(ctx context.Context, accountID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Session
	for _, row := range m.rows {
		if row.AccountID == accountID {
			out = append(out, row)
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, row := range m.rows {
		if !row.ExpiresAt.After(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func sortOldestFirst(rows []Session) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}
