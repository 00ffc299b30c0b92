package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sessiond/cmd/identity/ids"
	"sessiond/cmd/internal/events"
	"sessiond/cmd/internal/events/eventstest"
	"sessiond/cmd/internal/pgtest"
)

func seedAccount(t *testing.T, pool *pgxpool.Pool, email string) string {
	t.Helper()

	id, err := ids.NewULID(time.Now())
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	_, err = pool.Exec(context.Background(),
		`INSERT INTO accounts (id, email, email_norm, display_name, password_hash)
		 VALUES ($1, $2, $2, 'Test', 'x')`,
		id, email,
	)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func TestPostgresStore_ConcurrentCreateHonorsLimit(t *testing.T) {
	pool, schema := pgtest.Open(t)

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	rec := &eventstest.Recorder{}
	svc, err := NewService(DefaultConfig(), st, rec, quietLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	acct := seedAccount(t, pool, "pg-limit@example.com")

	const k = 12
	var wg sync.WaitGroup
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(ctx, acct, ParseDevice("curl/8.0"), "198.51.100.1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Create: %v", err)
	}

	rows, err := st.ListByAccount(ctx, acct)
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	if got := len(rec.OfKind(events.KindSessionEvicted)); got != k-5 {
		t.Fatalf("expected %d evictions, got %d", k-5, got)
	}
}

func TestPostgresStore_OwnershipAndSweep(t *testing.T) {
	pool, schema := pgtest.Open(t)

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := seedAccount(t, pool, "pg-a@example.com")
	b := seedAccount(t, pool, "pg-b@example.com")

	now := time.Now().UTC().Truncate(time.Microsecond)
	live := Session{ID: "live", AccountID: a, Device: Device{Class: DeviceDesktop}, CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour)}
	if _, err := st.Create(ctx, live, 5, now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := st.Create(ctx, Session{ID: "ghost", AccountID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Device: Device{Class: DeviceUnknown}, CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour)}, 5, now); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	if err := st.Delete(ctx, "live", b); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := st.Delete(ctx, "nope", a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	later := now.Add(time.Minute)
	if err := st.Touch(ctx, "live", later); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := st.Touch(ctx, "live", now); err != nil {
		t.Fatalf("Touch backwards: %v", err)
	}
	got, err := st.Get(ctx, "live")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastActivityAt.Equal(later) {
		t.Fatalf("last activity moved backwards: %v", got.LastActivityAt)
	}

	n, err := st.DeleteExpired(ctx, now.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}
	if _, err := st.Get(ctx, "live"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected swept row gone, got %v", err)
	}
}
