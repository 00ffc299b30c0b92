package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sessiond/cmd/internal/events"
	"sessiond/cmd/internal/events/eventstest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *eventstest.Recorder, *clock) {
	t.Helper()

	st := NewMemoryStore()
	rec := &eventstest.Recorder{}
	clk := newClock()

	svc, err := NewService(DefaultConfig(), st, rec, quietLogger(), WithServiceClock(clk.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, st, rec, clk
}

var desktop = Device{Browser: "Chrome 120", OS: "Windows", Class: DeviceDesktop}

func TestService_CreateEvictsOldestBeyondLimit(t *testing.T) {
	svc, st, rec, clk := newTestService(t)
	ctx := context.Background()

	var created []Session
	for i := 0; i < 6; i++ {
		s, err := svc.Create(ctx, "acct-1", desktop, "203.0.113.7")
		if err != nil {
			t.Fatalf("Create #%d: %v", i+1, err)
		}
		created = append(created, s)
		clk.Advance(time.Second)
	}

	if got := st.Len(); got != 5 {
		t.Fatalf("expected 5 sessions, got %d", got)
	}
	if _, err := st.Get(ctx, created[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected oldest session evicted, got %v", err)
	}

	evicted := rec.OfKind(events.KindSessionEvicted)
	if len(evicted) != 1 || evicted[0].SessionID != created[0].ID {
		t.Fatalf("expected one eviction of %s, got %+v", created[0].ID, evicted)
	}
	if got := len(rec.OfKind(events.KindSessionCreated)); got != 6 {
		t.Fatalf("expected 6 session_created events, got %d", got)
	}
}

func TestService_ConcurrentCreateNeverExceedsLimit(t *testing.T) {
	svc, st, rec, _ := newTestService(t)
	ctx := context.Background()

	const k = 20
	var wg sync.WaitGroup
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(ctx, "acct-1", desktop, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Create: %v", err)
	}

	rows, err := st.ListByAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 live sessions, got %d", len(rows))
	}
	if got := len(rec.OfKind(events.KindSessionEvicted)); got != k-5 {
		t.Fatalf("expected %d evictions, got %d", k-5, got)
	}
}

func TestService_LimitIsPerAccount(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, "acct-a", desktop, ""); err != nil {
			t.Fatalf("Create a: %v", err)
		}
		if _, err := svc.Create(ctx, "acct-b", desktop, ""); err != nil {
			t.Fatalf("Create b: %v", err)
		}
	}
	if got := st.Len(); got != 10 {
		t.Fatalf("expected 10 sessions, got %d", got)
	}
}

func TestService_CreatePurgesStaleWithoutEvictionEvents(t *testing.T) {
	svc, st, rec, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, "acct-1", desktop, ""); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	clk.Advance(31 * time.Minute)

	if _, err := svc.Create(ctx, "acct-1", desktop, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := st.Len(); got != 1 {
		t.Fatalf("expected stale sessions purged, got %d rows", got)
	}
	if got := len(rec.OfKind(events.KindSessionEvicted)); got != 0 {
		t.Fatalf("expected no eviction events, got %d", got)
	}
}

func TestService_GetEnforcesOwnership(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "acct-a", desktop, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Get(ctx, s.ID, "acct-a"); err != nil {
		t.Fatalf("Get owner: %v", err)
	}
	if _, err := svc.Get(ctx, s.ID, "acct-b"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing", "acct-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_GetInfoExpiresLazily(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "acct-1", desktop, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clk.Advance(10 * time.Minute)
	info, err := svc.GetInfo(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Expired || info.TimeRemaining != 20*time.Minute {
		t.Fatalf("unexpected info: %+v", info)
	}

	clk.Advance(20*time.Minute + time.Second)
	info, err = svc.GetInfo(ctx, s.ID)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if !info.Expired {
		t.Fatalf("expected Expired=true")
	}

	if _, err := svc.GetInfo(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after lazy delete, got %v", err)
	}
}

func TestService_TouchExtendsInactivityWindow(t *testing.T) {
	svc, _, rec, clk := newTestService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "acct-1", desktop, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		clk.Advance(20 * time.Minute)
		if _, err := svc.Touch(ctx, s.ID); err != nil {
			t.Fatalf("Touch #%d: %v", i+1, err)
		}
	}
	if _, err := svc.Touch(ctx, s.ID); err != nil {
		t.Fatalf("repeated Touch: %v", err)
	}
	if got := len(rec.OfKind(events.KindActivityUpdated)); got != 4 {
		t.Fatalf("expected 4 activity events, got %d", got)
	}

	clk.Advance(31 * time.Minute)
	if _, err := svc.Touch(ctx, s.ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestService_AbsoluteExpiry(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "acct-1", desktop, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for elapsed := time.Duration(0); elapsed < 7*24*time.Hour; elapsed += 20 * time.Minute {
		clk.Advance(20 * time.Minute)
		if _, err := svc.Touch(ctx, s.ID); err != nil {
			break
		}
	}
	if _, err := svc.Authenticate(ctx, s.ID, "acct-1"); !errors.Is(err, ErrSessionExpired) && !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session gone after ttl, got %v", err)
	}
}

func TestService_TerminateAndAuthenticate(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, "acct-a", desktop, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Terminate(ctx, s.ID, "acct-b"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, s.ID, "acct-a"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := svc.Terminate(ctx, s.ID, "acct-a"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, s.ID, "acct-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after terminate, got %v", err)
	}
	if err := svc.Terminate(ctx, s.ID, "acct-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second terminate, got %v", err)
	}
	if got := len(rec.OfKind(events.KindSessionTerminated)); got != 1 {
		t.Fatalf("expected 1 terminated event, got %d", got)
	}
}

func TestService_TerminateAllExcept(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	ctx := context.Background()

	var keep Session
	for i := 0; i < 5; i++ {
		s, err := svc.Create(ctx, "acct-1", desktop, "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if i == 2 {
			keep = s
		}
	}
	other, err := svc.Create(ctx, "acct-2", desktop, "")
	if err != nil {
		t.Fatalf("Create other: %v", err)
	}

	n, err := svc.TerminateAllExcept(ctx, "acct-1", keep.ID)
	if err != nil {
		t.Fatalf("TerminateAllExcept: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 terminated, got %d", n)
	}

	list, err := svc.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Fatalf("expected only kept session, got %+v", list)
	}
	if _, err := svc.Get(ctx, other.ID, "acct-2"); err != nil {
		t.Fatalf("other account affected: %v", err)
	}

	bulk := rec.OfKind(events.KindSessionsBulkTerminated)
	if len(bulk) != 1 || bulk[0].Count != 4 || bulk[0].SessionID != keep.ID {
		t.Fatalf("unexpected bulk events: %+v", bulk)
	}

	n, err = svc.TerminateAllExcept(ctx, "acct-1", keep.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 on repeat, got %d, %v", n, err)
	}
}

func TestService_ListSkipsExpired(t *testing.T) {
	svc, st, _, clk := newTestService(t)
	ctx := context.Background()

	old, err := svc.Create(ctx, "acct-1", desktop, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clk.Advance(20 * time.Minute)
	fresh, err := svc.Create(ctx, "acct-1", desktop, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clk.Advance(15 * time.Minute)

	list, err := svc.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Fatalf("expected only fresh session, got %+v", list)
	}
	if _, err := st.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired row deleted, got %v", err)
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerAccount = 0
	if _, err := NewService(cfg, NewMemoryStore(), nil, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
