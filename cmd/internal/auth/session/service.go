package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sessiond/cmd/identity/ids"
	"sessiond/cmd/internal/events"
)

// Service implements the session lifecycle on top of a Store.
//
// Every state change is announced on the events.Publisher. Expiry is lazy:
// reads that find an expired row delete it on the spot, and the Sweeper
// catches rows nobody reads again.
type Service struct {
	cfg    Config
	store  Store
	events events.Publisher
	log    *slog.Logger
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService validates cfg and constructs a Service. A nil publisher discards events.
func NewService(cfg Config, store Store, pub events.Publisher, log *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfig)
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		events: pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Config returns the active configuration.
func (s *Service) Config() Config { return s.cfg }

// Create starts a session for accountID, evicting the oldest sessions beyond the cap.
func (s *Service) Create(ctx context.Context, accountID string, dev Device, ip string) (Session, error) {
	if accountID == "" {
		return Session{}, ErrAccountNotFound
	}

	id, err := ids.NewOpaque(s.cfg.IDBytes)
	if err != nil {
		return Session{}, fmt.Errorf("session: id: %w", err)
	}

	if dev.Class == "" {
		dev.Class = DeviceUnknown
	}

	now := s.now()
	sess := Session{
		ID:             id,
		AccountID:      accountID,
		Device:         dev,
		IP:             ip,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.cfg.TTL),
	}

	evicted, err := s.store.Create(ctx, sess, s.cfg.MaxPerAccount, now.Add(-s.cfg.InactivityTimeout))
	if err != nil {
		return Session{}, err
	}

	for _, old := range evicted {
		ev := s.event(events.KindSessionEvicted, accountID, old.ID)
		ev.Data = map[string]string{"replaced_by": sess.ID}
		s.events.Publish(ctx, ev)
	}
	if len(evicted) > 0 {
		s.log.InfoContext(ctx, "session.evicted", "account_id", accountID, "count", len(evicted))
	}

	ev := s.event(events.KindSessionCreated, accountID, sess.ID)
	ev.IP = ip
	ev.Data = map[string]string{
		"browser":      dev.Browser,
		"os":           dev.OS,
		"device_class": string(dev.Class),
	}
	s.events.Publish(ctx, ev)

	return sess, nil
}

// Touch records activity on sessionID. Calling it twice is harmless.
func (s *Service) Touch(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.live(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	if err := s.store.Touch(ctx, sessionID, now); err != nil {
		return Session{}, err
	}
	if now.After(sess.LastActivityAt) {
		sess.LastActivityAt = now
	}

	s.events.Publish(ctx, s.event(events.KindActivityUpdated, sess.AccountID, sess.ID))
	return sess, nil
}

// Get returns sessionID if accountID owns it.
func (s *Service) Get(ctx context.Context, sessionID, accountID string) (Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.AccountID != accountID {
		return Session{}, ErrForbidden
	}
	return sess, nil
}

// GetInfo reports remaining lifetime. An expired session is deleted and
// reported with Info.Expired set alongside ErrSessionExpired.
func (s *Service) GetInfo(ctx context.Context, sessionID string) (Info, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Info{}, err
	}

	info := sess.info(s.now(), s.cfg.InactivityTimeout)
	if info.Expired {
		s.expire(ctx, sess)
		return info, ErrSessionExpired
	}
	return info, nil
}

// Authenticate resolves the session behind a bearer token. It fails once the
// session has been terminated, evicted or has expired, so logout takes effect
// before the access token runs out.
func (s *Service) Authenticate(ctx context.Context, sessionID, accountID string) (Session, error) {
	sess, err := s.live(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.AccountID != accountID {
		return Session{}, ErrForbidden
	}
	return sess, nil
}

// Terminate deletes sessionID on behalf of requester.
func (s *Service) Terminate(ctx context.Context, sessionID, requester string) error {
	if err := s.store.Delete(ctx, sessionID, requester); err != nil {
		return err
	}
	s.events.Publish(ctx, s.event(events.KindSessionTerminated, requester, sessionID))
	return nil
}

// TerminateAllExcept deletes every session of accountID except currentID and
// returns how many were removed.
func (s *Service) TerminateAllExcept(ctx context.Context, accountID, currentID string) (int, error) {
	n, err := s.store.DeleteAllExcept(ctx, accountID, currentID)
	if err != nil {
		return 0, err
	}

	ev := s.event(events.KindSessionsBulkTerminated, accountID, currentID)
	ev.Count = n
	s.events.Publish(ctx, ev)
	return n, nil
}

// List returns accountID's live sessions, oldest first. Expired rows found on
// the way are deleted.
func (s *Service) List(ctx context.Context, accountID string) ([]Session, error) {
	rows, err := s.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]Session, 0, len(rows))
	for _, sess := range rows {
		if sess.Expired(now, s.cfg.InactivityTimeout) {
			s.expire(ctx, sess)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// live loads sessionID and applies lazy expiry.
func (s *Service) live(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Expired(s.now(), s.cfg.InactivityTimeout) {
		s.expire(ctx, sess)
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

func (s *Service) expire(ctx context.Context, sess Session) {
	if err := s.store.DeleteByID(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.WarnContext(ctx, "session.expire.delete_failed", "session_id", sess.ID, "err", err)
		return
	}
	s.log.DebugContext(ctx, "session.expired", "account_id", sess.AccountID, "session_id", sess.ID)
}

func (s *Service) event(kind events.Kind, accountID, sessionID string) events.Event {
	ev := events.New(kind, accountID, sessionID)
	ev.OccurredAt = s.now()
	return ev
}
