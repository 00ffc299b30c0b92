package authapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/auth/tokens"
	"sessiond/cmd/internal/events"
	"sessiond/cmd/internal/guard"
)

const tokenTypeBearer = "Bearer"

// Deps are the collaborators of the auth endpoints.
type Deps struct {
	Accounts *identity.Verifier
	Sessions *session.Service
	Tokens   *tokens.Issuer
	Limiter  *guard.Limiter
	Events   events.Publisher
}

// Handler wires HTTP auth endpoints to the identity, session and token services.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts *identity.Verifier
	sessions *session.Service
	tokens   *tokens.Issuer
	limiter  *guard.Limiter
	events   events.Publisher

	now func() time.Time
}

// HandlerOption configures optional behavior.
type HandlerOption func(*Handler)

// WithHandlerClock overrides the time source used for token issuance.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler. A nil Limiter disables throttling.
func NewHandler(log *slog.Logger, cfg Config, deps Deps, opts ...HandlerOption) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Accounts == nil || deps.Sessions == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("%w: accounts, sessions and tokens are required", ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		tokens:   deps.Tokens,
		limiter:  deps.Limiter,
		events:   deps.Events,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the auth and session routes onto r.
func (h *Handler) Register(r chi.Router) {
	r.With(h.guardIP(guard.RuleSignup)).Post("/signup", h.handleSignup)
	r.With(h.guardIP(guard.RuleLogin)).Post("/login", h.handleLogin)
	r.With(h.guardIP(guard.RuleRefresh)).Post("/refresh", h.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireBearer)

		r.With(h.guardAccount(guard.RuleSessionWrite)).Post("/logout", h.handleLogout)
		r.With(h.guardAccount(guard.RuleActivity)).Post("/activity", h.handleActivity)

		r.Route("/sessions", func(r chi.Router) {
			r.With(h.guardAccount(guard.RuleSessionRead)).Get("/", h.handleListSessions)
			r.With(h.guardAccount(guard.RuleSessionRead)).Get("/current", h.handleCurrentSession)
			r.With(h.guardAccount(guard.RuleSessionWrite)).Delete("/all", h.handleTerminateOthers)
			r.With(h.guardAccount(guard.RuleSessionWrite)).Delete("/{id}", h.handleTerminateSession)
		})
	})
}

// Authenticate verifies an access token and requires its session to be live.
func (h *Handler) Authenticate(ctx context.Context, raw string) (Principal, error) {
	claims, err := h.tokens.VerifyAccess(raw, h.now())
	if err != nil {
		return Principal{}, err
	}
	if _, err := h.sessions.Authenticate(ctx, claims.SessionID, claims.AccountID); err != nil {
		return Principal{}, err
	}
	return Principal{AccountID: claims.AccountID, Role: claims.Role, SessionID: claims.SessionID}, nil
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	ctx := r.Context()
	acct, err := h.accounts.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "auth.signup", err)
		return
	}

	h.startSession(w, r, acct, http.StatusCreated, "auth.signup", events.KindRegistered)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "email and password are required")
		return
	}
	if !h.allowEmail(w, r, req.Email) {
		return
	}

	acct, err := h.accounts.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.log.InfoContext(r.Context(), "auth.login.rejected", "ip", clientIP(r, h.cfg.TrustProxy))
		}
		h.writeServiceError(w, r, "auth.login", err)
		return
	}

	h.startSession(w, r, acct, http.StatusOK, "auth.login", events.KindLogin)
}

// startSession creates a session for acct, announces kind and answers with an
// access token and the renewal cookie.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, acct identity.Account, status int, op string, kind events.Kind) {
	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)

	sess, err := h.sessions.Create(ctx, acct.ID, session.ParseDevice(r.UserAgent()), ip)
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}

	now := h.now()
	access, accessExp, err := h.tokens.IssueAccessToken(acct.ID, string(acct.Role), sess.ID, now)
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}
	renewal, renewalExp, err := h.tokens.IssueRenewalToken(acct.ID, sess.ID, now)
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}
	if renewalExp.After(sess.ExpiresAt) {
		renewalExp = sess.ExpiresAt
	}

	if err := h.accounts.TouchActivity(ctx, acct.ID); err != nil {
		h.log.WarnContext(ctx, op+".touch_account.fail", "account_id", acct.ID, "err", err)
	}

	ev := events.New(kind, acct.ID, sess.ID)
	ev.IP = ip
	h.events.Publish(ctx, ev)

	h.setRenewalCookie(w, renewal, renewalExp)
	writeJSON(w, status, authResponse{
		AccessToken: access,
		ExpiresAt:   accessExp,
		TokenType:   tokenTypeBearer,
		Account:     toAccountResponse(acct),
		Session:     toSessionResponse(sess, sess.ID),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.renewalFromCookie(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing renewal token")
		return
	}

	ctx := r.Context()
	now := h.now()
	claims, err := h.tokens.VerifyRenewal(raw, now)
	if err != nil {
		h.clearRenewalCookie(w)
		h.writeAuthError(w, r, "auth.refresh", err)
		return
	}

	sess, err := h.sessions.Authenticate(ctx, claims.SessionID, claims.AccountID)
	if err != nil {
		h.clearRenewalCookie(w)
		h.writeAuthError(w, r, "auth.refresh", err)
		return
	}

	// Role is read fresh so a role change takes effect on the next refresh.
	acct, err := h.accounts.Get(ctx, claims.AccountID)
	if err != nil {
		h.writeAuthError(w, r, "auth.refresh", err)
		return
	}

	access, accessExp, err := h.tokens.IssueAccessToken(acct.ID, string(acct.Role), sess.ID, now)
	if err != nil {
		h.writeServiceError(w, r, "auth.refresh", err)
		return
	}
	renewal, renewalExp, err := h.tokens.IssueRenewalToken(acct.ID, sess.ID, now)
	if err != nil {
		h.writeServiceError(w, r, "auth.refresh", err)
		return
	}
	if renewalExp.After(sess.ExpiresAt) {
		renewalExp = sess.ExpiresAt
	}

	h.events.Publish(ctx, events.New(events.KindTokenRefreshed, acct.ID, sess.ID))

	h.setRenewalCookie(w, renewal, renewalExp)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: access,
		ExpiresAt:   accessExp,
		TokenType:   tokenTypeBearer,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	if err := h.sessions.Terminate(r.Context(), p.SessionID, p.AccountID); err != nil && !errors.Is(err, session.ErrNotFound) {
		h.writeServiceError(w, r, "auth.logout", err)
		return
	}
	h.events.Publish(r.Context(), events.New(events.KindLogout, p.AccountID, p.SessionID))

	h.clearRenewalCookie(w)
	writeNoContent(w)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFrom(ctx)

	if _, err := h.sessions.Touch(ctx, p.SessionID); err != nil {
		h.writeAuthError(w, r, "auth.activity", err)
		return
	}
	if err := h.accounts.TouchActivity(ctx, p.AccountID); err != nil {
		h.log.WarnContext(ctx, "auth.activity.touch_account.fail", "account_id", p.AccountID, "err", err)
	}

	info, err := h.sessions.GetInfo(ctx, p.SessionID)
	if err != nil {
		h.writeAuthError(w, r, "auth.activity", err)
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{
		LastActivity:         info.LastActivity,
		TimeRemainingSeconds: seconds(info.TimeRemaining),
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	list, err := h.sessions.List(r.Context(), p.AccountID)
	if err != nil {
		h.writeServiceError(w, r, "sessions.list", err)
		return
	}

	out := sessionsResponse{
		Sessions:         make([]sessionResponse, 0, len(list)),
		CurrentSessionID: p.SessionID,
	}
	for _, s := range list {
		out.Sessions = append(out.Sessions, toSessionResponse(s, p.SessionID))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	info, err := h.sessions.GetInfo(r.Context(), p.SessionID)
	if err != nil {
		h.writeAuthError(w, r, "sessions.current", err)
		return
	}
	writeJSON(w, http.StatusOK, toInfoResponse(info))
}

func (h *Handler) handleTerminateOthers(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	n, err := h.sessions.TerminateAllExcept(r.Context(), p.AccountID, p.SessionID)
	if err != nil {
		h.writeServiceError(w, r, "sessions.terminate_all", err)
		return
	}
	writeJSON(w, http.StatusOK, terminatedResponse{Terminated: n})
}

func (h *Handler) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "session id is required")
		return
	}
	if err := h.sessions.Terminate(r.Context(), id, p.AccountID); err != nil {
		h.writeServiceError(w, r, "sessions.terminate", err)
		return
	}
	if id == p.SessionID {
		h.clearRenewalCookie(w)
	}
	writeNoContent(w)
}
