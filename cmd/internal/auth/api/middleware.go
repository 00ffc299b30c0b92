package authapi

import (
	"errors"
	"net/http"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/guard"
)

// RequireBearer authenticates the access token and its session, then stores
// the Principal in the request context.
func (h *Handler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)
		if raw == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		p, err := h.Authenticate(r.Context(), raw)
		if err != nil {
			h.log.DebugContext(r.Context(), "auth.bearer.reject", "err", err)
			h.writeAuthError(w, r, "auth.bearer", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// guardIP throttles by client IP.
func (h *Handler) guardIP(rule string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.allow(w, r, rule, clientIP(r, h.cfg.TrustProxy)) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// guardAccount throttles by the authenticated account. It must run after RequireBearer.
func (h *Handler) guardAccount(rule string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r.Context())
			if !h.allow(w, r, rule, p.AccountID) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request, rule, subject string) bool {
	err := h.limiter.Allow(r.Context(), rule, subject)
	if err == nil {
		return true
	}
	var rl *guard.RateLimitError
	if errors.As(err, &rl) {
		writeRateLimited(w, r, rl)
		return false
	}
	h.writeServiceError(w, r, "auth.guard", err)
	return false
}

// allowEmail throttles login attempts per target account.
func (h *Handler) allowEmail(w http.ResponseWriter, r *http.Request, email string) bool {
	return h.allow(w, r, guard.RuleLoginEmail, identity.NormalizeEmail(email))
}
