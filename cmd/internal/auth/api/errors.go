package authapi

import (
	"errors"
	"net/http"
	"strconv"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/auth/tokens"
	"sessiond/cmd/internal/guard"
)

// writeServiceError maps domain errors onto the HTTP taxonomy. Anything
// unrecognised is logged and reported as a bare 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var rl *guard.RateLimitError
	switch {
	case errors.As(err, &rl):
		writeRateLimited(w, r, rl)
	case errors.Is(err, identity.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_input", invalidInputMessage(err))
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, identity.ErrAccountLocked):
		writeError(w, r, http.StatusLocked, "account_locked", "account is locked")
	case errors.Is(err, identity.ErrConflict):
		writeError(w, r, http.StatusConflict, "email_taken", "email is already registered")
	case errors.Is(err, tokens.ErrExpired):
		writeError(w, r, http.StatusUnauthorized, "token_expired", "token expired")
	case errors.Is(err, tokens.ErrInvalid):
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, r, http.StatusUnauthorized, "session_expired", "session expired")
	case errors.Is(err, session.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "session belongs to another account")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "session not found")
	default:
		h.log.ErrorContext(r.Context(), op+".fail", "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

// writeAuthError is writeServiceError for the bearer and renewal paths: a
// session that is gone or owned by someone else simply does not authenticate.
func (h *Handler) writeAuthError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrForbidden),
		errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "session is not active")
	default:
		h.writeServiceError(w, r, op, err)
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, rl *guard.RateLimitError) {
	w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterSeconds(), 10))
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
}

func invalidInputMessage(err error) string {
	var op identity.OpError
	if errors.As(err, &op) && op.Msg != "" {
		return op.Msg
	}
	return "invalid input"
}
