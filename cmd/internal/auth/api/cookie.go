package authapi

import (
	"net/http"
	"strings"
	"time"
)

func (h *Handler) setRenewalCookie(w http.ResponseWriter, value string, exp time.Time) {
	sameSite, _ := parseSameSite(h.cfg.Cookie.SameSite)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    value,
		Path:     h.cookiePath(),
		Domain:   h.cfg.Cookie.Domain,
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearRenewalCookie(w http.ResponseWriter) {
	sameSite, _ := parseSameSite(h.cfg.Cookie.SameSite)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    "",
		Path:     h.cookiePath(),
		Domain:   h.cfg.Cookie.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: sameSite,
	})
}

func (h *Handler) renewalFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.cfg.Cookie.Name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	return v, v != ""
}

func (h *Handler) cookiePath() string {
	if h.cfg.Cookie.Path == "" {
		return "/"
	}
	return h.cfg.Cookie.Path
}
