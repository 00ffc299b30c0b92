package authapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Cookie.SameSite = "sometimes"
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for bad same_site, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Cookie.SameSite = "none"
	cfg.Cookie.Secure = false
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for insecure same_site=none, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Cookie.Name = ""
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for empty cookie name, got %v", err)
	}
}

func TestClientIPForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "junk, 203.0.113.7, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.2")

	if got := clientIP(req, false); got != "10.0.0.5" {
		t.Fatalf("untrusted proxy: got %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.7" {
		t.Fatalf("trusted proxy: got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req, true); got != "198.51.100.2" {
		t.Fatalf("x-real-ip: got %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := BearerToken(req); got != want {
			t.Fatalf("%q: got %q want %q", header, got, want)
		}
	}
}
