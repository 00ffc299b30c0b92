package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/redis/go-redis/v9"

	"sessiond/cmd/internal/guard"
	"sessiond/cmd/internal/realtime"
)

const testPassword = "Aa1!aaaa"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	app *App
	srv *httptest.Server
}

func startApp(t *testing.T, cfg Config) *testServer {
	t.Helper()

	a, err := New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.broadcaster.Start()
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return &testServer{app: a, srv: srv}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

type authBody struct {
	AccessToken string `json:"access_token"`
	Session     struct {
		ID string `json:"id"`
	} `json:"session"`
}

func (s *testServer) auth(t *testing.T, path string, body any, want int) authBody {
	t.Helper()

	resp, raw := s.do(t, http.MethodPost, path, "", body)
	if resp.StatusCode != want {
		t.Fatalf("POST %s: status=%d body=%s", path, resp.StatusCode, raw)
	}
	var out authBody
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken == "" || out.Session.ID == "" {
		t.Fatalf("incomplete auth response: %s", raw)
	}
	return out
}

func (s *testServer) health(t *testing.T) healthResponse {
	t.Helper()

	resp, raw := s.do(t, http.MethodGet, "/health", "", nil)
	var h healthResponse
	if err := json.Unmarshal(raw, &h); err != nil {
		t.Fatalf("decode health: %v (%s)", err, raw)
	}
	if resp.StatusCode != http.StatusOK || h.Status != "ok" {
		t.Fatalf("health: status=%d body=%s", resp.StatusCode, raw)
	}
	return h
}

func TestApp_SessionLifecycleOverHTTPAndWebSocket(t *testing.T) {
	s := startApp(t, testConfig())

	if h := s.health(t); h.Checks["database"] != "disabled" || h.Checks["redis"] != "disabled" {
		t.Fatalf("checks=%v", h.Checks)
	}

	a := s.auth(t, "/signup", map[string]string{"name": "Ada", "email": "a@x.com", "password": testPassword}, http.StatusCreated)
	b := s.auth(t, "/login", map[string]string{"email": "a@x.com", "password": testPassword}, http.StatusOK)

	u, _ := url.Parse(s.srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{realtime.Subprotocol},
		HTTPHeader:   http.Header{"Authorization": []string{"Bearer " + a.AccessToken}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	readMsg := func() realtime.Message {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("ws read: %v", err)
		}
		var m realtime.Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("ws frame: %v", err)
		}
		return m
	}
	if m := readMsg(); m.Type != realtime.TypeHello || m.SessionID != a.Session.ID {
		t.Fatalf("expected hello, got %+v", m)
	}

	resp, raw := s.do(t, http.MethodDelete, "/sessions/all", b.AccessToken, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"terminated":1`) {
		t.Fatalf("terminate all: status=%d body=%s", resp.StatusCode, raw)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("api responses carry security headers")
	}

	for {
		m := readMsg()
		if m.Type == realtime.TypeSessionEnded {
			break
		}
	}
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != realtime.CloseSessionEnded {
		t.Fatalf("expected close %d, got %v", realtime.CloseSessionEnded, err)
	}

	if resp, _ := s.do(t, http.MethodGet, "/sessions", a.AccessToken, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("terminated session must be refused, got %d", resp.StatusCode)
	}
	if resp, _ := s.do(t, http.MethodGet, "/sessions", b.AccessToken, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("kept session must still work, got %d", resp.StatusCode)
	}

	_, metrics := s.do(t, http.MethodGet, "/metrics", "", nil)
	for _, want := range []string{
		`sessiond_events_total{kind="registered"} 1`,
		`sessiond_events_total{kind="sessions_bulk_terminated"} 1`,
		`sessiond_http_requests_total{method="POST",route="/signup",status="201"} 1`,
		`sessiond_http_requests_total{method="DELETE",route="/sessions/all",status="200"} 1`,
		`sessiond_ws_connections`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(metrics), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_RedisBusAndGuard(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Events.Bus = BusRedis
	cfg.Guard.Limits.Rules[guard.RuleSignup] = guard.Rule{Limit: 1, Window: time.Minute}
	s := startApp(t, cfg)

	if h := s.health(t); h.Checks["redis"] != "ok" {
		t.Fatalf("checks=%v", h.Checks)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, "sessiond.registered")
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s.auth(t, "/signup", map[string]string{"name": "Ada", "email": "a@x.com", "password": testPassword}, http.StatusCreated)

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var ev struct {
		Kind      string `json:"kind"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.Kind != "registered" || ev.AccountID == "" {
		t.Fatalf("unexpected event %+v", ev)
	}

	resp, _ := s.do(t, http.MethodPost, "/signup", "", map[string]string{"name": "Bo", "email": "b@x.com", "password": testPassword})
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", resp.StatusCode)
	}

	keys := mr.Keys()
	found := false
	for _, k := range keys {
		if strings.HasPrefix(k, "sessiond:guard:signup:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("guard counters must live in redis, keys=%v", keys)
	}
}

func TestNew_RejectsInsecureProduction(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Env = "production"
	if _, err := New(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatalf("production without database or hmac key must fail")
	}
}
