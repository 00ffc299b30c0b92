package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"

	"sessiond/cmd/internal/events"
)

var errNoSession = errors.New("no session")

func fakeAuth(ctx context.Context, token string) (string, string, error) {
	switch token {
	case "tok-a1":
		return "acct-a", "s1", nil
	case "tok-a2":
		return "acct-a", "s2", nil
	default:
		return "", "", errNoSession
	}
}

func startGateway(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(quietLogger())
	gw, err := NewWSGateway(quietLogger(), hub, fakeAuth, nil, cfg)
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return hub, ts
}

func openConfig() Config {
	cfg := DefaultConfig()
	cfg.OriginRequired = false
	return cfg
}

func dial(t *testing.T, base string, header http.Header, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader:   header,
	})
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGateway_RejectsUnauthenticated(t *testing.T) {
	_, ts := startGateway(t, openConfig())

	for name, h := range map[string]http.Header{
		"missing": {},
		"invalid": {"Authorization": []string{"Bearer nope"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := dial(t, ts.URL, h, "")
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got resp=%v err=%v", resp, err)
			}
		})
	}
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	_, ts := startGateway(t, DefaultConfig())

	_, resp, err := dial(t, ts.URL, http.Header{
		"Origin":        []string{"https://evil.example"},
		"Authorization": []string{"Bearer tok-a1"},
	}, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got resp=%v err=%v", resp, err)
	}
}

func TestGateway_PushesEventsAndPong(t *testing.T) {
	hub, ts := startGateway(t, openConfig())

	conn, _, err := dial(t, ts.URL, nil, "access_token=tok-a1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if m := read(t, conn); m.Type != TypeHello || m.SessionID != "s1" {
		t.Fatalf("expected hello, got %+v", m)
	}
	waitClients(t, hub, 1)

	hub.Dispatch(events.New(events.KindSessionCreated, "acct-a", "s9"))
	m := read(t, conn)
	if m.Type != TypeEvent || m.Event == nil || m.Event.Kind != events.KindSessionCreated || m.Event.SessionID != "s9" {
		t.Fatalf("expected session_created event, got %+v", m)
	}

	ping, _ := json.Marshal(Message{Type: TypePing})
	if err := conn.Write(context.Background(), websocket.MessageText, ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if m := read(t, conn); m.Type != TypePong {
		t.Fatalf("expected pong, got %+v", m)
	}
}

func TestGateway_ClosesSocketOfTerminatedSession(t *testing.T) {
	hub, ts := startGateway(t, openConfig())

	victim, _, err := dial(t, ts.URL, http.Header{"Authorization": []string{"Bearer tok-a1"}}, "")
	if err != nil {
		t.Fatalf("dial victim: %v", err)
	}
	defer func() { _ = victim.CloseNow() }()
	survivor, _, err := dial(t, ts.URL, http.Header{"Authorization": []string{"Bearer tok-a2"}}, "")
	if err != nil {
		t.Fatalf("dial survivor: %v", err)
	}
	defer func() { _ = survivor.CloseNow() }()

	read(t, victim)
	read(t, survivor)
	waitClients(t, hub, 2)

	hub.Dispatch(events.New(events.KindSessionTerminated, "acct-a", "s1"))

	if m := read(t, victim); m.Type != TypeEvent {
		t.Fatalf("expected event first, got %+v", m)
	}
	if m := read(t, victim); m.Type != TypeSessionEnded || m.Reason != string(events.KindSessionTerminated) {
		t.Fatalf("expected session.ended, got %+v", m)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = victim.Read(ctx)
	if websocket.CloseStatus(err) != CloseSessionEnded {
		t.Fatalf("expected close %d, got %v", CloseSessionEnded, err)
	}

	if m := read(t, survivor); m.Type != TypeEvent || m.Event.SessionID != "s1" {
		t.Fatalf("survivor expected the event, got %+v", m)
	}
	waitClients(t, hub, 1)
}
