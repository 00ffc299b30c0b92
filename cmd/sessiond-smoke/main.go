// Command sessiond-smoke runs an end-to-end lifecycle check against a live
// sessiond:
//   - signup and two logins open sessions A and B
//   - A opens a realtime socket with the sessiond.v1 subprotocol
//   - B terminates every other session
//   - A's socket receives session.ended and closes with 4001
//   - A's access token is refused afterwards
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"sessiond/cmd/internal/realtime"
)

type authResult struct {
	AccessToken string `json:"access_token"`
	Session     struct {
		ID string `json:"id"`
	} `json:"session"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "sessiond base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		password = flag.String("password", "Smoke-test-1!", "password for the throwaway account")
		timeout  = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose  = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	base, err := url.Parse(*baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url %q", *baseURL)
	}

	hc := &http.Client{Timeout: *timeout}
	email := fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())

	var a, b authResult
	mustPost(hc, base, "/signup", "", map[string]string{"name": "Smoke", "email": email, "password": *password}, http.StatusCreated, &a)
	mustPost(hc, base, "/login", "", map[string]string{"email": email, "password": *password}, http.StatusOK, &b)
	if *verbose {
		fmt.Printf("sessions: A=%s B=%s\n", a.Session.ID, b.Session.ID)
	}

	conn := mustDial(base, *origin, a.AccessToken, *timeout)
	defer func() { _ = conn.CloseNow() }()

	hello := mustRead(conn, *timeout)
	if hello.Type != realtime.TypeHello || hello.SessionID != a.Session.ID {
		fatalf("expected hello for %s, got %+v", a.Session.ID, hello)
	}

	var terminated struct {
		Terminated int `json:"terminated"`
	}
	mustDo(hc, base, http.MethodDelete, "/sessions/all", b.AccessToken, nil, http.StatusOK, &terminated)
	if terminated.Terminated < 1 {
		fatalf("expected at least one terminated session, got %d", terminated.Terminated)
	}

	ended := false
	for !ended {
		m := mustRead(conn, *timeout)
		if *verbose {
			fmt.Printf("A <- %s\n", m.Type)
		}
		ended = m.Type == realtime.TypeSessionEnded
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	_, _, err = conn.Read(ctx)
	if code := websocket.CloseStatus(err); code != realtime.CloseSessionEnded {
		fatalf("expected close %d, got %v", realtime.CloseSessionEnded, err)
	}

	mustDo(hc, base, http.MethodGet, "/sessions", a.AccessToken, nil, http.StatusUnauthorized, nil)

	fmt.Printf("OK: account=%s terminated=%d\n", email, terminated.Terminated)
}

func mustPost(hc *http.Client, base *url.URL, path, bearer string, body any, want int, out any) {
	mustDo(hc, base, http.MethodPost, path, bearer, body, want, out)
}

func mustDo(hc *http.Client, base *url.URL, method, path, bearer string, body any, want int, out any) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("%s %s: marshal: %v", method, path, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, base.JoinPath(path).String(), rd)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := hc.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != want {
		fatalf("%s %s: status=%d want=%d body=%s", method, path, resp.StatusCode, want, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func mustDial(base *url.URL, origin, token string, timeout time.Duration) *websocket.Conn {
	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if origin != "" {
		h.Set("Origin", origin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{realtime.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fatalf("dial %s: status=%d err=%v", u.String(), status, err)
	}
	if conn.Subprotocol() != realtime.Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol")
		fatalf("server did not select %s", realtime.Subprotocol)
	}
	return conn
}

func mustRead(conn *websocket.Conn, timeout time.Duration) realtime.Message {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("read: timed out")
		}
		fatalf("read: %v", err)
	}
	var m realtime.Message
	if err := json.Unmarshal(data, &m); err != nil {
		fatalf("read: bad frame %q: %v", data, err)
	}
	return m
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
