package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"sessiond/cmd/identity/ids"
)

const (
	// Subprotocol is the only protocol the gateway speaks.
	Subprotocol = "sessiond.v1"

	// CloseSessionEnded is the close code sent when the socket's session ends.
	CloseSessionEnded websocket.StatusCode = 4001

	wsMaxPingFailures = 3
	wsCloseGrace      = time.Second
)

// Authenticator resolves an access token to the live session it belongs to.
type Authenticator func(ctx context.Context, token string) (accountID, sessionID string, err error)

// SessionCheck reports an error once the session is no longer live.
type SessionCheck func(ctx context.Context, sessionID, accountID string) error

// WSGateway upgrades authenticated requests and streams hub messages to them.
type WSGateway struct {
	log   *slog.Logger
	hub   *Hub
	auth  Authenticator
	check SessionCheck
	cfg   Config

	originPatterns []string
}

// NewWSGateway constructs a gateway. check may be nil; when set it runs on
// every heartbeat so idle expiry also closes the socket.
func NewWSGateway(log *slog.Logger, hub *Hub, auth Authenticator, check SessionCheck, cfg Config) (*WSGateway, error) {
	if hub == nil || auth == nil {
		return nil, errors.New("realtime: hub and authenticator are required")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &WSGateway{
		log:            log,
		hub:            hub,
		auth:           auth,
		check:          check,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}, nil
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := requestToken(r)
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	accountID, sessionID, err := g.auth(r.Context(), token)
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Server read/write timeouts are meant for request/response traffic.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if conn.Subprotocol() != Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	clientID, err := ids.NewOpaque(12)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(clientID, accountID, sessionID, g.cfg.SendQueueSize)
	g.hub.Register(client)
	defer g.hub.Unregister(client)

	g.run(r.Context(), conn, client)
}

func (g *WSGateway) run(parent context.Context, conn *websocket.Conn, client *Client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	client.offer(Message{Type: TypeHello, TS: time.Now().UTC(), SessionID: client.SessionID})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-client.Send:
				if err := g.write(ctx, conn, m); err != nil {
					g.log.Info("ws.write.fail", "client_id", client.ID, "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			case <-client.Done():
				g.flush(ctx, conn, client)
				if ended, reason := client.Ended(); ended {
					_ = g.write(ctx, conn, Message{Type: TypeSessionEnded, TS: time.Now().UTC(), SessionID: client.SessionID, Reason: reason})
					shutdown(CloseSessionEnded, reason)
					return
				}
				shutdown(websocket.StatusNormalClosure, "bye")
				return
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, client, shutdown)
	}()

	rl := NewRateLimiter(rateLimitEvents, rateLimitWindow)
	for {
		// Dead peers are detected by the heartbeat, not by a read deadline.
		m, err := readMessage(ctx, conn)

		if err != nil {
			if errors.Is(err, errBadFrame) {
				client.offer(Message{Type: TypeError, TS: time.Now().UTC(), Code: "bad_json"})
				continue
			}
			if websocket.CloseStatus(err) == -1 && !isClosedErr(err) {
				g.log.Info("ws.read.fail", "client_id", client.ID, "err", err)
			}
			break
		}

		if !rl.Allow(time.Now()) {
			client.offer(Message{Type: TypeError, TS: time.Now().UTC(), Code: "rate_limited"})
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}

		switch m.Type {
		case TypePing:
			client.offer(Message{Type: TypePong, TS: time.Now().UTC()})
		default:
			client.offer(Message{Type: TypeError, TS: time.Now().UTC(), Code: "unsupported"})
		}
	}

	// A session end closes the conn from the writer; wait for it to finish
	// so the final frame is not cut off.
	select {
	case <-writerDone:
	case <-time.After(wsCloseGrace):
	}
	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *WSGateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			if g.check != nil {
				if err := g.check(ctx, client.SessionID, client.AccountID); err != nil {
					client.End("session_expired")
					return
				}
			}

			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			g.log.Info("ws.ping.fail", "client_id", client.ID, "failures", failures, "err", err)
			if failures >= wsMaxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

// flush writes whatever is already queued.
func (g *WSGateway) flush(ctx context.Context, conn *websocket.Conn, client *Client) {
	for {
		select {
		case m := <-client.Send:
			if err := g.write(ctx, conn, m); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (g *WSGateway) write(parent context.Context, conn *websocket.Conn, m Message) error {
	ctx, cancel := context.WithTimeout(parent, g.cfg.WriteTimeout)
	defer cancel()

	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

var errBadFrame = errors.New("bad frame")

func readMessage(ctx context.Context, conn *websocket.Conn) (Message, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return m, nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF)
}

// requestToken reads the bearer header, falling back to the access_token
// query parameter for browsers that cannot set headers on a handshake.
func requestToken(r *http.Request) string {
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		if tok := strings.TrimSpace(parts[1]); tok != "" {
			return tok
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	host := originHost(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "*" || a == origin {
			return nil
		}
		if host != "" && host == originHost(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns derives websocket.Accept host patterns from the allowlist so
// both origin checks agree.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		if h := originHost(a); h != "" {
			seen[h] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
