package realtime

import (
	"log/slog"
	"sync"
	"time"

	"sessiond/cmd/internal/events"
)

// Hub tracks open sockets per account and fans events out to them.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu        sync.RWMutex
	byAccount map[string]map[string]*Client

	onChange func(open int)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithConnectionGauge is called with the open socket count after every change.
func WithConnectionGauge(fn func(open int)) HubOption {
	return func(h *Hub) { h.onChange = fn }
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		byAccount: make(map[string]map[string]*Client),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register adds c to its account's set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.byAccount[c.AccountID]
	if !ok {
		set = make(map[string]*Client)
		h.byAccount[c.AccountID] = set
	}
	set[c.ID] = c
	n := h.countLocked()
	h.mu.Unlock()

	h.changed(n)
}

// Unregister removes c. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.byAccount[c.AccountID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.byAccount, c.AccountID)
		}
	}
	n := h.countLocked()
	h.mu.Unlock()

	h.changed(n)
}

// Count returns the number of open sockets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

// Dispatch forwards ev to the account's sockets and ends sockets whose session
// the event ended. It never blocks; a full send queue drops the frame.
func (h *Hub) Dispatch(ev events.Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byAccount[ev.AccountID]))
	for _, c := range h.byAccount[ev.AccountID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	now := h.now()
	for _, c := range clients {
		evCopy := ev
		if !c.offer(Message{Type: TypeEvent, TS: now, Event: &evCopy}) {
			h.log.Warn("realtime.dispatch.drop", "client_id", c.ID, "kind", ev.Kind)
		}
		if reason, ok := endsSession(ev, c.SessionID); ok {
			c.End(reason)
		}
	}
}

// endsSession reports whether ev terminates the socket bound to sessionID.
func endsSession(ev events.Event, sessionID string) (string, bool) {
	switch ev.Kind {
	case events.KindSessionTerminated, events.KindSessionEvicted, events.KindLogout:
		return string(ev.Kind), ev.SessionID == sessionID
	case events.KindSessionsBulkTerminated:
		return string(ev.Kind), ev.SessionID != sessionID
	default:
		return "", false
	}
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.byAccount {
		n += len(set)
	}
	return n
}

func (h *Hub) changed(n int) {
	if h.onChange != nil {
		h.onChange(n)
	}
}
