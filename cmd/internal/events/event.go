package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind names a lifecycle transition.
type Kind string

const (
	KindRegistered             Kind = "registered"
	KindLogin                  Kind = "login"
	KindLogout                 Kind = "logout"
	KindSessionCreated         Kind = "session_created"
	KindSessionTerminated      Kind = "session_terminated"
	KindSessionEvicted         Kind = "session_evicted"
	KindSessionsBulkTerminated Kind = "sessions_bulk_terminated"
	KindActivityUpdated        Kind = "activity_updated"
	KindTokenRefreshed         Kind = "token_refreshed"
)

// Kinds lists every known kind.
func Kinds() []Kind {
	return []Kind{
		KindRegistered, KindLogin, KindLogout,
		KindSessionCreated, KindSessionTerminated, KindSessionEvicted,
		KindSessionsBulkTerminated, KindActivityUpdated, KindTokenRefreshed,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Event is the JSON payload published on the bus.
//
// For sessions_bulk_terminated, SessionID is the session that was kept and
// Count the number removed.
type Event struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	AccountID  string            `json:"account_id"`
	SessionID  string            `json:"session_id,omitempty"`
	Count      int               `json:"count,omitempty"`
	IP         string            `json:"ip,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// MarshalJSON always writes count for sessions_bulk_terminated, even when
// nothing was removed. Other kinds carry it only when set.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	out := struct {
		plain
		Count *int `json:"count,omitempty"`
	}{plain: plain(e)}
	if e.Count != 0 || e.Kind == KindSessionsBulkTerminated {
		out.Count = &e.Count
	}
	return json.Marshal(out)
}

// New returns an event with a fresh id.
func New(kind Kind, accountID, sessionID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		AccountID: accountID,
		SessionID: sessionID,
	}
}

// Publisher accepts events for best-effort delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
