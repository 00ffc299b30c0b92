package realtime

import (
	"time"

	"sessiond/cmd/internal/events"
)

// Message types.
const (
	TypeHello        = "hello"
	TypeEvent        = "event"
	TypeSessionEnded = "session.ended"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

// Message is the JSON frame exchanged over the socket.
type Message struct {
	Type  string        `json:"type"`
	TS    time.Time     `json:"ts"`
	Event *events.Event `json:"event,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code,omitempty"`
}
