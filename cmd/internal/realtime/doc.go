// Package realtime pushes an account's session events to its open WebSocket
// connections.
//
// The Hub subscribes to the events broadcaster in-process. Every event for an
// account is forwarded to that account's sockets; a socket whose own session
// was terminated, evicted or bulk-terminated receives a final "session.ended"
// message and is closed with CloseSessionEnded.
package realtime
