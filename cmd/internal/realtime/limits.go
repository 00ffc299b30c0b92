package realtime

import "time"

const (
	// Inbound frames are tiny control messages.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound budget.
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
