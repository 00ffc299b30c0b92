package realtime

import (
	"time"
)

// Config controls the WebSocket gateway.
type Config struct {
	// OriginRequired rejects handshakes without an Origin header.
	OriginRequired bool     `mapstructure:"origin_required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
}

// DefaultConfig allows only localhost origins.
func DefaultConfig() Config {
	return Config{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		SendQueueSize:     64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.SendQueueSize < 8 {
		c.SendQueueSize = d.SendQueueSize
	}
	return c
}
