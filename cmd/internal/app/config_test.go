package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sessiond/cmd/internal/auth/tokens"
	"sessiond/cmd/internal/guard"
)

// testConfig is DefaultConfig with cheap hashing and valid JWT secrets.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Params.MemoryKiB = 1024
	cfg.Password.Params.Iterations = 1
	cfg.Password.Params.Parallelism = 1
	cfg.Token.AccessSecret = strings.Repeat("a", 32)
	cfg.Token.RenewalSecret = strings.Repeat("r", 32)
	cfg.Realtime.OriginRequired = false
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Env != "development" || cfg.Production() {
		t.Fatalf("env=%q", cfg.Env)
	}
	if cfg.HTTP.Addr != "0.0.0.0:8080" || cfg.HTTP.RequestTimeout != 10*time.Second {
		t.Fatalf("http=%+v", cfg.HTTP)
	}
	if cfg.Session.MaxPerAccount != 5 || cfg.Session.InactivityTimeout != 30*time.Minute {
		t.Fatalf("session=%+v", cfg.Session)
	}
	if cfg.Token.Format != tokens.FormatJWT || cfg.Token.AccessTTL != 15*time.Minute {
		t.Fatalf("token=%+v", cfg.Token)
	}
	if r := cfg.Guard.Limits.Rules[guard.RuleLogin]; r.Limit != 5 || r.Window != 15*time.Minute {
		t.Fatalf("login rule=%+v", r)
	}
	if cfg.Events.Bus != BusLog || cfg.Events.Broadcaster.Attempts != 3 {
		t.Fatalf("events=%+v", cfg.Events)
	}
	if !cfg.API.Cookie.Secure || cfg.API.Cookie.Path != "/refresh" {
		t.Fatalf("cookie=%+v", cfg.API.Cookie)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("SESSIOND_ENV", "production")
	t.Setenv("SESSIOND_SESSION_MAX_PER_ACCOUNT", "3")
	t.Setenv("SESSIOND_SESSION_INACTIVITY_TIMEOUT", "10m")
	t.Setenv("SESSIOND_GUARD_RULES_LOGIN_LIMIT", "9")
	t.Setenv("SESSIOND_EVENTS_ATTEMPTS", "5")
	t.Setenv("SESSIOND_TOKEN_FORMAT", "paseto")
	t.Setenv("SESSIOND_REALTIME_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Production() {
		t.Fatalf("expected production env")
	}
	if cfg.Session.MaxPerAccount != 3 || cfg.Session.InactivityTimeout != 10*time.Minute {
		t.Fatalf("session=%+v", cfg.Session)
	}
	if cfg.Guard.Limits.Rules[guard.RuleLogin].Limit != 9 {
		t.Fatalf("login rule=%+v", cfg.Guard.Limits.Rules[guard.RuleLogin])
	}
	if cfg.Guard.Limits.Rules[guard.RuleSignup].Limit != 5 {
		t.Fatalf("untouched rules keep defaults: %+v", cfg.Guard.Limits.Rules)
	}
	if cfg.Events.Broadcaster.Attempts != 5 {
		t.Fatalf("attempts=%d", cfg.Events.Broadcaster.Attempts)
	}
	if cfg.Token.Format != tokens.FormatPASETO {
		t.Fatalf("format=%q", cfg.Token.Format)
	}
	if got := cfg.Realtime.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("origins=%v", got)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessiond.yaml")
	yaml := `
log:
  format: pretty
session:
  max_per_account: 7
events:
  bus: kafka
  kafka:
    brokers: ["k1:9092", "k2:9092"]
    topic: sessiond.test
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("SESSIOND_SESSION_MAX_PER_ACCOUNT", "4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Log.Format != "pretty" {
		t.Fatalf("log.format=%q", cfg.Log.Format)
	}
	if cfg.Session.MaxPerAccount != 4 {
		t.Fatalf("env must win over file: %d", cfg.Session.MaxPerAccount)
	}
	if cfg.Events.Bus != BusKafka || len(cfg.Events.Kafka.Brokers) != 2 || cfg.Events.Kafka.Topic != "sessiond.test" {
		t.Fatalf("events=%+v", cfg.Events)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty addr", mutate: func(c *Config) { c.HTTP.Addr = "" }},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
		{name: "unknown bus", mutate: func(c *Config) { c.Events.Bus = "nats" }},
		{name: "redis bus without redis", mutate: func(c *Config) { c.Events.Bus = BusRedis }},
		{name: "kafka bus without brokers", mutate: func(c *Config) { c.Events.Bus = BusKafka }},
		{name: "zero request timeout", mutate: func(c *Config) { c.HTTP.RequestTimeout = 0 }},
		{name: "min conns above max", mutate: func(c *Config) { c.Database.MaxConns = 2; c.Database.MinConns = 3 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
