package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	authapi "sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/auth/tokens"
	"sessiond/cmd/internal/events"
	"sessiond/cmd/internal/guard"
	"sessiond/cmd/internal/realtime"
	"sessiond/cmd/security/password"
)

// EnvPrefix namespaces environment overrides (SESSIOND_HTTP_ADDR, ...).
const EnvPrefix = "SESSIOND"

// ConfigFileEnv names an optional YAML or .env config file.
const ConfigFileEnv = "SESSIOND_CONFIG_FILE"

// Bus names accepted by events.bus.
const (
	BusLog   = "log"
	BusRedis = "redis"
	BusKafka = "kafka"
)

// HTTPConfig controls the listener.
type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is json or pretty.
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// DatabaseConfig points at Postgres. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RedisConfig points at Redis. An empty URL disables it.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// EventsConfig selects the bus and tunes the broadcaster.
type EventsConfig struct {
	Bus         string             `mapstructure:"bus"`
	Broadcaster events.Config      `mapstructure:",squash"`
	Kafka       events.KafkaConfig `mapstructure:"kafka"`
}

// GuardConfig adds the key hashing secret to the limiter rules.
type GuardConfig struct {
	Limits  guard.Config `mapstructure:",squash"`
	HMACKey string       `mapstructure:"hmac_key"`
}

// Config is the whole runtime configuration.
type Config struct {
	// Env is development or production.
	Env string `mapstructure:"env"`

	HTTP     HTTPConfig      `mapstructure:"http"`
	Log      LogConfig       `mapstructure:"log"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Events   EventsConfig    `mapstructure:"events"`
	Password password.Config `mapstructure:"password"`
	Token    tokens.Config   `mapstructure:"token"`
	Session  session.Config  `mapstructure:"session"`
	Guard    GuardConfig     `mapstructure:"guard"`
	API      authapi.Config  `mapstructure:"api"`
	Realtime realtime.Config `mapstructure:"realtime"`
}

// Production reports whether the production security policy applies.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// DefaultConfig returns the built-in defaults without reading the
// environment.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// LoadConfig builds Config from defaults, the optional file named by
// SESSIOND_CONFIG_FILE, and SESSIOND_* environment variables, in rising
// precedence.
func LoadConfig() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		v.SetConfigFile(path)
		if filepath.Base(path) == ".env" {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings owned by the app itself. Component configs are
// validated by their constructors.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("config: http.addr is required")
	}
	if c.HTTP.RequestTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("config: http.request_timeout and http.shutdown_timeout must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: log.format must be json or pretty, got %q", c.Log.Format)
	}
	switch c.Events.Bus {
	case BusLog:
	case BusRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			return errors.New("config: events.bus=redis requires redis.url")
		}
	case BusKafka:
		if len(c.Events.Kafka.Brokers) == 0 || strings.TrimSpace(c.Events.Kafka.Topic) == "" {
			return errors.New("config: events.bus=kafka requires events.kafka.brokers and events.kafka.topic")
		}
	default:
		return fmt.Errorf("config: unknown events.bus %q", c.Events.Bus)
	}
	if c.Database.MinConns < 0 || (c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns) {
		return errors.New("config: database.min_conns out of range")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("http.addr", "0.0.0.0:8080")
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.request_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_header_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.color", false)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.url", "")

	ev := events.DefaultConfig()
	v.SetDefault("events.bus", BusLog)
	v.SetDefault("events.channel_prefix", ev.ChannelPrefix)
	v.SetDefault("events.attempts", ev.Attempts)
	v.SetDefault("events.initial_backoff", ev.InitialBackoff)
	v.SetDefault("events.max_backoff", ev.MaxBackoff)
	v.SetDefault("events.attempt_timeout", ev.AttemptTimeout)
	v.SetDefault("events.queue_size", ev.QueueSize)
	v.SetDefault("events.workers", ev.Workers)
	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "sessiond.events")
	v.SetDefault("events.kafka.batch_timeout", 10*time.Millisecond)

	pw := password.DefaultConfig()
	v.SetDefault("password.argon2.memory_kib", pw.Params.MemoryKiB)
	v.SetDefault("password.argon2.iterations", pw.Params.Iterations)
	v.SetDefault("password.argon2.parallelism", pw.Params.Parallelism)
	v.SetDefault("password.argon2.salt_length", pw.Params.SaltLength)
	v.SetDefault("password.argon2.key_length", pw.Params.KeyLength)
	v.SetDefault("password.policy.min_length", pw.Policy.MinLength)
	v.SetDefault("password.policy.max_length", pw.Policy.MaxLength)
	v.SetDefault("password.policy.require_upper", pw.Policy.RequireUpper)
	v.SetDefault("password.policy.require_lower", pw.Policy.RequireLower)
	v.SetDefault("password.policy.require_digit", pw.Policy.RequireDigit)
	v.SetDefault("password.policy.require_symbol", pw.Policy.RequireSymbol)
	v.SetDefault("password.policy.reject_very_weak", pw.Policy.RejectVeryWeak)

	tk := tokens.DefaultConfig()
	v.SetDefault("token.format", string(tk.Format))
	v.SetDefault("token.issuer", tk.Issuer)
	v.SetDefault("token.access_ttl", tk.AccessTTL)
	v.SetDefault("token.renewal_ttl", tk.RenewalTTL)
	v.SetDefault("token.clock_skew", tk.ClockSkew)
	v.SetDefault("token.access_secret", "")
	v.SetDefault("token.renewal_secret", "")
	v.SetDefault("token.access_key_hex", "")
	v.SetDefault("token.renewal_key_hex", "")

	ss := session.DefaultConfig()
	v.SetDefault("session.max_per_account", ss.MaxPerAccount)
	v.SetDefault("session.inactivity_timeout", ss.InactivityTimeout)
	v.SetDefault("session.ttl", ss.TTL)
	v.SetDefault("session.sweep_interval", ss.SweepInterval)
	v.SetDefault("session.sweep_timeout", ss.SweepTimeout)
	v.SetDefault("session.id_bytes", ss.IDBytes)

	gd := guard.DefaultConfig()
	v.SetDefault("guard.enabled", gd.Enabled)
	v.SetDefault("guard.key_prefix", gd.KeyPrefix)
	v.SetDefault("guard.hmac_key", "")
	for name, r := range gd.Rules {
		v.SetDefault("guard.rules."+name+".limit", r.Limit)
		v.SetDefault("guard.rules."+name+".window", r.Window)
	}

	api := authapi.DefaultConfig()
	v.SetDefault("api.trust_proxy", api.TrustProxy)
	v.SetDefault("api.max_body_bytes", api.MaxBodyBytes)
	v.SetDefault("api.cookie.name", api.Cookie.Name)
	v.SetDefault("api.cookie.path", api.Cookie.Path)
	v.SetDefault("api.cookie.domain", api.Cookie.Domain)
	v.SetDefault("api.cookie.secure", api.Cookie.Secure)
	v.SetDefault("api.cookie.same_site", api.Cookie.SameSite)

	rt := realtime.DefaultConfig()
	v.SetDefault("realtime.origin_required", rt.OriginRequired)
	v.SetDefault("realtime.allowed_origins", rt.AllowedOrigins)
	v.SetDefault("realtime.write_timeout", rt.WriteTimeout)
	v.SetDefault("realtime.heartbeat_interval", rt.HeartbeatInterval)
	v.SetDefault("realtime.heartbeat_timeout", rt.HeartbeatTimeout)
	v.SetDefault("realtime.send_queue_size", rt.SendQueueSize)
}
