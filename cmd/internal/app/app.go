// Package app wires the sessiond runtime: config, logging, stores, the event
// broadcaster, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sessiond/cmd/identity"
	authapi "sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/auth/tokens"
	"sessiond/cmd/internal/events"
	"sessiond/cmd/internal/guard"
	"sessiond/cmd/internal/realtime"
	"sessiond/cmd/security/token"
)

// App is the sessiond runtime. It owns every process-wide handle.
type App struct {
	cfg     Config
	log     *slog.Logger
	metrics *Metrics

	pool *pgxpool.Pool
	rdb  redis.UniversalClient

	broadcaster *events.Broadcaster
	sweeper     *session.Sweeper
	hub         *realtime.Hub
	ws          *realtime.WSGateway
	auth        *authapi.Handler

	handler http.Handler
}

// New validates cfg and builds every component. Nothing runs until Run.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.Log, nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	accounts, sessions, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		return nil, err
	}

	bus, err := a.newBus()
	if err != nil {
		return nil, err
	}
	a.broadcaster, err = events.NewBroadcaster(bus, cfg.Events.Broadcaster, log,
		events.WithDeliveryHook(a.metrics.ObserveDelivery))
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	a.hub = realtime.NewHub(log, realtime.WithConnectionGauge(a.metrics.SetWSConnections))
	a.broadcaster.Subscribe(a.metrics.ObserveEvent)
	a.broadcaster.Subscribe(a.hub.Dispatch)

	verifier, err := identity.NewVerifier(accounts, cfg.Password, log)
	if err != nil {
		return nil, err
	}
	sessionSvc, err := session.NewService(cfg.Session, sessions, a.broadcaster, log)
	if err != nil {
		return nil, err
	}
	a.sweeper = session.NewSweeper(sessions, cfg.Session, log, session.WithSweepHook(a.metrics.Swept))

	tokenCfg := cfg.Token
	if !cfg.Production() {
		var generated bool
		if tokenCfg, generated, err = withDevSecrets(tokenCfg); err != nil {
			return nil, err
		}
		if generated {
			log.Warn("security.token.ephemeral_keys", "format", tokenCfg.Format)
		}
	}
	issuer, err := tokens.NewIssuer(tokenCfg)
	if err != nil {
		return nil, err
	}

	limiter, err := a.newLimiter()
	if err != nil {
		return nil, err
	}

	a.auth, err = authapi.NewHandler(log, cfg.API, authapi.Deps{
		Accounts: verifier,
		Sessions: sessionSvc,
		Tokens:   issuer,
		Limiter:  limiter,
		Events:   a.broadcaster,
	})
	if err != nil {
		return nil, err
	}

	a.ws, err = realtime.NewWSGateway(log, a.hub,
		func(ctx context.Context, raw string) (string, string, error) {
			p, err := a.auth.Authenticate(ctx, raw)
			return p.AccountID, p.SessionID, err
		},
		func(ctx context.Context, sessionID, accountID string) error {
			_, err := sessionSvc.Authenticate(ctx, sessionID, accountID)
			return err
		},
		cfg.Realtime,
	)
	if err != nil {
		return nil, err
	}

	a.handler = a.newRouter()
	return a, nil
}

// Handler is the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) openStores(ctx context.Context) (identity.Store, session.Store, error) {
	if a.cfg.Database.URL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), session.NewMemoryStore(), nil
	}

	if a.cfg.Database.AutoMigrate {
		if err := Migrate(a.cfg.Database.URL); err != nil {
			return nil, nil, err
		}
		a.log.Info("db.migrated")
	}

	pool, err := NewDBPool(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	a.pool = pool
	a.log.Info("db.enabled.postgres_store")

	accounts, err := identity.NewPostgresStore(pool)
	if err != nil {
		return nil, nil, err
	}
	sessions, err := session.NewPostgresStore(pool)
	if err != nil {
		return nil, nil, err
	}
	return accounts, sessions, nil
}

func (a *App) openRedis(ctx context.Context) error {
	if a.cfg.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb
	return nil
}

func (a *App) newBus() (events.Bus, error) {
	switch a.cfg.Events.Bus {
	case BusRedis:
		if a.rdb == nil {
			return nil, errors.New("events: redis bus without a redis client")
		}
		return events.NewRedisBus(a.rdb), nil
	case BusKafka:
		return events.NewKafkaBus(a.cfg.Events.Kafka), nil
	default:
		return events.NewLogBus(a.log), nil
	}
}

func (a *App) newLimiter() (*guard.Limiter, error) {
	keys := token.NewHasher(a.cfg.Guard.HMACKey)
	if !keys.Keyed() {
		a.log.Warn("guard.keys.unkeyed")
	}

	var counter guard.Counter = guard.NewMemoryCounter(nil)
	if a.rdb != nil {
		counter = guard.NewRedisCounter(a.rdb)
	}
	return guard.NewLimiter(a.cfg.Guard.Limits, counter, keys, a.log,
		guard.WithRejectHook(a.metrics.RateLimited))
}

// Run serves HTTP, runs the sweeper and delivers events until ctx is done,
// then shuts everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	a.broadcaster.Start()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

	h := a.cfg.HTTP
	srv := &http.Server{
		Addr:              h.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: h.ReadHeaderTimeout,
		ReadTimeout:       h.ReadTimeout,
		WriteTimeout:      h.WriteTimeout,
		IdleTimeout:       h.IdleTimeout,
		MaxHeaderBytes:    h.MaxHeaderBytes,
	}

	a.log.Info("server.start",
		"addr", h.Addr,
		"env", a.cfg.Env,
		"db_enabled", a.pool != nil,
		"redis_enabled", a.rdb != nil,
		"events_bus", a.cfg.Events.Bus,
		"token_format", a.cfg.Token.Format,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}
	stopSweep()

	if err := a.Close(shutdownCtx); err != nil {
		a.log.Error("server.close.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// Close drains pending events and releases the pool and Redis client.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.broadcaster != nil {
		err = a.broadcaster.Close(ctx)
		if err != nil {
			a.log.Error("events.close.fail", "err", err, "stats", a.broadcaster.Stats())
		}
	}
	a.release()
	return err
}

func (a *App) release() {
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
