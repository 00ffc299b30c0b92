package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

// newRouter mounts the API behind the request timeout and leaves /ws, /health
// and /metrics outside it.
func (a *App) newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(WithRequestLogging(a.log, a.metrics.ObserveHTTP))
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Method(http.MethodGet, "/ws", a.ws)

	r.Group(func(r chi.Router) {
		r.Use(WithSecurityHeaders)
		r.Use(middleware.Timeout(a.cfg.HTTP.RequestTimeout))
		a.auth.Register(r)
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: map[string]string{
		"database": checkDB(r, a.pool),
		"redis":    checkRedis(r, a.rdb),
	}}

	status := http.StatusOK
	for name, c := range resp.Checks {
		if c == "error" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			a.log.WarnContext(r.Context(), "health.check.fail", "check", name)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func checkDB(r *http.Request, pool *pgxpool.Pool) string {
	if pool == nil {
		return "disabled"
	}
	if err := PingDB(r.Context(), pool, healthTimeout); err != nil {
		return "error"
	}
	return "ok"
}

func checkRedis(r *http.Request, rdb redis.UniversalClient) string {
	if rdb == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return "error"
	}
	return "ok"
}
