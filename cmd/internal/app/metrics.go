package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sessiond/cmd/internal/events"
)

// Metrics owns a private registry; nothing is registered globally.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	events        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	sweepDeleted  prometheus.Counter
	sweepFailures prometheus.Counter
	wsConnections prometheus.Gauge
}

// NewMetrics registers the sessiond collectors plus the Go and process ones.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sessiond_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_events_total",
			Help: "Lifecycle events accepted for publishing, by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_event_deliveries_total",
			Help: "Final outcome of bus deliveries.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_rate_limited_total",
			Help: "Requests rejected by the abuse guard, by rule.",
		}, []string{"rule"}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sweep_deleted_total",
			Help: "Sessions removed by the expiry sweeper.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sweep_failures_total",
			Help: "Sweeps that ended in an error.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessiond_ws_connections",
			Help: "Open realtime sockets.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.events,
		m.deliveries,
		m.rateLimited,
		m.sweepDeleted,
		m.sweepFailures,
		m.wsConnections,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveHTTP matches RequestObserver.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveEvent is a broadcaster subscriber.
func (m *Metrics) ObserveEvent(ev events.Event) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
}

// ObserveDelivery matches events.WithDeliveryHook.
func (m *Metrics) ObserveDelivery(_ events.Kind, ok bool) {
	if ok {
		m.deliveries.WithLabelValues("delivered").Inc()
		return
	}
	m.deliveries.WithLabelValues("failed").Inc()
}

// RateLimited matches guard.WithRejectHook.
func (m *Metrics) RateLimited(rule string) {
	m.rateLimited.WithLabelValues(rule).Inc()
}

// Swept matches session.WithSweepHook.
func (m *Metrics) Swept(deleted int64, err error) {
	if err != nil {
		m.sweepFailures.Inc()
		return
	}
	m.sweepDeleted.Add(float64(deleted))
}

// SetWSConnections matches realtime.WithConnectionGauge.
func (m *Metrics) SetWSConnections(n int) {
	m.wsConnections.Set(float64(n))
}
