// Package observability holds the Prometheus collector and OpenTelemetry
// setup shared by the server.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each collector
// owns its registry so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Autosave metrics
	FlushesScheduled prometheus.Counter
	Flushes          *prometheus.CounterVec
	FlushDuration    *prometheus.HistogramVec

	// Session metrics
	ActiveSessions   prometheus.Gauge
	WebSocketClients prometheus.Gauge
}

// NewCollector creates a collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		FlushesScheduled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autosave_flushes_scheduled_total",
				Help:      "Change notifications that (re)armed the autosave timer",
			},
		),
		Flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "autosave_flushes_total",
				Help:      "Autosave flushes by outcome",
			},
			[]string{"outcome"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "autosave_flush_duration_seconds",
				Help:      "Time spent persisting a flush",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "editor_sessions_active",
				Help:      "Open editor sessions",
			},
		),
		WebSocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Connected save-status WebSocket clients",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.FlushesScheduled,
		c.Flushes,
		c.FlushDuration,
		c.ActiveSessions,
		c.WebSocketClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveHTTP records one finished request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) FlushScheduled() {
	c.FlushesScheduled.Inc()
}

func (c *Collector) FlushSkipped() {
	c.Flushes.WithLabelValues("skipped").Inc()
}

func (c *Collector) FlushPersisted(d time.Duration) {
	c.Flushes.WithLabelValues("persisted").Inc()
	c.FlushDuration.WithLabelValues("persisted").Observe(d.Seconds())
}

func (c *Collector) FlushFailed(d time.Duration) {
	c.Flushes.WithLabelValues("failed").Inc()
	c.FlushDuration.WithLabelValues("failed").Observe(d.Seconds())
}

func (c *Collector) SetActiveSessions(n int) {
	c.ActiveSessions.Set(float64(n))
}

func (c *Collector) SetWebSocketClients(n int) {
	c.WebSocketClients.Set(float64(n))
}
