// Package metrics exposes Prometheus collectors for HTTP traffic and match
// activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry. All Record methods are
// safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	matchEvents     *prometheus.CounterVec
	joinOutcomes    *prometheus.CounterVec
	joinConflicts   prometheus.Counter
	logins          *prometheus.CounterVec
	wsClients       prometheus.Gauge
	hiddenMatches   prometheus.Counter
}

// New creates and registers the collectors under namespace
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		matchEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "match_events_total",
				Help:      "Total number of successful match mutations by type",
			},
			[]string{"type"},
		),
		joinOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "match_join_outcomes_total",
				Help:      "Total number of join attempts by outcome",
			},
			[]string{"outcome"},
		),
		joinConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_join_conflicts_total",
			Help:      "Total number of concurrent roster writes that had to be retried",
		}),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of login and registration attempts by result",
			},
			[]string{"action", "result"},
		),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket clients",
		}),
		hiddenMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_aged_out_total",
			Help:      "Total number of matches that left the visible window",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.matchEvents,
		m.joinOutcomes,
		m.joinConflicts,
		m.logins,
		m.wsClients,
		m.hiddenMatches,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and duration labelled by route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		statusStr := strconv.Itoa(status)

		m.requests.WithLabelValues(r.Method, path, statusStr).Inc()
		m.requestDuration.WithLabelValues(r.Method, path, statusStr).Observe(time.Since(start).Seconds())
	})
}

// RecordMatchEvent counts a successful mutation
func (m *Metrics) RecordMatchEvent(eventType string) {
	if m == nil {
		return
	}
	m.matchEvents.WithLabelValues(eventType).Inc()
}

// RecordJoin counts a join attempt by outcome
func (m *Metrics) RecordJoin(outcome string) {
	if m == nil {
		return
	}
	m.joinOutcomes.WithLabelValues(outcome).Inc()
}

// RecordJoinConflict counts a lost compare-and-set on a roster
func (m *Metrics) RecordJoinConflict() {
	if m == nil {
		return
	}
	m.joinConflicts.Inc()
}

// RecordAuth counts a login or registration attempt
func (m *Metrics) RecordAuth(action string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.logins.WithLabelValues(action, result).Inc()
}

// SetWebSocketClients sets the connected client gauge
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// RecordAgedOut counts matches that dropped out of the visible window
func (m *Metrics) RecordAgedOut(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.hiddenMatches.Add(float64(n))
}
