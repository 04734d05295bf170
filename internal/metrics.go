package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatroom/internal/storage"
)

// drop reasons for chatroom_messages_dropped_total
const (
	dropMalformed = "malformed"
	dropRejected  = "rejected"
	dropStorage   = "storage"
)

// Metrics owns a private Prometheus registry so several servers (tests) can
// coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	messagesPersisted *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	broadcasts        prometheus.Counter
	deliveryFailures  prometheus.Counter
	adminAuthFailures prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatroom_active_sessions",
			Help: "Currently registered chat sessions",
		}),
		messagesPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatroom_messages_persisted_total",
			Help: "Messages written to the store",
		}, []string{"kind"}),
		messagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatroom_messages_dropped_total",
			Help: "Inbound messages discarded before broadcast",
		}, []string{"reason"}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatroom_broadcasts_total",
			Help: "Payloads fanned out by the hub",
		}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatroom_delivery_failures_total",
			Help: "Sessions dropped because a broadcast could not be queued",
		}),
		adminAuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatroom_admin_auth_failures_total",
			Help: "Rejected admin logins and moderation requests",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatroom_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatroom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

func (m *Metrics) MessagePersisted(kind storage.Kind) {
	m.messagesPersisted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Broadcast() { m.broadcasts.Inc() }

func (m *Metrics) DeliveryFailed() { m.deliveryFailures.Inc() }

func (m *Metrics) AdminAuthFailed() { m.adminAuthFailures.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency labelled by chi route pattern.
// The chi wrapper keeps http.Hijacker so websocket upgrades still work.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
