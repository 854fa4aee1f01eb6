package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cwkhub/internal/scheduling"
)

// Metrics holds the collectors served on /metrics.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	availability *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cwkhub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cwkhub",
			Name:      "availability_checks_total",
			Help:      "Slot availability decisions.",
		}, []string{"result"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cwkhub",
			Name:      "slot_conflicts_total",
			Help:      "Rejected slots by conflict kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.requests, m.availability, m.conflicts)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// observe records one availability decision.
func (m *Metrics) observe(av scheduling.Availability) {
	if av.Available {
		m.availability.WithLabelValues("available").Inc()
		return
	}
	m.availability.WithLabelValues("unavailable").Inc()
	m.conflicts.WithLabelValues(conflictKind(av)).Inc()
}

func conflictKind(av scheduling.Availability) string {
	switch {
	case av.BlockID != "":
		return "block"
	case av.ConflictingSession != nil:
		return "session"
	case av.ConflictingInviteID != "":
		return "invite"
	default:
		return "other"
	}
}
