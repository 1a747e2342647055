package api

import (
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/version"
)

// metrics owns the server's prometheus registry. Each server gets its own
// registry so tests can build several without duplicate registration.
type metrics struct {
	registry  *prometheus.Registry
	startTime time.Time
	wsClients atomic.Int64
}

func boolGauge(f func() bool) func() float64 {
	return func() float64 {
		if f() {
			return 1
		}
		return 0
	}
}

func newMetrics(s *Server) *metrics {
	m := &metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	labels := prometheus.Labels{
		"game":     s.gameID,
		"instance": hostname,
	}

	reg := s.manager.Registry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		events.Collector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_build_info",
			Help:        "Build information, value is always 1.",
			ConstLabels: prometheus.Labels{"game": s.gameID, "version": version.Version},
		}, func() float64 { return 1 }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_uptime_seconds",
			Help:        "Number of seconds since the server started.",
			ConstLabels: labels,
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_sessions_active",
			Help:        "Number of sessions currently in progress.",
			ConstLabels: labels,
		}, func() float64 { return float64(s.manager.Active()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_registry_entries",
			Help:        "Number of outcomes recorded in the registry.",
			ConstLabels: labels,
		}, func() float64 { return float64(reg.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_registry_capacity",
			Help:        "Maximum number of registry entries.",
			ConstLabels: labels,
		}, func() float64 { return float64(reg.Capacity()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "story_registry_dropped_total",
			Help:        "Outcomes not recorded because the registry was full.",
			ConstLabels: labels,
		}, func() float64 { return float64(reg.Dropped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_ws_clients",
			Help:        "Number of active WebSocket event stream connections.",
			ConstLabels: labels,
		}, func() float64 { return float64(m.wsClients.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_mqtt_connected",
			Help:        "Whether the MQTT broker is connected (1) or not (0).",
			ConstLabels: labels,
		}, boolGauge(func() bool { _, ok := s.readiness.MQTT(); return ok })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "story_postgres_connected",
			Help:        "Whether PostgreSQL is connected (1) or not (0).",
			ConstLabels: labels,
		}, boolGauge(func() bool { _, ok := s.readiness.Postgres(); return ok })),
	)

	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
