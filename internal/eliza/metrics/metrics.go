// Package metrics exposes conversation counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdobrica/Eliza/internal/eliza/engine"
	"github.com/bdobrica/Eliza/internal/eliza/session"
)

// Reload results.
const (
	ReloadOK    = "ok"
	ReloadError = "error"
)

// Metrics holds the collectors on a dedicated registry. It implements
// session.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Turns          *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	SessionsEnded  *prometheus.CounterVec
	ScriptReloads  *prometheus.CounterVec
	RateLimited    *prometheus.CounterVec
	Commands       *prometheus.CounterVec
}

var _ session.Observer = (*Metrics)(nil)

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Turns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eliza_turns_total",
				Help: "Total number of conversation turns by reply source",
			},
			[]string{"outcome"},
		),
		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "eliza_sessions_active",
				Help: "Number of active conversations",
			},
		),
		SessionsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "eliza_sessions_total",
				Help: "Total number of conversations started",
			},
		),
		SessionsEnded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eliza_sessions_ended_total",
				Help: "Total number of conversations ended by reason",
			},
			[]string{"reason"},
		),
		ScriptReloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eliza_script_reloads_total",
				Help: "Total number of script reload attempts by result",
			},
			[]string{"result"},
		),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eliza_rate_limited_total",
				Help: "Total number of messages dropped by the rate limiter",
			},
			[]string{"transport"},
		),
		Commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eliza_commands_total",
				Help: "Total number of control commands by name",
			},
			[]string{"command"},
		),
	}
}

// Registry returns the dedicated registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted implements session.Observer.
func (m *Metrics) SessionStarted(session.Info) {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionEnded implements session.Observer.
func (m *Metrics) SessionEnded(_ session.Info, reason session.EndReason) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(string(reason)).Inc()
}

// TurnCompleted implements session.Observer.
func (m *Metrics) TurnCompleted(_ session.Info, outcome engine.Outcome) {
	m.Turns.WithLabelValues(string(outcome)).Inc()
}

// ScriptReloaded records a reload attempt.
func (m *Metrics) ScriptReloaded(err error) {
	if err != nil {
		m.ScriptReloads.WithLabelValues(ReloadError).Inc()
		return
	}
	m.ScriptReloads.WithLabelValues(ReloadOK).Inc()
}
