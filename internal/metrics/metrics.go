// Package metrics exposes the node's supervisor state and activity
// counters in Prometheus format.
//
// A private registry is used so the exposition contains only node metrics
// plus the Go and process collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
)

const namespace = "graylogic_node"

// Sources supplies the values read at scrape time. Nil functions are
// skipped.
type Sources struct {
	Snapshot func() supervisor.Snapshot
	Session  func() session.Stats
	Updates  func() uint64
	Feeds    func() uint64
	Dropped  func() uint64
}

// Metrics owns the registry.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
}

var _ supervisor.Observer = (*Metrics)(nil)

// New registers every collector for src.
func New(src Sources) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "transitions_total",
			Help:      "Supervisor state transitions.",
		}, []string{"from", "to"}),
	}
	reg.MustRegister(m.transitions)

	if src.Snapshot != nil {
		snap := src.Snapshot
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "supervisor",
				Name:      "state",
				Help:      "Current state: 0 link down, 1 link up session down, 2 session up.",
			}, func() float64 { return float64(snap().State) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "status",
				Name:      "color",
				Help:      "Current indicator colour as packed 0xRRGGBB.",
			}, func() float64 { return float64(snap().Color) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "init_failed",
				Help:      "1 if the application reported an initialisation failure.",
			}, func() float64 { return boolFloat(snap().InitFailed) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "supervisor",
				Name:      "iterations_total",
				Help:      "Supervisor loop iterations.",
			}, func() float64 { return float64(snap().Iterations) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "link",
				Name:      "disconnects_total",
				Help:      "Link disconnect events.",
			}, func() float64 { return float64(snap().Disconnects) }),
		)
	}

	if src.Session != nil {
		stats := src.Session
		reg.MustRegister(
			counterFunc("session", "connect_attempts_total", "Broker connect attempts.",
				func() uint64 { return stats().Attempts }),
			counterFunc("session", "connect_failures_total", "Failed broker connect attempts.",
				func() uint64 { return stats().Failures }),
			counterFunc("session", "messages_total", "Inbound messages dispatched.",
				func() uint64 { return stats().Messages }),
		)
	}
	if src.Updates != nil {
		reg.MustRegister(counterFunc("update", "completed_total", "Completed firmware updates.", src.Updates))
	}
	if src.Feeds != nil {
		reg.MustRegister(counterFunc("watchdog", "feeds_total", "Watchdog feeds.", src.Feeds))
	}
	if src.Dropped != nil {
		reg.MustRegister(counterFunc("session", "inbound_dropped_total", "Inbound messages dropped on a full queue.", src.Dropped))
	}

	return m
}

func counterFunc(subsystem, name, help string, fn func() uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveTransition counts t.
func (m *Metrics) ObserveTransition(t supervisor.Transition) {
	m.transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
