// Package metrics exposes Prometheus counters for the rule engine, the
// configuration graph and the watch dispatcher. A nil *Registry is valid and
// records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gofirewalld"

type Registry struct {
	reg *prometheus.Registry

	ToolInvocations   *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	StaleLocksRemoved prometheus.Counter
	TablesAvailable   prometheus.Gauge

	GraphMutations *prometheus.CounterVec
	GraphObjects   *prometheus.GaugeVec
	WatchEvents    *prometheus.CounterVec
	WatchErrors    prometheus.Counter
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tool_invocations_total",
			Help:      "External tool invocations by tool and result.",
		}, []string{"tool", "result"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tool_duration_seconds",
			Help:      "Duration of external tool invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		StaleLocksRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "stale_locks_removed_total",
			Help:      "Dangling lock files removed before a tool invocation.",
		}),
		TablesAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tables_available",
			Help:      "Tables that listed successfully during the last probe.",
		}),
		GraphMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "mutations_total",
			Help:      "Configuration graph mutations by kind and operation.",
		}, []string{"kind", "op"}),
		GraphObjects: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "objects",
			Help:      "Live configuration objects by kind.",
		}, []string{"kind"}),
		WatchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "events_total",
			Help:      "Path change events by classification.",
		}, []string{"class"}),
		WatchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "errors_total",
			Help:      "Path change events that failed to apply.",
		}),
	}
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ToolRun(tool string, ok bool, seconds float64) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.ToolInvocations.WithLabelValues(tool, result).Inc()
	r.ToolDuration.WithLabelValues(tool).Observe(seconds)
}

func (r *Registry) StaleLock() {
	if r == nil {
		return
	}
	r.StaleLocksRemoved.Inc()
}

func (r *Registry) Tables(n int) {
	if r == nil {
		return
	}
	r.TablesAvailable.Set(float64(n))
}

func (r *Registry) Mutation(kind, op string) {
	if r == nil {
		return
	}
	r.GraphMutations.WithLabelValues(kind, op).Inc()
}

func (r *Registry) Objects(kind string, n int) {
	if r == nil {
		return
	}
	r.GraphObjects.WithLabelValues(kind).Set(float64(n))
}

func (r *Registry) WatchEvent(class string) {
	if r == nil {
		return
	}
	r.WatchEvents.WithLabelValues(class).Inc()
}

func (r *Registry) WatchError() {
	if r == nil {
		return
	}
	r.WatchErrors.Inc()
}
