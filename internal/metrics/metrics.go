// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roundtable"

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeBlocked = "blocked"
)

// Metrics groups every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	Turns         *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	Directives    *prometheus.CounterVec
	ToolCalls     *prometheus.CounterVec
	Tasks         *prometheus.CounterVec
	RemoteCalls   *prometheus.HistogramVec
	RunningLoops  prometheus.Gauge
	WSConnections prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Participant turns by outcome.",
		}, []string{"participant", "outcome"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a participant turn including tool sub-turns.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_total",
			Help:      "Directives handled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "External tool calls by outcome.",
		}, []string{"outcome"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Background tasks by name and outcome.",
		}, []string{"task", "outcome"}),
		RemoteCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of remote model calls by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),
		RunningLoops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_loops",
			Help:      "Conversations whose turn loop is running.",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Turns, m.TurnDuration, m.Directives, m.ToolCalls, m.Tasks,
		m.RemoteCalls, m.RunningLoops, m.WSConnections,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRemoteCall records the latency of a remote call started at start.
func (m *Metrics) ObserveRemoteCall(operation string, start time.Time) {
	m.RemoteCalls.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// TaskFinished is a tasks.Options.OnFinish hook.
func (m *Metrics) TaskFinished(name string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.Tasks.WithLabelValues(name, outcome).Inc()
}
