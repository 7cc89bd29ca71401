package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arco",
			Subsystem: "launcher",
			Name:      "spawns_total",
			Help:      "Number of successful service spawns.",
		}, []string{"service"},
	)
	readyTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arco",
			Subsystem: "launcher",
			Name:      "ready_total",
			Help:      "Number of services that reached Ready.",
		}, []string{"service"},
	)
	unexpectedExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arco",
			Subsystem: "launcher",
			Name:      "unexpected_exits_total",
			Help:      "Number of services that died without a terminate request.",
		}, []string{"service"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arco",
			Subsystem: "launcher",
			Name:      "terminations_total",
			Help:      "Number of terminate requests, split by escalation outcome.",
		}, []string{"service", "forced"},
	)
	readinessWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arco",
			Subsystem: "launcher",
			Name:      "readiness_wait_seconds",
			Help:      "Time spent waiting for a service's readiness target.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arco",
			Subsystem: "launcher",
			Name:      "state_transitions_total",
			Help:      "Lifecycle state transitions per service.",
		}, []string{"service", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "arco",
			Subsystem: "launcher",
			Name:      "current_state",
			Help:      "Current lifecycle state per service (1 = active state).",
		}, []string{"service", "state"},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// duplicate registrations are ignored.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{spawns, readyTransitions, unexpectedExits, terminations, readinessWait, stateTransitions, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the default registry, for mounting on the status server.
func Handler() http.Handler { return promhttp.Handler() }

func IncSpawn(service string)          { spawns.WithLabelValues(service).Inc() }
func IncReady(service string)          { readyTransitions.WithLabelValues(service).Inc() }
func IncUnexpectedExit(service string) { unexpectedExits.WithLabelValues(service).Inc() }

func IncTermination(service string, forced bool) {
	v := "false"
	if forced {
		v = "true"
	}
	terminations.WithLabelValues(service, v).Inc()
}

func ObserveReadinessWait(service string, seconds float64) {
	readinessWait.WithLabelValues(service).Observe(seconds)
}

// RecordStateTransition updates both the transition counter and the
// per-state gauges.
func RecordStateTransition(service, from, to string) {
	stateTransitions.WithLabelValues(service, from, to).Inc()
	currentState.WithLabelValues(service, from).Set(0)
	currentState.WithLabelValues(service, to).Set(1)
}
