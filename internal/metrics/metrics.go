// Package metrics exposes the control plane's Prometheus collectors:
// event-loop throughput, agent-run outcomes, reconciler tick latency,
// executor command outcomes, and retry attempts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds decree's collectors, separate from the default global
// registry so a host process can mount it wherever it likes.
var Registry = prometheus.NewRegistry()

var (
	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decree",
			Subsystem: "loop",
			Name:      "events_processed_total",
			Help:      "Total events processed by the event loop, by kind.",
		},
		[]string{"kind"},
	)

	eventProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "decree",
			Subsystem: "loop",
			Name:      "event_process_duration_seconds",
			Help:      "Time to run reducer+handlers+executor dispatch for one event.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"kind"},
	)

	agentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decree",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Total agent runs by role and terminal outcome.",
		},
		[]string{"role", "outcome"},
	)

	agentRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "decree",
			Subsystem: "agent",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of an agent run from request to terminal event.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"role"},
	)

	reconcilerTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "decree",
			Subsystem: "reconciler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one poller tick.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"poller"},
	)

	reconcilerTickErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decree",
			Subsystem: "reconciler",
			Name:      "tick_errors_total",
			Help:      "Total poller ticks that failed to list from the provider.",
		},
		[]string{"poller"},
	)

	commandOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decree",
			Subsystem: "executor",
			Name:      "command_outcomes_total",
			Help:      "Total commands executed, by command type and outcome.",
		},
		[]string{"command", "outcome"},
	)

	retryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decree",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total retry attempts, by final outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		eventsProcessed,
		eventProcessDuration,
		agentRuns,
		agentRunDuration,
		reconcilerTickDuration,
		reconcilerTickErrors,
		commandOutcomes,
		retryAttempts,
	)
}

// Handler returns the HTTP handler serving decree's registry in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordEventProcessed records one event loop iteration.
func RecordEventProcessed(kind string, d time.Duration) {
	eventsProcessed.WithLabelValues(kind).Inc()
	eventProcessDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAgentRun records an agent run's terminal outcome and duration.
func RecordAgentRun(role, outcome string, d time.Duration) {
	agentRuns.WithLabelValues(role, outcome).Inc()
	agentRunDuration.WithLabelValues(role).Observe(d.Seconds())
}

// RecordReconcilerTick records one poller tick's duration and whether it
// errored.
func RecordReconcilerTick(poller string, d time.Duration, err error) {
	reconcilerTickDuration.WithLabelValues(poller).Observe(d.Seconds())
	if err != nil {
		reconcilerTickErrors.WithLabelValues(poller).Inc()
	}
}

// RecordCommandOutcome records one executor command's outcome.
func RecordCommandOutcome(command, outcome string) {
	commandOutcomes.WithLabelValues(command, outcome).Inc()
}

// RecordRetryOutcome records the final outcome of a retry.Do call.
func RecordRetryOutcome(outcome string) {
	retryAttempts.WithLabelValues(outcome).Inc()
}
