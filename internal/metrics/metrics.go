package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drwatch",
			Subsystem: "monitor",
			Name:      "polls_total",
			Help:      "Number of probe readings taken.",
		}, []string{"probe"},
	)
	pollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drwatch",
			Subsystem: "monitor",
			Name:      "poll_errors_total",
			Help:      "Number of failed probe readings.",
		}, []string{"probe"},
	)
	utilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drwatch",
			Subsystem: "monitor",
			Name:      "utilization_percent",
			Help:      "Last reading reported by the probe.",
		}, []string{"probe"},
	)
	breaches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drwatch",
			Subsystem: "monitor",
			Name:      "breaches_total",
			Help:      "Number of readings above the threshold that started an incident.",
		},
	)
	failovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drwatch",
			Subsystem: "recovery",
			Name:      "failovers_total",
			Help:      "Failover attempts by result (moved, skipped, error).",
		}, []string{"result"},
	)
	restores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drwatch",
			Subsystem: "recovery",
			Name:      "restores_total",
			Help:      "Restore attempts by result (restored, skipped, error).",
		}, []string{"result"},
	)
	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drwatch",
			Subsystem: "confirm",
			Name:      "attempts_total",
			Help:      "Operator answers by outcome (affirmative, negative, error).",
		}, []string{"outcome"},
	)

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drwatch",
			Subsystem: "monitor",
			Name:      "state_transitions_total",
			Help:      "Number of monitor state transitions.",
		}, []string{"from", "to"},
	)

	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drwatch",
			Subsystem: "monitor",
			Name:      "current_state",
			Help:      "Current monitor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{polls, pollErrors, utilization, breaches, failovers, restores, confirmations, stateTransitions, currentStates}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveReading(probe string, percent float64) {
	if regOK.Load() {
		polls.WithLabelValues(probe).Inc()
		utilization.WithLabelValues(probe).Set(percent)
	}
}
func IncPollError(probe string) {
	if regOK.Load() {
		pollErrors.WithLabelValues(probe).Inc()
	}
}
func IncBreach() {
	if regOK.Load() {
		breaches.Inc()
	}
}
func IncFailover(result string) {
	if regOK.Load() {
		failovers.WithLabelValues(result).Inc()
	}
}
func IncRestore(result string) {
	if regOK.Load() {
		restores.WithLabelValues(result).Inc()
	}
}
func IncConfirmation(outcome string) {
	if regOK.Load() {
		confirmations.WithLabelValues(outcome).Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64 = 0
		if active {
			value = 1
		}
		currentStates.WithLabelValues(state).Set(value)
	}
}
