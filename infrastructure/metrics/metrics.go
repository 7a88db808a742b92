// Package metrics provides Prometheus metrics collection for the core
// job-orchestration and matching plane, adapted from the teacher's
// infrastructure/metrics package (HTTP/DB-shaped counters) to this domain's
// events, completions, and matches.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus collectors used across the core components.
type Metrics struct {
	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
	EventsDLQd      *prometheus.CounterVec
	EventsDuplicate *prometheus.CounterVec
	RedeliveryTotal *prometheus.CounterVec

	StageCompletionsEmitted *prometheus.CounterVec
	StagePartialCompletions *prometheus.CounterVec

	PhaseTransitionsTotal *prometheus.CounterVec
	JobsActive            prometheus.Gauge
	JobsFailed            prometheus.Counter
	JobsCancelled         prometheus.Counter

	MatchesAccepted   prometheus.Counter
	MatchRequestsSeen prometheus.Counter

	HandlerDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// so tests can use a throwaway registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_events_published_total",
			Help:        "Total events published to the broker, by topic.",
			ConstLabels: constLabels,
		}, []string{"topic"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_events_consumed_total",
			Help:        "Total events successfully consumed, by topic.",
			ConstLabels: constLabels,
		}, []string{"topic"}),
		EventsDLQd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_events_dlq_total",
			Help:        "Total events routed to a dead letter queue, by topic and reason.",
			ConstLabels: constLabels,
		}, []string{"topic", "reason"}),
		EventsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_events_duplicate_total",
			Help:        "Total events short-circuited by the idempotency ledger, by topic.",
			ConstLabels: constLabels,
		}, []string{"topic"}),
		RedeliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_events_redelivery_total",
			Help:        "Total redelivery attempts, by topic.",
			ConstLabels: constLabels,
		}, []string{"topic"}),

		StageCompletionsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_stage_completions_emitted_total",
			Help:        "Total *.completed events emitted, by stage.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		StagePartialCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_stage_partial_completions_total",
			Help:        "Total *.completed events emitted with has_partial_completion=true, by stage.",
			ConstLabels: constLabels,
		}, []string{"stage"}),

		PhaseTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pvm_phase_transitions_total",
			Help:        "Total job phase transitions, by from and to phase.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		JobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pvm_jobs_active",
			Help:        "Jobs currently in a non-terminal phase.",
			ConstLabels: constLabels,
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pvm_jobs_failed_total",
			Help:        "Total jobs that reached the failed phase.",
			ConstLabels: constLabels,
		}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pvm_jobs_cancelled_total",
			Help:        "Total jobs that reached the cancelled phase.",
			ConstLabels: constLabels,
		}),

		MatchesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pvm_matches_accepted_total",
			Help:        "Total accepted product/video matches.",
			ConstLabels: constLabels,
		}),
		MatchRequestsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pvm_match_requests_total",
			Help:        "Total match.request events processed by the matcher engine.",
			ConstLabels: constLabels,
		}),

		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pvm_handler_duration_seconds",
			Help:        "Event handler duration in seconds, by topic.",
			ConstLabels: constLabels,
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"topic"}),
	}

	collectors := []prometheus.Collector{
		m.EventsPublished, m.EventsConsumed, m.EventsDLQd, m.EventsDuplicate, m.RedeliveryTotal,
		m.StageCompletionsEmitted, m.StagePartialCompletions,
		m.PhaseTransitionsTotal, m.JobsActive, m.JobsFailed, m.JobsCancelled,
		m.MatchesAccepted, m.MatchRequestsSeen, m.HandlerDuration,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			// Already registered (e.g. repeated test setup); ignore so callers
			// don't have to special-case registry reuse.
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = are
				continue
			}
		}
	}

	return m
}
