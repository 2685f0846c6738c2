package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "medrag"

// PipelineMetrics covers retrieval outcomes, initialization and upstream resilience.
// It satisfies resilience.Observer.
type PipelineMetrics struct {
	service string

	queriesTotal        *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
	hypothesisFallbacks *prometheus.CounterVec
	rerankDegraded      *prometheus.CounterVec
	initializations     *prometheus.CounterVec
	domainDocuments     *prometheus.GaugeVec
	upstreamRetries     *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		service: service,
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "queries_total",
				Help:      "Total retrieval requests by routed domain and outcome.",
			},
			[]string{"service", "domain", "status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "query_duration_seconds",
				Help:      "End-to-end retrieval duration in seconds.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320},
			},
			[]string{"service", "domain"},
		),
		hypothesisFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "hypothesis_fallbacks_total",
				Help:      "Requests that searched with the raw query because hypothesis generation failed.",
			},
			[]string{"service"},
		),
		rerankDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "rerank_degraded_scores_total",
				Help:      "Candidates scored 0 because the scorer failed or returned an invalid score.",
			},
			[]string{"service"},
		),
		initializations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "initializations_total",
				Help:      "Initialization attempts by outcome.",
			},
			[]string{"service", "status"},
		),
		domainDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "domain_documents",
				Help:      "Indexed documents per domain.",
			},
			[]string{"service", "domain"},
		),
		upstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Retried upstream calls by operation.",
			},
			[]string{"service", "operation"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions by operation and target state.",
			},
			[]string{"service", "operation", "state"},
		),
	}
	registerer.MustRegister(
		m.queriesTotal,
		m.queryDuration,
		m.hypothesisFallbacks,
		m.rerankDegraded,
		m.initializations,
		m.domainDocuments,
		m.upstreamRetries,
		m.breakerTransitions,
	)
	return m
}

// QueryObservation is the subset of a retrieval outcome that is exported.
type QueryObservation struct {
	Domain             string
	Duration           time.Duration
	HypothesisFallback bool
	DegradedScores     int
	Err                error
}

func (m *PipelineMetrics) RecordQuery(obs QueryObservation) {
	domainLabel := obs.Domain
	if domainLabel == "" {
		domainLabel = "unknown"
	}
	status := "success"
	if obs.Err != nil {
		status = "error"
	}
	m.queriesTotal.WithLabelValues(m.service, domainLabel, status).Inc()
	if obs.Err != nil {
		return
	}
	m.queryDuration.WithLabelValues(m.service, domainLabel).Observe(obs.Duration.Seconds())
	if obs.HypothesisFallback {
		m.hypothesisFallbacks.WithLabelValues(m.service).Inc()
	}
	if obs.DegradedScores > 0 {
		m.rerankDegraded.WithLabelValues(m.service).Add(float64(obs.DegradedScores))
	}
}

func (m *PipelineMetrics) RecordInitialization(domains map[string]int, err error) {
	if err != nil {
		m.initializations.WithLabelValues(m.service, "error").Inc()
		return
	}
	m.initializations.WithLabelValues(m.service, "success").Inc()
	for name, count := range domains {
		m.domainDocuments.WithLabelValues(m.service, name).Set(float64(count))
	}
}

func (m *PipelineMetrics) ObserveRetry(operation string) {
	m.upstreamRetries.WithLabelValues(m.service, operation).Inc()
}

func (m *PipelineMetrics) ObserveBreakerState(operation, state string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, state).Inc()
}
