package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archetype_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archetype_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archetype_llm_requests_total",
		Help: "Total LLM requests",
	}, []string{"provider", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archetype_llm_request_duration_seconds",
		Help:    "LLM request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})

	LLMSchemaRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archetype_llm_schema_retries_total",
		Help: "Reissued LLM requests after a response without the forced tool call",
	})

	CandidateEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archetype_candidate_evaluations_total",
		Help: "Candidate evaluations by outcome",
	}, []string{"outcome"})

	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archetype_task_duration_seconds",
		Help:    "Duration of a single candidate forward call",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archetype_mutations_total",
		Help: "Mutation attempts by outcome",
	}, []string{"outcome"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archetype_generation_duration_seconds",
		Help:    "Wall time of one evolutionary generation",
		Buckets: prometheus.ExponentialBuckets(10, 2, 10),
	})

	PopulationSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archetype_population_size",
		Help: "Number of frameworks in the active population",
	})
)
