package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScreeningDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entity_screening_duration_seconds",
			Help:    "Screening request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"category"},
	)

	ScreeningTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_requests_total",
			Help: "Total number of screening requests",
		},
		[]string{"status"},
	)

	SearchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_search_queries_total",
			Help: "Search provider calls by outcome",
		},
		[]string{"provider", "status"},
	)

	ResultsPerScreening = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entity_screening_results_count",
			Help:    "Number of search results per screening",
			Buckets: []float64{0, 1, 3, 5, 10, 20, 50, 100},
		},
	)

	ScoringDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_scoring_dispatched_total",
			Help: "Scoring requests handed to the messaging fabric",
		},
		[]string{"status"},
	)

	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_assessments_total",
			Help: "Stored risk assessments by level",
		},
		[]string{"risk_level"},
	)

	ScoringFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_scoring_failures_total",
			Help: "Scoring failures by reason",
		},
		[]string{"reason"},
	)

	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entity_screening_risk_score",
			Help:    "Overall risk scores of stored assessments",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	StorageWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_storage_writes_total",
			Help: "Storage writes by record type and outcome",
		},
		[]string{"record_type", "status"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_screening_notifications_total",
			Help: "Notification deliveries by channel, sink and outcome",
		},
		[]string{"channel", "sink", "status"},
	)

	TaxonomyKeywords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entity_screening_taxonomy_keywords",
			Help: "Keywords per taxonomy category",
		},
		[]string{"category"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(ScreeningDuration)
		prometheus.MustRegister(ScreeningTotal)
		prometheus.MustRegister(SearchQueries)
		prometheus.MustRegister(ResultsPerScreening)
		prometheus.MustRegister(ScoringDispatched)
		prometheus.MustRegister(AssessmentsTotal)
		prometheus.MustRegister(ScoringFailures)
		prometheus.MustRegister(RiskScore)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(StorageWrites)
		prometheus.MustRegister(NotificationsSent)
		prometheus.MustRegister(TaxonomyKeywords)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
