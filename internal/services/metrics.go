package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. A Registerer is
// injected so tests can use an isolated registry.
type Metrics struct {
	RecommendationRequests *prometheus.CounterVec
	TrainingDuration       prometheus.Histogram
	GridSearchRuns         prometheus.Counter
	DatasetRatings         prometheus.Gauge
	DatasetClients         prometheus.Gauge
	DatasetProducts        prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecommendationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation requests by operation",
		}, []string{"operation"}),

		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recommendation_training_duration_seconds",
			Help:    "Duration of full model training runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		GridSearchRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_grid_search_runs_total",
			Help: "Number of hyperparameter grid searches actually executed",
		}),

		DatasetRatings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recommendation_dataset_ratings",
			Help: "Number of rating rows the engine was trained on",
		}),

		DatasetClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recommendation_dataset_clients",
			Help: "Number of distinct clients in the trained model",
		}),

		DatasetProducts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recommendation_dataset_products",
			Help: "Number of distinct products in the trained model",
		}),
	}
}
