package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineStageDurationSeconds measures each startup pipeline stage
	PipelineStageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedview_pipeline_stage_duration_seconds",
			Help:    "Duration of startup pipeline stages (load, project, assemble, index)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// PipelineFailuresTotal counts fatal pipeline failures by error type
	PipelineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedview_pipeline_failures_total",
			Help: "Total number of fatal startup pipeline failures",
		},
		[]string{"type"},
	)

	// DatasetPoints is the number of rows in the loaded dataset
	DatasetPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedview_dataset_points",
			Help: "Number of feature vectors in the loaded dataset",
		},
	)

	// DatasetDimensions is the dimensionality of the loaded feature vectors
	DatasetDimensions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedview_dataset_dimensions",
			Help: "Dimensionality of the loaded feature vectors",
		},
	)

	// EmbeddingKLDivergence is the final KL divergence of the 3D embedding
	EmbeddingKLDivergence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedview_embedding_kl_divergence",
			Help: "KL divergence between high and low dimensional affinities after optimisation",
		},
	)

	// EmbeddingIterations is the number of gradient steps actually run
	EmbeddingIterations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedview_embedding_iterations",
			Help: "Gradient descent iterations performed by the projector",
		},
	)

	// MetadataReady is 1 once the point metadata has been published
	MetadataReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedview_metadata_ready",
			Help: "Whether the embedding metadata is ready to serve (0 or 1)",
		},
	)

	// HTTPRequestsTotal counts HTTP requests by route and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	// HTTPRequestDurationSeconds measures HTTP handler latency
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedview_http_request_duration_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ImageLookupsTotal counts image resolutions by result (served, not_found)
	ImageLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedview_image_lookups_total",
			Help: "Total number of image reference resolutions",
		},
		[]string{"result"},
	)

	// ImageBytesServed tracks bytes of image data written to clients
	ImageBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embedview_image_bytes_served_total",
			Help: "Total bytes of image data served",
		},
	)

	// NeighborQueriesTotal counts neighbour lookups by result
	NeighborQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedview_neighbor_queries_total",
			Help: "Total number of nearest neighbour queries",
		},
		[]string{"result"},
	)

	// RateLimitRequestsTotal counts rate limiter decisions
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedview_rate_limit_requests_total",
			Help: "Total number of requests checked by the rate limiter",
		},
		[]string{"status"},
	)
)
