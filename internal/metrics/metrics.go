package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics service.
type Metrics struct {
	// Ingestion metrics
	DatasetsUploaded  prometheus.Counter
	RowsNormalized    prometheus.Counter
	MalformedDatasets *prometheus.CounterVec
	ExcludedUsers     prometheus.Counter

	// Pipeline metrics
	StageLatency *prometheus.HistogramVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// System metrics
	ActiveSessions prometheus.Gauge
	DBConnections  *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

var (
	// DefaultMetrics is the global metrics instance
	DefaultMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		// Ingestion metrics
		DatasetsUploaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datasets_uploaded_total",
				Help:      "Total number of datasets accepted",
			},
		),
		RowsNormalized: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_normalized_total",
				Help:      "Total number of event rows normalized",
			},
		),
		MalformedDatasets: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_datasets_total",
				Help:      "Uploads rejected during normalization",
			},
			[]string{"reason"},
		),
		ExcludedUsers: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "excluded_users_total",
				Help:      "Users dropped for lacking an anchor",
			},
		),

		// Pipeline metrics
		StageLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_latency_seconds",
				Help:      "Analysis stage latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"stage"},
		),

		// Cache metrics
		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Aggregate cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Aggregate cache misses",
			},
		),

		// System metrics
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of resident analysis sessions",
			},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordUpload records an accepted dataset.
func (m *Metrics) RecordUpload(rows, excludedUsers int) {
	m.DatasetsUploaded.Inc()
	m.RowsNormalized.Add(float64(rows))
	m.ExcludedUsers.Add(float64(excludedUsers))
}

// RecordMalformedDataset records a rejected upload.
func (m *Metrics) RecordMalformedDataset(reason string) {
	m.MalformedDatasets.WithLabelValues(reason).Inc()
}

// RecordStage records one analysis stage duration.
func (m *Metrics) RecordStage(stage string, latency time.Duration) {
	m.StageLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

// RecordCacheHit records an aggregate cache lookup result.
func (m *Metrics) RecordCacheHit(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}
