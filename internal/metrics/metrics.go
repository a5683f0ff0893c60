package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Jauge service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingestion metrics.
	IngestRecordsTotal  prometheus.Counter
	IngestRejectedTotal *prometheus.CounterVec
	PricingMissesTotal  *prometheus.CounterVec

	// Collector (write-buffer) metrics.
	CollectorBufferSize    prometheus.Gauge
	CollectorFlushesTotal  *prometheus.CounterVec
	CollectorFlushDuration prometheus.Histogram
	CollectorRecordsTotal  prometheus.Counter

	// Retention and rate limiting.
	RetentionDeletedTotal    prometheus.Counter
	RateLimitRejectionsTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jauge_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jauge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		IngestRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jauge_ingest_records_total",
			Help: "Total number of usage records accepted for ingestion.",
		}),

		IngestRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jauge_ingest_rejected_total",
			Help: "Total number of usage records rejected at ingestion.",
		}, []string{"reason"}),

		PricingMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jauge_pricing_misses_total",
			Help: "Total number of ingested records with no pricing entry for their model.",
		}, []string{"model"}),

		CollectorBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jauge_collector_buffer_size",
			Help: "Current number of buffered usage records awaiting flush.",
		}),

		CollectorFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jauge_collector_flushes_total",
			Help: "Total number of collector flushes.",
		}, []string{"status"}),

		CollectorFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jauge_collector_flush_duration_seconds",
			Help:    "Duration of collector flush operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		CollectorRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jauge_collector_records_total",
			Help: "Total number of usage records written to storage.",
		}),

		RetentionDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jauge_retention_deleted_total",
			Help: "Total number of usage records removed by retention deletes.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jauge_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jauge_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	// Register all metrics.
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.IngestRecordsTotal,
		m.IngestRejectedTotal,
		m.PricingMissesTotal,
		m.CollectorBufferSize,
		m.CollectorFlushesTotal,
		m.CollectorFlushDuration,
		m.CollectorRecordsTotal,
		m.RetentionDeletedTotal,
		m.RateLimitRejectionsTotal,
		m.ServerStartTime,
	)

	// Set server start time.
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncIngestRejected increments the ingestion rejection counter for a reason.
func (m *Metrics) IncIngestRejected(reason string) {
	m.IngestRejectedTotal.WithLabelValues(reason).Inc()
}

// IncPricingMiss increments the pricing miss counter for a model.
func (m *Metrics) IncPricingMiss(model string) {
	m.PricingMissesTotal.WithLabelValues(model).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// ObserveFlush records the outcome of a collector flush.
func (m *Metrics) ObserveFlush(count int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.CollectorRecordsTotal.Add(float64(count))
	}
	m.CollectorFlushesTotal.WithLabelValues(status).Inc()
	m.CollectorFlushDuration.Observe(duration.Seconds())
}

// AddRetentionDeleted records the number of rows removed by a retention delete.
func (m *Metrics) AddRetentionDeleted(n int64) {
	m.RetentionDeletedTotal.Add(float64(n))
}
