package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoaderMetrics contains Prometheus metrics for loader operations.
type LoaderMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	rowsLoaded      prometheus.Counter
	openConnections prometheus.Gauge
	exportSizeBytes prometheus.Histogram
	partitions      prometheus.Gauge

	collectors []prometheus.Collector
}

// NewLoaderMetrics creates loader metrics and registers them with registry.
func NewLoaderMetrics(registry prometheus.Registerer) (*LoaderMetrics, error) {
	m := &LoaderMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LoaderMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildfire_loader_operations_total",
			Help: "Total number of loader operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wildfire_loader_operation_duration_seconds",
			Help:    "Time taken for loader operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~32s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildfire_loader_errors_total",
			Help: "Total number of loader errors by category",
		},
		[]string{"operation", "error_type"},
	)

	m.rowsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildfire_loader_rows_loaded_total",
		Help: "Total number of rows loaded from source queries",
	})

	m.openConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wildfire_loader_open_connections",
		Help: "Number of currently open source database connections",
	})

	m.exportSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wildfire_loader_export_size_bytes",
		Help:    "Size of exported Parquet files",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor4, BucketCount12), // 1KB to ~4GB
	})

	m.partitions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wildfire_loader_normalize_partitions",
		Help: "Number of partitions used by the last normalization pass",
	})

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.rowsLoaded,
		m.openConnections,
		m.exportSizeBytes,
		m.partitions,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *LoaderMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *LoaderMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *LoaderMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *LoaderMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *LoaderMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// AddRowsLoaded adds n to the loaded rows counter.
func (m *LoaderMetrics) AddRowsLoaded(n int64) {
	if n > 0 {
		m.rowsLoaded.Add(float64(n))
	}
}

// SetOpenConnections reports the number of open source connections.
func (m *LoaderMetrics) SetOpenConnections(n int64) {
	m.openConnections.Set(float64(n))
}

// ObserveExportSize records the size of an exported file.
func (m *LoaderMetrics) ObserveExportSize(bytes int64) {
	m.exportSizeBytes.Observe(float64(bytes))
}

// SetPartitions records the partition count of a normalization pass.
func (m *LoaderMetrics) SetPartitions(n int) {
	m.partitions.Set(float64(n))
}
