// Package observability wires the Prometheus registry used by the loader.
// Sentry-related error telemetry is handled in the telemetry package.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tphakala/wildfire-loader/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Loader   *metrics.LoaderMetrics
}

// NewMetrics creates a private registry with loader and Go runtime metrics.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}

	loaderMetrics, err := metrics.NewLoaderMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create loader metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Loader:   loaderMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the current metric values to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := metrics.WriteTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
