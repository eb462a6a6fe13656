package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrorMetrics counts built errors by component and category.
type ErrorMetrics struct {
	registry    *prometheus.Registry
	errorsTotal *prometheus.CounterVec
}

// NewErrorMetrics creates and registers error metrics
func NewErrorMetrics(registry *prometheus.Registry) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		registry: registry,
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangelink_errors_total",
				Help: "Total number of errors by component and category",
			},
			[]string{"component", "category"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register error metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *ErrorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.errorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ErrorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.errorsTotal.Collect(ch)
}

// RecordError counts one error.
func (m *ErrorMetrics) RecordError(component, category string) {
	m.errorsTotal.WithLabelValues(component, category).Inc()
}
