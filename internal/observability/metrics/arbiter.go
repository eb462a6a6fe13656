package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ArbiterMetrics contains metrics for the audio session arbiter.
type ArbiterMetrics struct {
	registry *prometheus.Registry

	state                  *prometheus.GaugeVec
	transitionsTotal       *prometheus.CounterVec
	volumeCorrectionsTotal *prometheus.CounterVec
	notificationDepth      prometheus.Gauge
	headsetPresent         prometheus.Gauge

	collectors []prometheus.Collector
}

// NewArbiterMetrics creates and registers arbiter metrics
func NewArbiterMetrics(registry *prometheus.Registry) (*ArbiterMetrics, error) {
	m := &ArbiterMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register arbiter metrics: %w", err)
	}
	return m, nil
}

func (m *ArbiterMetrics) initMetrics() {
	m.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangelink_arbiter_state",
			Help: "Current arbiter state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	m.transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangelink_arbiter_transitions_total",
			Help: "Total number of arbiter state transitions",
		},
		[]string{"from", "to"},
	)

	m.volumeCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangelink_volume_corrections_total",
			Help: "Total number of output volume corrections for the power tone",
		},
		[]string{"route"},
	)

	m.notificationDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rangelink_notification_depth",
		Help: "Current nesting depth of foreground sound notifications",
	})

	m.headsetPresent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rangelink_headset_present",
		Help: "Whether a device is plugged into the audio jack",
	})

	m.collectors = []prometheus.Collector{
		m.state,
		m.transitionsTotal,
		m.volumeCorrectionsTotal,
		m.notificationDepth,
		m.headsetPresent,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ArbiterMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *ArbiterMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordTransition counts a transition and marks to as the active state.
func (m *ArbiterMetrics) RecordTransition(from, to string) {
	m.transitionsTotal.WithLabelValues(from, to).Inc()
	m.state.WithLabelValues(from).Set(0)
	m.state.WithLabelValues(to).Set(1)
}

// RecordVolumeCorrection counts a volume correction on route.
func (m *ArbiterMetrics) RecordVolumeCorrection(route string) {
	m.volumeCorrectionsTotal.WithLabelValues(route).Inc()
}

// SetNotificationDepth records the notification nesting counter.
func (m *ArbiterMetrics) SetNotificationDepth(depth int) {
	m.notificationDepth.Set(float64(depth))
}

// SetHeadsetPresent records headset presence.
func (m *ArbiterMetrics) SetHeadsetPresent(present bool) {
	if present {
		m.headsetPresent.Set(1)
		return
	}
	m.headsetPresent.Set(0)
}
