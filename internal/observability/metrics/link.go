// Package metrics provides Prometheus collectors for the audio link, the
// audio arbiter, MQTT publishing and error reporting.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame status label values.
const (
	FrameValid     = "valid"
	FrameChecksum  = "checksum"
	FrameMalformed = "malformed"
)

// Buffer drop reason label values.
const (
	DropFull   = "full"
	DropPaused = "paused"
)

// LinkMetrics contains metrics for the audio link decoder and power tone.
type LinkMetrics struct {
	registry *prometheus.Registry

	framesTotal         *prometheus.CounterVec
	samplesTotal        *prometheus.CounterVec
	lastSampleTimestamp *prometheus.GaugeVec
	bufferDropsTotal    *prometheus.CounterVec
	bufferFill          prometheus.Gauge
	decodeDuration      prometheus.Histogram
	toneActive          prometheus.Gauge
	toneStartsTotal     prometheus.Counter

	collectors []prometheus.Collector
}

// NewLinkMetrics creates and registers link metrics
func NewLinkMetrics(registry *prometheus.Registry) (*LinkMetrics, error) {
	m := &LinkMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register link metrics: %w", err)
	}
	return m, nil
}

func (m *LinkMetrics) initMetrics() {
	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangelink_frames_total",
			Help: "Total number of frames seen by the decoder by outcome",
		},
		[]string{"status"}, // valid, checksum, malformed
	)

	m.samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangelink_samples_total",
			Help: "Total number of decoded temperature samples per device",
		},
		[]string{"device"},
	)

	m.lastSampleTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangelink_last_sample_timestamp_seconds",
			Help: "Unix time of the last decoded sample per device",
		},
		[]string{"device"},
	)

	m.bufferDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangelink_buffer_drops_total",
			Help: "Total number of input buffers dropped before demodulation",
		},
		[]string{"reason"}, // full, paused
	)

	m.bufferFill = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rangelink_buffer_fill_ratio",
		Help: "Fill ratio of the decoder hand-off ring buffer",
	})

	m.decodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rangelink_decode_duration_seconds",
		Help:    "Time spent demodulating one batch of input",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	})

	m.toneActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rangelink_power_tone_active",
		Help: "Whether the power tone is playing (1) or not (0)",
	})

	m.toneStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rangelink_power_tone_starts_total",
		Help: "Total number of power tone starts",
	})

	m.collectors = []prometheus.Collector{
		m.framesTotal,
		m.samplesTotal,
		m.lastSampleTimestamp,
		m.bufferDropsTotal,
		m.bufferFill,
		m.decodeDuration,
		m.toneActive,
		m.toneStartsTotal,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *LinkMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *LinkMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordFrame counts a frame by outcome.
func (m *LinkMetrics) RecordFrame(status string) {
	m.framesTotal.WithLabelValues(status).Inc()
}

// RecordSample counts a decoded sample and records its time.
func (m *LinkMetrics) RecordSample(device string, unixTime float64) {
	m.samplesTotal.WithLabelValues(device).Inc()
	m.lastSampleTimestamp.WithLabelValues(device).Set(unixTime)
}

// RecordBufferDrop counts an input buffer that was not handed to the worker.
func (m *LinkMetrics) RecordBufferDrop(reason string) {
	m.bufferDropsTotal.WithLabelValues(reason).Inc()
}

// UpdateBufferFill sets the hand-off buffer fill ratio.
func (m *LinkMetrics) UpdateBufferFill(ratio float64) {
	m.bufferFill.Set(ratio)
}

// ObserveDecodeDuration records time spent demodulating.
func (m *LinkMetrics) ObserveDecodeDuration(seconds float64) {
	m.decodeDuration.Observe(seconds)
}

// SetToneActive records whether the power tone is playing.
func (m *LinkMetrics) SetToneActive(active bool) {
	if active {
		m.toneActive.Set(1)
		m.toneStartsTotal.Inc()
		return
	}
	m.toneActive.Set(0)
}
