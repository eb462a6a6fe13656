package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTT failure stage label values.
const (
	StageConnect = "connect"
	StagePublish = "publish"
	StageTimeout = "timeout"
	StageLost    = "lost"
)

// MQTTMetrics tracks the broker connection and publishing.
type MQTTMetrics struct {
	Connected      prometheus.Gauge
	LastConnected  prometheus.Gauge
	Delivered      prometheus.Counter
	Skipped        prometheus.Counter
	Failures       *prometheus.CounterVec
	Reconnects     prometheus.Counter
	PublishLatency prometheus.Histogram
}

// NewMQTTMetrics creates the MQTT collectors and registers them.
func NewMQTTMetrics(registry prometheus.Registerer) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rangelink_mqtt_connected",
			Help: "1 while connected to the broker",
		}),
		LastConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rangelink_mqtt_last_connect_timestamp_seconds",
			Help: "Unix time of the last successful broker connection",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rangelink_mqtt_messages_delivered_total",
			Help: "Messages acknowledged by the broker",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rangelink_mqtt_samples_throttled_total",
			Help: "Samples not published because of the per-device interval",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rangelink_mqtt_failures_total",
			Help: "Broker failures by stage",
		}, []string{"stage"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rangelink_mqtt_reconnects_total",
			Help: "Automatic reconnection attempts",
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rangelink_mqtt_publish_seconds",
			Help:    "Time until a publish is acknowledged",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Connected, m.LastConnected, m.Delivered, m.Skipped, m.Failures, m.Reconnects, m.PublishLatency,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
		}
	}
	return m, nil
}

// SetConnected records the connection state.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if !connected {
		m.Connected.Set(0)
		return
	}
	m.Connected.Set(1)
	m.LastConnected.SetToCurrentTime()
}

// ObserveDelivery counts a delivered message published at start.
func (m *MQTTMetrics) ObserveDelivery(start time.Time) {
	m.Delivered.Inc()
	m.PublishLatency.Observe(time.Since(start).Seconds())
}

// Failure counts a failure at stage.
func (m *MQTTMetrics) Failure(stage string) {
	m.Failures.WithLabelValues(stage).Inc()
}
