package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/observability/metrics"
	"github.com/supermechanical/rangelink/internal/timeseries"
	"github.com/supermechanical/rangelink/internal/trigger"
)

// PublisherConfig controls topics and throttling.
type PublisherConfig struct {
	Topic           string        // prefix of every state topic
	MinInterval     time.Duration // per-device sample throttle, 0 publishes every sample
	Discovery       bool          // announce probes to Home Assistant
	DiscoveryPrefix string
}

// Publisher turns decoded samples and arbiter state into MQTT messages.
type Publisher struct {
	client   Client
	cfg      PublisherConfig
	throttle *cache.Cache
	metrics  *metrics.MQTTMetrics
	log      logger.Logger

	mu        sync.Mutex
	announced map[string]bool
}

// NewPublisher creates a publisher on top of client. m and log may be nil.
func NewPublisher(client Client, cfg PublisherConfig, m *metrics.MQTTMetrics, log logger.Logger) *Publisher {
	if log == nil {
		log = GetLogger()
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	cleanup := time.Minute
	if cfg.MinInterval > cleanup {
		cleanup = cfg.MinInterval
	}
	return &Publisher{
		client:    client,
		cfg:       cfg,
		throttle:  cache.New(cfg.MinInterval, cleanup),
		metrics:   m,
		log:       log,
		announced: make(map[string]bool),
	}
}

func sampleTopic(base, device string) string  { return base + "/" + device + "/temperature" }
func triggerTopic(base, device string) string { return base + "/" + device + "/trigger" }
func stateTopic(base string) string           { return base + "/state" }

// PublishSample publishes s for device unless another sample of the same
// device went out less than MinInterval ago.
func (p *Publisher) PublishSample(ctx context.Context, device string, s timeseries.Sample) error {
	if p.cfg.MinInterval > 0 {
		if err := p.throttle.Add(device, s.UnixTime, cache.DefaultExpiration); err != nil {
			if p.metrics != nil {
				p.metrics.Skipped.Inc()
			}
			return nil
		}
	}

	if err := p.announce(ctx, device); err != nil {
		p.log.Warn("discovery announcement failed", logger.String("device", device), logger.Error(err))
	}
	return p.publishJSON(ctx, sampleTopic(p.cfg.Topic, device), NewSampleDTO(device, s), false)
}

// PublishLatest publishes the newest sample of every device in batch.
func (p *Publisher) PublishLatest(ctx context.Context, batch *timeseries.Ledger) error {
	var errs []error
	for _, device := range batch.DeviceIDs() {
		store, ok := batch.Store(device)
		if !ok {
			continue
		}
		s, ok := store.Latest()
		if !ok {
			continue
		}
		if err := p.PublishSample(ctx, device, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishTrigger publishes a threshold crossing of device.
func (p *Publisher) PublishTrigger(ctx context.Context, device string, t *trigger.Trigger, s timeseries.Sample) error {
	dto := &TriggerDTO{
		Device:       device,
		Direction:    t.Direction().String(),
		ThresholdF:   t.Temperature(),
		TemperatureF: roundTenth(s.Temperature),
		UnixTime:     s.UnixTime,
	}
	return p.publishJSON(ctx, triggerTopic(p.cfg.Topic, device), dto, false)
}

// PublishState publishes the audio state. State messages are retained so a
// new subscriber sees whether the reader is running.
func (p *Publisher) PublishState(ctx context.Context, state *StateDTO) error {
	return p.publishJSON(ctx, stateTopic(p.cfg.Topic), state, true)
}

// RemoveDiscovery clears the announcements made by this publisher.
func (p *Publisher) RemoveDiscovery(ctx context.Context) error {
	p.mu.Lock()
	devices := make([]string, 0, len(p.announced))
	for d := range p.announced {
		devices = append(devices, d)
	}
	p.announced = make(map[string]bool)
	p.mu.Unlock()

	var errs []error
	for _, d := range devices {
		if err := removeDiscovery(ctx, p.client, p.discoveryConfig(), d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) discoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{DiscoveryPrefix: p.cfg.DiscoveryPrefix, BaseTopic: p.cfg.Topic}
}

// announce publishes discovery for device the first time it is seen.
func (p *Publisher) announce(ctx context.Context, device string) error {
	if !p.cfg.Discovery {
		return nil
	}
	p.mu.Lock()
	if p.announced[device] {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := publishDiscovery(ctx, p.client, p.discoveryConfig(), device); err != nil {
		return err
	}
	p.mu.Lock()
	p.announced[device] = true
	p.mu.Unlock()
	return nil
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, v any, retain bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryProcessing).
			Context("topic", topic).
			Build()
	}
	if retain {
		return p.client.PublishWithRetain(ctx, topic, string(data), true)
	}
	return p.client.Publish(ctx, topic, string(data))
}
