// Package monitor runs the long-lived reader loop: it pulls decoded samples,
// evaluates the temperature trigger per device and hands results to the
// configured sinks.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/supermechanical/rangelink/internal/arbiter"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/mqtt"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/timeseries"
	"github.com/supermechanical/rangelink/internal/trigger"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

// Source yields newly decoded samples. *reader.Reader implements it.
type Source interface {
	Refresh() *timeseries.Ledger
	Translator() *temperature.Translator
}

// Audio is the part of the arbiter the monitor reports on.
type Audio interface {
	State() arbiter.State
	IsAudioEnabled() bool
	IsHeadsetPluggedIn() bool
	LastParsedDataRead() time.Time
}

// Publisher receives samples, crossings and state. *mqtt.Publisher
// implements it.
type Publisher interface {
	PublishLatest(ctx context.Context, batch *timeseries.Ledger) error
	PublishTrigger(ctx context.Context, device string, t *trigger.Trigger, s timeseries.Sample) error
	PublishState(ctx context.Context, state *mqtt.StateDTO) error
}

// Crossing is one trigger firing.
type Crossing struct {
	Device string
	Config trigger.Config
	Sample timeseries.Sample
}

// Config tunes the loop.
type Config struct {
	RefreshInterval time.Duration
	StaleAfter      time.Duration
}

// Monitor is the reader loop.
type Monitor struct {
	src       Source
	audio     Audio
	triggers  *TriggerStore
	publisher Publisher
	out       io.Writer
	onCross   func(Crossing)
	cfg       Config
	log       logger.Logger
	now       func() time.Time

	mu         sync.Mutex
	perDevice  map[string]*trigger.Trigger
	lastState  *mqtt.StateDTO
	crossCount int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

// WithTriggers enables trigger evaluation.
func WithTriggers(s *TriggerStore) Option {
	return func(m *Monitor) {
		m.triggers = s
	}
}

// WithPublisher forwards results to p.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) {
		m.publisher = p
	}
}

// WithOutput prints one line per new reading to w.
func WithOutput(w io.Writer) Option {
	return func(m *Monitor) {
		m.out = w
	}
}

// WithCrossingHandler observes every trigger firing.
func WithCrossingHandler(fn func(Crossing)) Option {
	return func(m *Monitor) {
		m.onCross = fn
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a monitor. audio may be nil when no state is reported.
func New(src Source, audio Audio, cfg Config, opts ...Option) (*Monitor, error) {
	if src == nil {
		return nil, errors.Newf("monitor: source is required").
			Component("monitor").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.RefreshInterval <= 0 {
		return nil, errors.Newf("monitor: refresh interval must be positive").
			Component("monitor").
			Category(errors.CategoryValidation).
			Build()
	}
	m := &Monitor{
		src:       src,
		audio:     audio,
		cfg:       cfg,
		now:       time.Now,
		perDevice: make(map[string]*trigger.Trigger),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = GetLogger()
	}
	return m, nil
}

// Run refreshes every RefreshInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor loop started", logger.Duration("interval", m.cfg.RefreshInterval))

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor loop stopping")
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one refresh cycle and returns the crossings it found.
func (m *Monitor) Check(ctx context.Context) []Crossing {
	batch := m.src.Refresh()

	if batch.TotalLen() > 0 {
		m.print(batch)
		if m.publisher != nil {
			if err := m.publisher.PublishLatest(ctx, batch); err != nil {
				m.log.Debug("sample publish failed", logger.Error(err))
			}
		}
	}

	crossings := m.evaluate(batch)
	for _, c := range crossings {
		m.log.Info("temperature threshold crossed",
			logger.String("device", c.Device),
			logger.String("direction", c.Config.Direction.String()),
			logger.String("temperature", m.src.Translator().Print(c.Sample.Temperature, temperature.HumanReadable)))
		if m.onCross != nil {
			m.onCross(c)
		}
		if m.publisher != nil {
			if err := m.publisher.PublishTrigger(ctx, c.Device, trigger.FromConfig(c.Config), c.Sample); err != nil {
				m.log.Debug("trigger publish failed", logger.Error(err))
			}
		}
	}

	m.reportState(ctx)
	return crossings
}

// evaluate feeds batch to the per-device triggers.
func (m *Monitor) evaluate(batch *timeseries.Ledger) []Crossing {
	if m.triggers == nil {
		return nil
	}
	cfg := m.triggers.Config()

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Crossing
	for _, device := range batch.DeviceIDs() {
		store, ok := batch.Store(device)
		if !ok {
			continue
		}
		t, ok := m.perDevice[device]
		if !ok {
			t = trigger.FromConfig(cfg)
			m.perDevice[device] = t
		}
		for _, s := range t.EvaluateAll(store.Samples()) {
			out = append(out, Crossing{Device: device, Config: cfg, Sample: s})
		}
	}
	m.crossCount += len(out)
	return out
}

// TriggerConfig implements httpapi.TriggerControl.
func (m *Monitor) TriggerConfig() trigger.Config {
	if m.triggers == nil {
		return trigger.Config{}
	}
	return m.triggers.Config()
}

// SetTriggerConfig stores c and re-arms every device trigger.
func (m *Monitor) SetTriggerConfig(c trigger.Config) error {
	if m.triggers == nil {
		return errors.Newf("trigger is disabled").
			Component("monitor").
			Category(errors.CategoryState).
			Build()
	}
	if err := m.triggers.Set(c); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.perDevice {
		t.Change(c.Temperature, c.Direction)
	}
	m.log.Info("trigger changed",
		logger.Float32("temperature", c.Temperature),
		logger.String("direction", c.Direction.String()))
	return nil
}

// Crossings returns how many times any trigger fired.
func (m *Monitor) Crossings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crossCount
}

func (m *Monitor) print(batch *timeseries.Ledger) {
	if m.out == nil {
		return
	}
	tr := m.src.Translator()
	for _, device := range batch.DeviceIDs() {
		store, ok := batch.Store(device)
		if !ok {
			continue
		}
		for _, s := range store.Samples() {
			whole := int64(s.UnixTime)
			ts := time.Unix(whole, int64((s.UnixTime-float64(whole))*1e9)).Format("15:04:05")
			_, _ = fmt.Fprintf(m.out, "%s  %s  %s\n", ts, device, tr.Print(s.Temperature, temperature.HumanReadable))
		}
	}
}

// reportState publishes the audio state when it changed since the last cycle.
func (m *Monitor) reportState(ctx context.Context) {
	if m.audio == nil || m.publisher == nil {
		return
	}
	last := m.audio.LastParsedDataRead()
	state := &mqtt.StateDTO{
		State:        m.audio.State().String(),
		AudioEnabled: m.audio.IsAudioEnabled(),
		Headset:      m.audio.IsHeadsetPluggedIn(),
		Stale:        m.cfg.StaleAfter > 0 && (last.IsZero() || m.now().Sub(last) > m.cfg.StaleAfter),
	}

	m.mu.Lock()
	unchanged := m.lastState != nil && *m.lastState == *state
	m.mu.Unlock()
	if unchanged {
		return
	}

	if err := m.publisher.PublishState(ctx, state); err != nil {
		m.log.Debug("state publish failed", logger.Error(err))
		return
	}
	m.mu.Lock()
	m.lastState = state
	m.mu.Unlock()
}
