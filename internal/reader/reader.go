// Package reader is the entry point for embedding applications: it owns the
// audio arbiter, the accumulated ledger and the temperature translator.
package reader

import (
	"sync"

	"golang.org/x/text/language"

	"github.com/supermechanical/rangelink/internal/arbiter"
	"github.com/supermechanical/rangelink/internal/audiolink"
	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("reader")
}

// Config collects the settings of every component the reader builds.
type Config struct {
	Modem              audiolink.ModemConfig
	Tone               audiolink.ToneConfig
	Arbiter            arbiter.Config
	DecoderBufferBytes int
	// GapThreshold in seconds; zero disables gap detection.
	GapThreshold float64
	Scale        temperature.Scale
	Language     language.Tag
}

// DefaultConfig returns defaults for every component.
func DefaultConfig() Config {
	return Config{
		Modem:        audiolink.DefaultModemConfig(),
		Tone:         audiolink.DefaultToneConfig(),
		Arbiter:      arbiter.DefaultConfig(),
		GapThreshold: 30,
		Scale:        temperature.Fahrenheit,
		Language:     language.AmericanEnglish,
	}
}

// Option configures a Reader.
type Option func(*options)

type options struct {
	log            logger.Logger
	linkMetrics    LinkRecorder
	arbiterMetrics arbiter.Recorder
	onSample       audiolink.SampleHandler
}

// WithLogger sets the logger used by the reader and its components.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithLinkMetrics sets the decoder and tone metrics sink.
func WithLinkMetrics(r LinkRecorder) Option {
	return func(o *options) {
		o.linkMetrics = r
	}
}

// WithArbiterMetrics sets the arbiter metrics sink.
func WithArbiterMetrics(r arbiter.Recorder) Option {
	return func(o *options) {
		o.arbiterMetrics = r
	}
}

// WithSampleHandler observes every decoded sample as it arrives, before it
// reaches the ledger.
func WithSampleHandler(fn audiolink.SampleHandler) Option {
	return func(o *options) {
		o.onSample = fn
	}
}

// Reader holds the accumulated samples of every device seen. Refresh pulls
// new samples from the decoder; View gives consistent access to the ledger.
type Reader struct {
	log        logger.Logger
	audio      *arbiter.Arbiter
	translator *temperature.Translator

	mu     sync.Mutex
	ledger *timeseries.Ledger
}

// New builds a reader on session. Audio stays disabled until
// Audio().EnableAllAudio is called.
func New(session audiosession.Session, cfg Config, opts ...Option) (*Reader, error) {
	o := options{log: GetLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Modem.Validate(); err != nil {
		return nil, err
	}

	factory := &linkFactory{
		session:  session,
		cfg:      cfg,
		log:      o.log,
		metrics:  o.linkMetrics,
		onSample: o.onSample,
	}
	arbOpts := []arbiter.Option{arbiter.WithLogger(o.log.Module("arbiter"))}
	if o.arbiterMetrics != nil {
		arbOpts = append(arbOpts, arbiter.WithRecorder(o.arbiterMetrics))
	}

	ledger := timeseries.NewLedger()
	ledger.SetGapThreshold(cfg.GapThreshold)

	return &Reader{
		log:        o.log,
		audio:      arbiter.New(session, factory, cfg.Arbiter, arbOpts...),
		translator: temperature.NewTranslator(cfg.Scale, cfg.Language),
		ledger:     ledger,
	}, nil
}

// Audio returns the arbiter.
func (r *Reader) Audio() *arbiter.Arbiter {
	return r.audio
}

// Translator returns the shared temperature translator.
func (r *Reader) Translator() *temperature.Translator {
	return r.translator
}

// Refresh merges newly decoded samples into the ledger and returns them as a
// separate batch owned by the caller. Store and sample references obtained
// through View before the call are invalid afterwards.
func (r *Reader) Refresh() *timeseries.Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshLocked()
}

func (r *Reader) refreshLocked() *timeseries.Ledger {
	batch := r.audio.AllTemperatures()
	if batch.TotalLen() == 0 {
		return batch
	}
	if err := r.ledger.Merge(batch); err != nil {
		r.log.Warn("failed to merge decoded samples", logger.Error(err))
	}
	r.log.Debug("ledger refreshed",
		logger.Int("new_samples", batch.TotalLen()),
		logger.Int("devices", r.ledger.Len()))
	return batch
}

// View runs fn with exclusive access to the ledger. fn must not keep
// references past its return.
func (r *Reader) View(fn func(*timeseries.Ledger)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.ledger)
}

// RefreshAndView refreshes and runs fn under the same lock, so fn sees the
// ledger exactly as the refresh left it.
func (r *Reader) RefreshAndView(fn func(ledger, batch *timeseries.Ledger)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.refreshLocked()
	fn(r.ledger, batch)
}

// AllData returns a deep copy of the ledger.
func (r *Reader) AllData() *timeseries.Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Clone()
}

// SetGapThreshold changes the gap threshold of every device.
func (r *Reader) SetGapThreshold(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger.SetGapThreshold(seconds)
}

// PrepareForAppQuitting restores the user's volumes. Safe in any state.
func (r *Reader) PrepareForAppQuitting() {
	r.audio.PrepareForAppQuitting()
}

// Close disables audio and retires the arbiter.
func (r *Reader) Close() {
	r.audio.Destroy(true)
}
