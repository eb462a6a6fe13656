package audiolink

import (
	"math"
	"sync"

	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// Power tone defaults.
const (
	DefaultToneFrequency = 15000.0
	DefaultToneAmplitude = 1.0
)

// ErrToneDestroyed is returned by Play after ImmediateDestroyState.
var ErrToneDestroyed = errors.New(errors.NewStd("power tone destroyed")).
	Component("audiolink").
	Category(errors.CategoryState).
	Build()

// ToneConfig describes the power tone.
type ToneConfig struct {
	Frequency float64
	Amplitude float64
}

// DefaultToneConfig returns the default power tone.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{Frequency: DefaultToneFrequency, Amplitude: DefaultToneAmplitude}
}

// ToneGenerator renders the power tone to the audio output. The accessory has
// no other power source, so a failed Play means the accessory is unpowered.
type ToneGenerator struct {
	output  audiosession.OutputOpener
	cfg     ToneConfig
	log     logger.Logger
	metrics ToneRecorder

	// render goroutine only
	phase float64
	step  float64
	peak  float64

	mu        sync.Mutex
	stream    audiosession.Stream
	playing   bool
	destroyed bool
}

// NewToneGenerator creates a generator for output. rec may be nil.
func NewToneGenerator(output audiosession.OutputOpener, cfg ToneConfig, log logger.Logger, rec ToneRecorder) (*ToneGenerator, error) {
	rate := output.Format().SampleRate
	if cfg.Frequency <= 0 || cfg.Frequency >= float64(rate)/2 {
		return nil, errors.Newf("tone frequency %v outside (0, %d)", cfg.Frequency, rate/2).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Amplitude <= 0 || cfg.Amplitude > 1 {
		return nil, errors.Newf("tone amplitude %v outside (0,1]", cfg.Amplitude).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}
	if log == nil {
		log = GetLogger()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &ToneGenerator{
		output:  output,
		cfg:     cfg,
		log:     log.With(logger.Float64("frequency_hz", cfg.Frequency)),
		metrics: rec,
		step:    2 * math.Pi * cfg.Frequency / float64(rate),
		peak:    cfg.Amplitude * math.MaxInt16,
	}, nil
}

// Play starts rendering. It returns a resource error when the output cannot
// be claimed and is a no-op while already playing.
func (g *ToneGenerator) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return ErrToneDestroyed
	}
	if g.playing {
		return nil
	}

	if g.stream == nil {
		stream, err := g.output.OpenOutput(g.render)
		if err != nil {
			return errors.New(err).
				Component("audiolink").
				Category(errors.CategoryResource).
				Context("operation", "open_output").
				Build()
		}
		g.stream = stream
	}
	if err := g.stream.Start(); err != nil {
		return errors.New(err).
			Component("audiolink").
			Category(errors.CategoryResource).
			Context("operation", "start_output").
			Build()
	}

	g.playing = true
	g.metrics.SetToneActive(true)
	g.log.Info("power tone started")
	return nil
}

// Pause stops rendering and keeps the output open.
func (g *ToneGenerator) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.playing {
		return
	}
	if err := g.stream.Stop(); err != nil {
		g.log.Warn("failed to stop output stream", logger.Error(err))
	}
	g.playing = false
	g.metrics.SetToneActive(false)
	g.log.Info("power tone paused")
}

// IsPlaying reports whether the tone is rendering.
func (g *ToneGenerator) IsPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

// ImmediateDestroyState closes the output before returning.
func (g *ToneGenerator) ImmediateDestroyState() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return
	}
	g.destroyed = true
	if g.stream != nil {
		if err := g.stream.Close(); err != nil {
			g.log.Warn("failed to close output stream", logger.Error(err))
		}
		g.stream = nil
	}
	if g.playing {
		g.playing = false
		g.metrics.SetToneActive(false)
	}
}

func (g *ToneGenerator) render(out []int16) {
	for i := range out {
		out[i] = int16(math.Round(g.peak * math.Sin(g.phase)))
		g.phase += g.step
		if g.phase >= 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
}
