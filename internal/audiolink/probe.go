package audiolink

import (
	"context"
	"math"
	"time"

	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// ProbeConfig describes a simulated accessory.
type ProbeConfig struct {
	UID []byte
	// Reading returns the temperature to report at a given time.
	Reading func(now time.Time) float32
	// Interval between transmitted readings.
	Interval time.Duration
	// MinPower is the RMS level of the power tone, relative to full scale,
	// below which the probe stays silent.
	MinPower float64
	// Tick is the audio exchange period.
	Tick time.Duration
}

// DefaultProbeConfig returns a probe reporting a slow swing around 70°F.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		UID: []byte{0x52, 0x4e, 0x47, 0x01},
		Reading: func(now time.Time) float32 {
			phase := float64(now.UnixNano()) / float64(time.Minute) * 2 * math.Pi
			return float32(70 + 5*math.Sin(phase))
		},
		Interval: time.Second,
		MinPower: 0.5,
		Tick:     20 * time.Millisecond,
	}
}

// SimulatedProbe stands in for the accessory on an audiosession.Fake: it
// draws the power tone from the fake output and answers with modulated
// frames on the fake input while powered.
type SimulatedProbe struct {
	session *audiosession.Fake
	mod     *Modulator
	cfg     ProbeConfig
	log     logger.Logger
	chunk   int

	queue    []int16
	powered  bool
	lastSent time.Time
}

// NewSimulatedProbe creates a probe attached to session.
func NewSimulatedProbe(session *audiosession.Fake, modem ModemConfig, cfg ProbeConfig, log logger.Logger) (*SimulatedProbe, error) {
	if len(cfg.UID) == 0 || len(cfg.UID) > MaxUIDLen {
		return nil, errors.Newf("probe uid length %d outside 1..%d", len(cfg.UID), MaxUIDLen).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Reading == nil || cfg.Interval <= 0 || cfg.Tick <= 0 {
		return nil, errors.Newf("probe needs a reading source, an interval and a tick").
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}
	mod, err := NewModulator(modem)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = GetLogger()
	}

	chunk := int(int64(session.Format().SampleRate) * int64(cfg.Tick) / int64(time.Second))
	return &SimulatedProbe{
		session: session,
		mod:     mod,
		cfg:     cfg,
		log:     log.With(logger.String("probe", Frame{UID: cfg.UID}.DeviceID())),
		chunk:   max(chunk, 1),
	}, nil
}

// Powered reports whether the last step saw enough power tone.
func (p *SimulatedProbe) Powered() bool {
	return p.powered
}

// Step exchanges one tick of audio with the session.
func (p *SimulatedProbe) Step(now time.Time) {
	powered := rms(p.session.Render(p.chunk)) >= p.cfg.MinPower*math.MaxInt16
	if powered != p.powered {
		p.log.Debug("probe power changed", logger.Bool("powered", powered))
		p.powered = powered
	}

	if !powered {
		p.queue = p.queue[:0]
		p.session.Feed(make([]int16, p.chunk))
		return
	}

	if now.Sub(p.lastSent) >= p.cfg.Interval && len(p.queue) < p.chunk {
		var err error
		p.queue, err = p.mod.Frame(p.queue, p.cfg.UID, p.cfg.Reading(now))
		if err != nil {
			p.log.Warn("probe reading not encodable", logger.Error(err))
		}
		p.lastSent = now
	}
	for len(p.queue) < p.chunk {
		p.queue = p.mod.Idle(p.queue, 1)
	}

	out := make([]int16, p.chunk)
	copy(out, p.queue)
	p.queue = append(p.queue[:0], p.queue[p.chunk:]...)
	p.session.Feed(out)
}

// Run steps the probe every tick until ctx is done.
func (p *SimulatedProbe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			p.Step(now)
		}
	}
}

func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
