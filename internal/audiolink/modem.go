package audiolink

import (
	"math"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/observability/metrics"
)

// Modem defaults. A space bit is four cycles of half-period L samples, a mark
// bit eight cycles of half-period L/2, so every bit lasts 8L samples.
const (
	DefaultHalfPeriod = 8
	DefaultThreshold  = 1024
	DefaultAmplitude  = 0.8

	unitsPerBit  = 16
	preambleBits = 24
	trailingBits = 12
)

// ModemConfig holds the link layer timing shared by both directions.
type ModemConfig struct {
	// HalfPeriod is the space half-cycle length in samples. Must be even and >= 2.
	HalfPeriod int
	// Threshold is the hysteresis level of the zero-crossing detector.
	Threshold int16
	// Amplitude is the modulator peak level in (0,1].
	Amplitude float64
}

// DefaultModemConfig returns the default link timing.
func DefaultModemConfig() ModemConfig {
	return ModemConfig{
		HalfPeriod: DefaultHalfPeriod,
		Threshold:  DefaultThreshold,
		Amplitude:  DefaultAmplitude,
	}
}

// Validate checks the timing parameters.
func (c ModemConfig) Validate() error {
	switch {
	case c.HalfPeriod < 2 || c.HalfPeriod%2 != 0:
		return errors.Newf("half period %d must be even and at least 2", c.HalfPeriod).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	case c.Threshold <= 0:
		return errors.Newf("threshold %d must be positive", c.Threshold).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	case c.Amplitude <= 0 || c.Amplitude > 1:
		return errors.Newf("amplitude %v outside (0,1]", c.Amplitude).
			Component("audiolink").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// SamplesPerBit returns the duration of one bit in samples.
func (c ModemConfig) SamplesPerBit() int {
	return 8 * c.HalfPeriod
}

// Modulator renders frames into PCM. The waveform is phase continuous across
// calls.
type Modulator struct {
	cfg  ModemConfig
	sign float64
}

// NewModulator creates a modulator for cfg.
func NewModulator(cfg ModemConfig) (*Modulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Modulator{cfg: cfg, sign: 1}, nil
}

// Idle appends n mark bits.
func (m *Modulator) Idle(dst []int16, n int) []int16 {
	for range n {
		dst = m.bit(dst, 1)
	}
	return dst
}

// Bytes appends UART framed bytes: start bit, eight data bits LSB first, stop bit.
func (m *Modulator) Bytes(dst []int16, data []byte) []int16 {
	for _, b := range data {
		dst = m.bit(dst, 0)
		for i := range 8 {
			dst = m.bit(dst, (b>>i)&1)
		}
		dst = m.bit(dst, 1)
	}
	return dst
}

// Frame appends a complete transmission of one reading, including the idle
// preamble and trailer the receiver needs to lock.
func (m *Modulator) Frame(dst []int16, uid []byte, temperature float32) ([]int16, error) {
	payload, err := EncodeFrame(uid, temperature)
	if err != nil {
		return dst, err
	}
	dst = m.Idle(dst, preambleBits)
	dst = m.Bytes(dst, payload)
	return m.Idle(dst, trailingBits), nil
}

func (m *Modulator) bit(dst []int16, v byte) []int16 {
	half, cycles := m.cfg.HalfPeriod, 4
	if v == 1 {
		half, cycles = m.cfg.HalfPeriod/2, 8
	}
	peak := m.cfg.Amplitude * math.MaxInt16
	for range 2 * cycles {
		for k := range half {
			s := math.Sin(math.Pi * (float64(k) + 0.5) / float64(half))
			dst = append(dst, int16(math.Round(m.sign*peak*s)))
		}
		m.sign = -m.sign
	}
	return dst
}

// FrameHandler receives a valid frame and the absolute sample position at
// which its last bit was decoded.
type FrameHandler func(f Frame, pos int64)

// RejectHandler receives the reason a frame was discarded.
type RejectHandler func(reason string)

// Demodulator turns PCM back into frames. It is not safe for concurrent use.
type Demodulator struct {
	cfg      ModemConfig
	onFrame  FrameHandler
	onReject RejectHandler

	pos int64

	// crossing detector
	sign     int
	run      int
	maxRun   int
	shortMax int

	// bit slicer
	bitType int
	units   int

	// byte framing
	inByte bool
	nbits  int
	shift  byte
	parser frameParser
}

// NewDemodulator creates a demodulator. onReject may be nil.
func NewDemodulator(cfg ModemConfig, onFrame FrameHandler, onReject RejectHandler) (*Demodulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if onReject == nil {
		onReject = func(string) {}
	}
	d := &Demodulator{
		cfg:      cfg,
		onFrame:  onFrame,
		onReject: onReject,
		maxRun:   2*cfg.HalfPeriod + 2,
		shortMax: (3 * cfg.HalfPeriod) / 4,
	}
	d.Reset()
	return d, nil
}

// Position returns the number of samples consumed so far.
func (d *Demodulator) Position() int64 {
	return d.pos
}

// Reset drops all partial bit, byte and frame state. The sample position is kept.
func (d *Demodulator) Reset() {
	d.sign = 0
	d.run = 0
	d.resetBits()
}

func (d *Demodulator) resetBits() {
	d.bitType = -1
	d.units = 0
	d.inByte = false
	d.nbits = 0
	d.shift = 0
	d.parser.reset()
}

// Write consumes PCM samples.
func (d *Demodulator) Write(pcm []int16) {
	thr := d.cfg.Threshold
	for _, s := range pcm {
		d.pos++
		d.run++

		switch {
		case s >= thr && d.sign != 1:
			d.edge(1)
		case s <= -thr && d.sign != -1:
			d.edge(-1)
		case d.run > d.maxRun && (d.sign != 0 || d.bitType != -1):
			// Silence or dropout
			d.Reset()
		}
	}
}

func (d *Demodulator) edge(sign int) {
	if d.sign != 0 {
		d.halfCycle(d.run)
	}
	d.sign = sign
	d.run = 0
}

func (d *Demodulator) halfCycle(interval int) {
	typ, units := 0, 2
	if interval <= d.shortMax {
		typ, units = 1, 1
	}

	if typ != d.bitType {
		if d.bitType != -1 && d.units >= unitsPerBit/2 {
			d.bit(byte(d.bitType))
		}
		d.bitType = typ
		d.units = 0
	}
	d.units += units
	if d.units >= unitsPerBit {
		d.units -= unitsPerBit
		d.bit(byte(typ))
	}
}

func (d *Demodulator) bit(v byte) {
	if !d.inByte {
		if v == 0 {
			d.inByte = true
			d.nbits = 0
			d.shift = 0
		}
		return
	}
	if d.nbits < 8 {
		d.shift |= v << d.nbits
		d.nbits++
		return
	}

	d.inByte = false
	if v != 1 {
		// Framing error, hunt for the next start bit
		d.parser.reset()
		d.onReject(metrics.FrameMalformed)
		return
	}
	d.parser.push(d.shift)
	for {
		f, res := d.parser.next()
		switch res {
		case parseNeedMore:
			return
		case parseFrame:
			d.onFrame(f, d.pos)
		case parseChecksum:
			d.onReject(metrics.FrameChecksum)
		case parseMalformed:
			d.onReject(metrics.FrameMalformed)
		}
	}
}
