package audiolink

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/observability/metrics"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

const (
	// DefaultBufferBytes is the capacity of the callback to worker hand-off,
	// about three seconds of 44.1 kHz s16 audio.
	DefaultBufferBytes = 256 * 1024

	readChunkBytes = 4096
)

// ErrDecoderDestroyed is returned by StartRec after ImmediateDestroyState.
var ErrDecoderDestroyed = errors.New(errors.NewStd("decoder destroyed")).
	Component("audiolink").
	Category(errors.CategoryState).
	Build()

// SampleHandler is called on the worker goroutine for every decoded sample.
type SampleHandler func(uid string, s timeseries.Sample)

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithDecoderLogger sets the decoder logger.
func WithDecoderLogger(l logger.Logger) DecoderOption {
	return func(d *Decoder) {
		d.log = l
	}
}

// WithLinkRecorder sets the metrics sink.
func WithLinkRecorder(r LinkRecorder) DecoderOption {
	return func(d *Decoder) {
		d.metrics = r
	}
}

// WithClock replaces the wall clock used to stamp samples.
func WithClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) {
		d.now = now
	}
}

// WithSampleHandler registers a callback for every decoded sample.
func WithSampleHandler(fn SampleHandler) DecoderOption {
	return func(d *Decoder) {
		d.onSample = fn
	}
}

// WithBufferBytes sets the hand-off buffer capacity.
func WithBufferBytes(n int) DecoderOption {
	return func(d *Decoder) {
		if n >= readChunkBytes {
			d.bufferBytes = n
		}
	}
}

// Decoder demodulates the audio input into samples. The capture callback only
// copies into a ring buffer; demodulation runs on a worker goroutine owned by
// the decoder.
type Decoder struct {
	input       audiosession.InputOpener
	modem       ModemConfig
	log         logger.Logger
	metrics     LinkRecorder
	now         func() time.Time
	onSample    SampleHandler
	bufferBytes int

	ring    *ringbuffer.RingBuffer
	wake    chan struct{}
	scratch []byte // capture callback only

	// clockMu pairs the ring contents with the capture time of its newest
	// sample.
	clockMu     sync.Mutex
	lastCapture time.Time
	sampleRate  float64
	chunkEndPos int64 // worker only

	recording atomic.Bool
	resync    atomic.Bool

	mu        sync.Mutex // guards stream, destroyed and the worker lifecycle
	stream    audiosession.Stream
	destroyed bool
	done      chan struct{}
	wg        sync.WaitGroup

	dataMu     sync.Mutex
	pending    *timeseries.Ledger
	lastParsed time.Time

	demod        *Demodulator // worker only
	rejectLogger *rate.Limiter
}

// NewDecoder creates a decoder reading from input. The input is not opened
// until the first StartRec.
func NewDecoder(input audiosession.InputOpener, modem ModemConfig, opts ...DecoderOption) (*Decoder, error) {
	d := &Decoder{
		input:        input,
		modem:        modem,
		log:          GetLogger(),
		metrics:      nopRecorder{},
		now:          time.Now,
		bufferBytes:  DefaultBufferBytes,
		wake:         make(chan struct{}, 1),
		pending:      timeseries.NewLedger(),
		rejectLogger: rate.NewLimiter(rate.Every(5*time.Second), 1),
		sampleRate:   float64(input.Format().SampleRate),
	}
	for _, opt := range opts {
		opt(d)
	}

	demod, err := NewDemodulator(modem, d.frame, d.reject)
	if err != nil {
		return nil, err
	}
	d.demod = demod
	d.ring = ringbuffer.New(d.bufferBytes)
	return d, nil
}

// StartRec opens and starts the input. Calling it while recording is a no-op.
func (d *Decoder) StartRec() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return ErrDecoderDestroyed
	}
	if d.recording.Load() {
		return nil
	}

	if d.stream == nil {
		stream, err := d.input.OpenInput(d.capture)
		if err != nil {
			return errors.New(err).
				Component("audiolink").
				Category(errors.CategoryResource).
				Context("operation", "open_input").
				Build()
		}
		d.stream = stream
		d.done = make(chan struct{})
		d.wg.Add(1)
		go d.run(d.done)
	}

	d.resync.Store(true)
	d.recording.Store(true)
	if err := d.stream.Start(); err != nil {
		d.recording.Store(false)
		return errors.New(err).
			Component("audiolink").
			Category(errors.CategoryResource).
			Context("operation", "start_input").
			Build()
	}

	d.log.Info("decoder recording started")
	return nil
}

// PauseRec stops the input. Buffers delivered while paused are dropped;
// already decoded samples are kept.
func (d *Decoder) PauseRec() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.recording.Swap(false) {
		return
	}
	if d.stream != nil {
		if err := d.stream.Stop(); err != nil {
			d.log.Warn("failed to stop input stream", logger.Error(err))
		}
	}
	d.ring.Reset()
	d.resync.Store(true)
	d.log.Info("decoder recording paused")
}

// IsRecording reports whether input buffers are being accepted.
func (d *Decoder) IsRecording() bool {
	return d.recording.Load()
}

// ImmediateDestroyState closes the input and stops the worker before
// returning. The decoder cannot be restarted afterwards.
func (d *Decoder) ImmediateDestroyState() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return
	}
	d.destroyed = true
	d.recording.Store(false)

	if d.stream != nil {
		if err := d.stream.Close(); err != nil {
			d.log.Warn("failed to close input stream", logger.Error(err))
		}
		d.stream = nil
	}
	if d.done != nil {
		close(d.done)
		d.wg.Wait()
		d.done = nil
	}
	d.log.Debug("decoder destroyed")
}

// LastParsedDataRead returns the receive time of the latest valid frame, or
// the zero time when none was decoded yet.
func (d *Decoder) LastParsedDataRead() time.Time {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()
	return d.lastParsed
}

// IsStale reports whether no frame was decoded within maxAge before now.
func (d *Decoder) IsStale(now time.Time, maxAge time.Duration) bool {
	last := d.LastParsedDataRead()
	return last.IsZero() || now.Sub(last) > maxAge
}

// AllTemperatures hands over every sample decoded since the previous call.
func (d *Decoder) AllTemperatures() *timeseries.Ledger {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()
	out := d.pending
	d.pending = timeseries.NewLedger()
	return out
}

// capture runs on the platform audio goroutine.
func (d *Decoder) capture(pcm []int16) {
	if !d.recording.Load() {
		d.metrics.RecordBufferDrop(metrics.DropPaused)
		return
	}
	need := 2 * len(pcm)
	if d.ring.Free() < need {
		d.metrics.RecordBufferDrop(metrics.DropFull)
		return
	}

	buf := d.scratch[:0]
	for _, s := range pcm {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	d.scratch = buf
	d.clockMu.Lock()
	_, err := d.ring.Write(buf)
	if err == nil {
		d.lastCapture = d.now()
	}
	d.clockMu.Unlock()
	if err != nil {
		d.metrics.RecordBufferDrop(metrics.DropFull)
		return
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Decoder) run(done <-chan struct{}) {
	defer d.wg.Done()

	raw := make([]byte, readChunkBytes)
	pcm := make([]int16, readChunkBytes/2)
	for {
		select {
		case <-done:
			return
		case <-d.wake:
		}
		d.drain(raw, pcm)
	}
}

func (d *Decoder) drain(raw []byte, pcm []int16) {
	if d.resync.Swap(false) {
		d.demod.Reset()
	}
	d.metrics.UpdateBufferFill(float64(d.ring.Length()) / float64(d.ring.Capacity()))

	for {
		n, err := d.ring.Read(raw)
		if n == 0 || err != nil {
			return
		}
		samples := pcm[:n/2]
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
		}

		start := time.Now()
		d.chunkEndPos = d.demod.Position() + int64(len(samples))
		d.demod.Write(samples)
		d.metrics.ObserveDecodeDuration(time.Since(start).Seconds())
	}
}

// captureTime maps the demodulator position pos back to the wall clock time
// its sample was captured. Samples captured after pos are either still in the
// ring or later in the chunk being demodulated. Buffers dropped after pos make
// the result early by at most their duration.
func (d *Decoder) captureTime(pos int64) time.Time {
	d.clockMu.Lock()
	last := d.lastCapture
	queued := int64(d.ring.Length() / 2)
	d.clockMu.Unlock()

	if last.IsZero() {
		return d.now()
	}
	if d.sampleRate <= 0 {
		return last
	}
	behind := queued + max(d.chunkEndPos-pos, 0)
	return last.Add(-time.Duration(float64(behind) / d.sampleRate * float64(time.Second)))
}

// frame publishes a valid frame stamped with the capture time of its last bit.
func (d *Decoder) frame(f Frame, pos int64) {
	received := d.captureTime(pos)
	uid := f.DeviceID()
	sample := timeseries.Sample{
		Temperature: f.Temperature,
		UnixTime:    UnixSeconds(received),
	}

	d.dataMu.Lock()
	_, err := d.pending.Add(uid, sample)
	if err == nil {
		d.lastParsed = received
	}
	d.dataMu.Unlock()

	if err != nil {
		d.log.Warn("dropping decoded sample", logger.String("uid", uid), logger.Error(err))
		return
	}

	d.metrics.RecordFrame(metrics.FrameValid)
	d.metrics.RecordSample(uid, sample.UnixTime)
	if d.onSample != nil {
		d.onSample(uid, sample)
	}
}

func (d *Decoder) reject(reason string) {
	d.metrics.RecordFrame(reason)
	if d.rejectLogger.Allow() {
		d.log.Debug("discarded frame", logger.String("reason", reason))
	}
}

// UnixSeconds converts t to fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
