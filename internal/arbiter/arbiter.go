// Package arbiter serializes access to the single audio input and output
// between the power tone, the decoder and short foreground sound effects.
package arbiter

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("arbiter")
}

// Decoder is the input side of the link.
type Decoder interface {
	StartRec() error
	PauseRec()
	ImmediateDestroyState()
	LastParsedDataRead() time.Time
	IsStale(now time.Time, maxAge time.Duration) bool
	AllTemperatures() *timeseries.Ledger
}

// Tone is the power tone output.
type Tone interface {
	Play() error
	Pause()
	ImmediateDestroyState()
}

// LinkFactory builds a fresh decoder and tone each time audio is enabled.
type LinkFactory interface {
	NewDecoder() (Decoder, error)
	NewTone() (Tone, error)
}

// Recorder receives arbiter observations. metrics.ArbiterMetrics implements it.
type Recorder interface {
	RecordTransition(from, to string)
	RecordVolumeCorrection(route string)
	SetNotificationDepth(depth int)
	SetHeadsetPresent(present bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string) {}
func (nopRecorder) RecordVolumeCorrection(string)   {}
func (nopRecorder) SetNotificationDepth(int)        {}
func (nopRecorder) SetHeadsetPresent(bool)          {}

// routeVolumeSetter is implemented by sessions that can set the volume of a
// route that is not currently active.
type routeVolumeSetter interface {
	SetRouteVolume(r audiosession.Route, v float32)
}

// Config tunes the arbiter.
type Config struct {
	// RequiredVolume is the lowest output volume that powers the accessory.
	RequiredVolume float32
	// AutoStart starts the link on headset insertion and pauses it on removal.
	AutoStart bool
	// StaleAfter is the decoder silence the watchdog reports.
	StaleAfter time.Duration
	// Category is applied while audio is enabled.
	Category audiosession.Category
}

// DefaultConfig returns the default arbiter settings.
func DefaultConfig() Config {
	return Config{
		RequiredVolume: 0.9,
		AutoStart:      true,
		StaleAfter:     10 * time.Second,
		Category: audiosession.Category{
			Name: audiosession.CategoryPlayAndRecord,
			Mode: audiosession.ModeMeasurement,
		},
	}
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the arbiter logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Arbiter) {
		a.log = l
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(a *Arbiter) {
		a.metrics = r
	}
}

// WithClock replaces the clock used by the watchdog.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) {
		a.now = now
	}
}

type headsetListener struct {
	id uuid.UUID
	fn func(HeadsetChange)
}

// Arbiter owns the audio session state machine. Methods are safe to call
// from multiple goroutines but the embedding application is expected to
// drive transitions from one place.
type Arbiter struct {
	session audiosession.Session
	factory LinkFactory
	cfg     Config
	log     logger.Logger
	metrics Recorder
	now     func() time.Time

	mu    sync.Mutex
	state State

	decoder Decoder
	tone    Tone
	carry   *timeseries.Ledger

	originalCategory *audiosession.Category
	userVolumes      map[audiosession.Route]float32
	headsetCancel    func()
	listeners        []headsetListener

	notificationDepth int
	resumeAfterNotify bool
}

// New creates an arbiter in the Uninitialized state.
func New(session audiosession.Session, factory LinkFactory, cfg Config, opts ...Option) *Arbiter {
	a := &Arbiter{
		session:     session,
		factory:     factory,
		cfg:         cfg,
		log:         GetLogger(),
		metrics:     nopRecorder{},
		now:         time.Now,
		carry:       timeseries.NewLedger(),
		userVolumes: make(map[audiosession.Route]float32),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// NotificationDepth returns the prepare/cleanup nesting level.
func (a *Arbiter) NotificationDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notificationDepth
}

// IsAudioEnabled reports whether audio is enabled.
func (a *Arbiter) IsAudioEnabled() bool {
	return a.State().Enabled()
}

// IsHeadsetPluggedIn reports whether something is in the audio jack.
func (a *Arbiter) IsHeadsetPluggedIn() bool {
	return a.session.HeadsetPresent()
}

// RequestMicrophonePermission asks the host for input permission.
func (a *Arbiter) RequestMicrophonePermission(fn func(granted bool)) {
	a.session.RequestRecordPermission(fn)
}

// AddHeadsetListener registers fn for headset changes while audio is enabled.
// Listeners are called in registration order.
func (a *Arbiter) AddHeadsetListener(fn func(HeadsetChange)) uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := uuid.New()
	a.listeners = append(a.listeners, headsetListener{id: id, fn: fn})
	return id
}

// RemoveHeadsetListener unregisters a listener. It reports whether id was known.
func (a *Arbiter) RemoveHeadsetListener(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.listeners)
	a.listeners = slices.DeleteFunc(a.listeners, func(l headsetListener) bool { return l.id == id })
	return len(a.listeners) != n
}

// EnableAllAudio moves Uninitialized or Stopped to EnabledNotStarted. The
// current category is saved for restoration and headset monitoring begins.
// A headset already present is reported to listeners immediately.
func (a *Arbiter) EnableAllAudio() error {
	a.mu.Lock()
	switch {
	case a.state.Terminal():
		a.mu.Unlock()
		return a.stateError("enable")
	case a.state.Enabled():
		a.mu.Unlock()
		return nil
	}

	original := a.session.Category()
	if err := a.session.SetCategory(a.cfg.Category); err != nil {
		a.mu.Unlock()
		return errors.New(err).
			Component("arbiter").
			Category(errors.CategoryResource).
			Context("operation", "set_category").
			Build()
	}
	a.originalCategory = &original
	a.headsetCancel = a.session.OnHeadsetChange(a.headsetChanged)
	a.setStateLocked(EnabledNotStarted)

	present := a.session.HeadsetPresent()
	a.metrics.SetHeadsetPresent(present)
	var listeners []headsetListener
	if present {
		listeners = slices.Clone(a.listeners)
		if a.cfg.AutoStart {
			if err := a.startLocked(); err != nil {
				a.log.Warn("link did not start on enable", logger.Error(err))
			}
		}
	}
	a.mu.Unlock()

	a.log.Info("audio enabled",
		logger.String("original_category", original.String()),
		logger.Bool("headset", present))
	notify(listeners, HeadsetInserted)
	return nil
}

// Start powers the accessory and begins decoding.
func (a *Arbiter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startLocked()
}

// Pause stops the tone and the decoder without releasing them.
func (a *Arbiter) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pauseLocked()
}

func (a *Arbiter) startLocked() error {
	switch a.state {
	case Started:
		return nil
	case EnabledNotStarted, Paused:
	default:
		return a.stateError("start")
	}
	if a.notificationDepth > 0 {
		// Resumed by the last cleanup
		a.resumeAfterNotify = true
		return nil
	}

	if a.decoder == nil {
		dec, err := a.factory.NewDecoder()
		if err != nil {
			return err
		}
		a.decoder = dec
	}
	if a.tone == nil {
		tone, err := a.factory.NewTone()
		if err != nil {
			return err
		}
		a.tone = tone
	}

	if err := a.tone.Play(); err != nil {
		return err
	}
	if err := a.decoder.StartRec(); err != nil {
		a.tone.Pause()
		return err
	}
	a.setStateLocked(Started)
	a.checkAndFixVolumeLocked()
	return nil
}

func (a *Arbiter) pauseLocked() {
	if a.state != Started {
		return
	}
	a.tone.Pause()
	a.decoder.PauseRec()
	a.setStateLocked(Paused)
}

func (a *Arbiter) headsetChanged(present bool) {
	a.mu.Lock()
	a.metrics.SetHeadsetPresent(present)
	if !a.state.Enabled() {
		a.mu.Unlock()
		return
	}

	change := HeadsetRemoved
	if present {
		change = HeadsetInserted
	}
	if a.cfg.AutoStart {
		if present {
			if err := a.startLocked(); err != nil {
				a.log.Warn("link did not start on headset insertion", logger.Error(err))
			}
		} else {
			a.pauseLocked()
			a.resumeAfterNotify = false
		}
	}
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()

	a.log.Info("headset changed", logger.String("change", change.String()))
	notify(listeners, change)
}

func notify(listeners []headsetListener, change HeadsetChange) {
	for _, l := range listeners {
		l.fn(change)
	}
}

// DisableAllAudio releases the decoder and tone, restores the original
// category and user volumes, and moves to Stopped. The session stays usable
// by the host.
func (a *Arbiter) DisableAllAudio() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.Enabled() {
		return
	}
	a.teardownLocked()
	a.restoreLocked()
	a.setStateLocked(Stopped)
	a.log.Info("audio disabled")
}

// Destroy releases everything and retires the arbiter. With disable set the
// original category and volumes are restored first and the terminal state is
// DestroyedAndDisabled.
func (a *Arbiter) Destroy(disable bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Terminal() {
		return
	}
	a.teardownLocked()
	final := Destroyed
	if disable {
		a.restoreLocked()
		final = DestroyedAndDisabled
	} else {
		a.clearNotificationLocked()
	}
	a.setStateLocked(final)
	a.log.Info("arbiter destroyed", logger.String("state", final.String()))
}

func (a *Arbiter) teardownLocked() {
	if a.headsetCancel != nil {
		a.headsetCancel()
		a.headsetCancel = nil
	}
	if a.tone != nil {
		a.tone.ImmediateDestroyState()
		a.tone = nil
	}
	if a.decoder != nil {
		a.decoder.ImmediateDestroyState()
		if err := a.carry.Merge(a.decoder.AllTemperatures()); err != nil {
			a.log.Warn("failed to keep decoded samples", logger.Error(err))
		}
		a.decoder = nil
	}
	a.resumeAfterNotify = false
}

// clearNotificationLocked drops any open notification nesting. Cleanups
// arriving later hit the zero floor.
func (a *Arbiter) clearNotificationLocked() {
	if a.notificationDepth > 0 {
		a.log.Warn("audio released during notification", logger.Int("depth", a.notificationDepth))
	}
	a.notificationDepth = 0
	a.resumeAfterNotify = false
	a.metrics.SetNotificationDepth(0)
}

func (a *Arbiter) restoreLocked() {
	if a.notificationDepth > 0 {
		if err := a.session.OverrideRoute(audiosession.OverrideNone); err != nil {
			a.log.Warn("failed to clear route override", logger.Error(err))
		}
	}
	a.clearNotificationLocked()
	if a.originalCategory != nil {
		if err := a.session.SetCategory(*a.originalCategory); err != nil {
			a.log.Warn("failed to restore category", logger.Error(err))
		}
		a.originalCategory = nil
	}
	a.returnToUserVolumeLocked()
}

// AllTemperatures hands over every sample decoded since the previous call,
// including samples from decoders released by a disable.
func (a *Arbiter) AllTemperatures() *timeseries.Ledger {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.carry
	a.carry = timeseries.NewLedger()
	if a.decoder != nil {
		if err := out.Merge(a.decoder.AllTemperatures()); err != nil {
			a.log.Warn("failed to merge decoded samples", logger.Error(err))
		}
	}
	return out
}

// LastParsedDataRead returns the time of the latest decoded frame, zero when
// no decoder is active.
func (a *Arbiter) LastParsedDataRead() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decoder == nil {
		return time.Time{}
	}
	return a.decoder.LastParsedDataRead()
}

func (a *Arbiter) setStateLocked(s State) {
	if s == a.state {
		return
	}
	a.metrics.RecordTransition(a.state.String(), s.String())
	a.log.Debug("state transition",
		logger.String("from", a.state.String()),
		logger.String("to", s.String()))
	a.state = s
}

func (a *Arbiter) stateError(op string) error {
	return errors.Newf("%s not allowed in state %s", op, a.state).
		Component("arbiter").
		Category(errors.CategoryState).
		Context("operation", op).
		Context("state", a.state.String()).
		Build()
}
