package audiosession

import (
	"encoding/binary"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// MalgoConfig configures the miniaudio backed session.
type MalgoConfig struct {
	SampleRate     int
	PeriodFrames   int
	CaptureDevice  string // device name substring, "" or "default" selects the default device
	PlaybackDevice string // device used while the headset route is active
	SpeakerDevice  string // device used while the speaker override is active
	HeadsetMatch   string // substring of a capture device name that identifies the accessory jack
	PollInterval   time.Duration
	InitialVolume  float32
}

// DeviceInfo describes one enumerated device.
type DeviceInfo struct {
	Name      string
	ID        string
	IsDefault bool
	Capture   bool
}

// MalgoSession implements Session on top of miniaudio. Desktop hosts have no
// session category or per-route hardware volume, so the category is recorded
// only and route volume is applied as software gain on the output stream.
type MalgoSession struct {
	cfg    MalgoConfig
	ctx    *malgo.AllocatedContext
	logger logger.Logger

	mu        sync.Mutex
	category  Category
	override  RouteOverride
	headset   bool
	volumes   map[Route]float32
	listeners map[int]func(bool)
	nextID    int
	output    *malgoStream

	gain atomic.Uint32 // math.Float32bits of the current route volume

	stopPoll chan struct{}
	pollDone chan struct{}
	closed   bool
}

// getBackendForPlatform returns the miniaudio backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("audiosession").
			Category(errors.CategoryAudioSource).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext(log logger.Logger) (*malgo.AllocatedContext, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("audiosession").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	return ctx, nil
}

// NewMalgoSession initializes miniaudio and starts headset polling.
func NewMalgoSession(cfg MalgoConfig, log logger.Logger) (*MalgoSession, error) {
	if log == nil {
		log = GetLogger()
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", cfg.SampleRate).
			Component("audiosession").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.InitialVolume <= 0 || cfg.InitialVolume > 1 {
		cfg.InitialVolume = 1
	}

	ctx, err := initContext(log)
	if err != nil {
		return nil, err
	}

	s := &MalgoSession{
		cfg:       cfg,
		ctx:       ctx,
		logger:    log,
		category:  Category{Name: CategoryAmbient, Mode: ModeDefault},
		volumes:   map[Route]float32{RouteSpeaker: cfg.InitialVolume, RouteHeadset: cfg.InitialVolume},
		listeners: make(map[int]func(bool)),
		stopPoll:  make(chan struct{}),
		pollDone:  make(chan struct{}),
	}
	s.headset = s.detectHeadset()
	s.updateGainLocked()

	go s.pollHeadset()

	log.Info("audio session initialized",
		logger.String("backend", runtime.GOOS),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Bool("headset", s.headset))
	return s, nil
}

// ListDevices enumerates capture and playback devices.
func ListDevices(log logger.Logger) ([]DeviceInfo, error) {
	if log == nil {
		log = GetLogger()
	}
	ctx, err := initContext(log)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	var out []DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := ctx.Devices(kind)
		if err != nil {
			return nil, errors.New(err).
				Component("audiosession").
				Category(errors.CategoryAudioSource).
				Context("operation", "enumerate_devices").
				Build()
		}
		for i := range infos {
			if strings.Contains(infos[i].Name(), "Discard all samples") {
				continue
			}
			out = append(out, DeviceInfo{
				Name:      infos[i].Name(),
				ID:        infos[i].ID.String(),
				IsDefault: infos[i].IsDefault == 1,
				Capture:   kind == malgo.Capture,
			})
		}
	}
	return out, nil
}

// selectDevice returns the device matching name, or the default device.
func selectDevice(infos []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" {
		for i := range infos {
			if infos[i].IsDefault == 1 {
				return &infos[i], nil
			}
		}
		if len(infos) > 0 {
			return &infos[0], nil
		}
	} else {
		want := strings.ToLower(name)
		for i := range infos {
			if strings.Contains(strings.ToLower(infos[i].Name()), want) {
				return &infos[i], nil
			}
		}
	}
	return nil, errors.Newf("audio device %q not found", name).
		Component("audiosession").
		Category(errors.CategoryNotFound).
		Context("device", name).
		Build()
}

func (s *MalgoSession) detectHeadset() bool {
	infos, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		s.logger.Warn("capture device enumeration failed", logger.Error(err))
		return false
	}
	if s.cfg.HeadsetMatch == "" {
		return len(infos) > 0
	}
	want := strings.ToLower(s.cfg.HeadsetMatch)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), want) {
			return true
		}
	}
	return false
}

func (s *MalgoSession) pollHeadset() {
	defer close(s.pollDone)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			present := s.detectHeadset()

			s.mu.Lock()
			changed := present != s.headset
			s.headset = present
			s.updateGainLocked()
			fns := s.listenersLocked()
			s.mu.Unlock()

			if !changed {
				continue
			}
			s.logger.Info("headset presence changed", logger.Bool("present", present))
			for _, fn := range fns {
				fn(present)
			}
		}
	}
}

func (s *MalgoSession) listenersLocked() []func(bool) {
	fns := make([]func(bool), 0, len(s.listeners))
	for id := range s.nextID {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

func (s *MalgoSession) routeLocked() Route {
	if s.headset && s.override == OverrideNone {
		return RouteHeadset
	}
	return RouteSpeaker
}

func (s *MalgoSession) updateGainLocked() {
	s.gain.Store(math.Float32bits(s.volumes[s.routeLocked()]))
}

// Format implements Session
func (s *MalgoSession) Format() Format {
	return Format{SampleRate: s.cfg.SampleRate, Channels: 1}
}

// Category implements Session
func (s *MalgoSession) Category() Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

// SetCategory implements Session
func (s *MalgoSession) SetCategory(c Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = c
	return nil
}

// CurrentRoute implements Session
func (s *MalgoSession) CurrentRoute() Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routeLocked()
}

// OverrideRoute implements Session. The override takes effect for outputs
// opened afterwards.
func (s *MalgoSession) OverrideRoute(o RouteOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = o
	s.updateGainLocked()
	return nil
}

// OutputVolume implements Session
func (s *MalgoSession) OutputVolume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volumes[s.routeLocked()]
}

// SetOutputVolume implements Session
func (s *MalgoSession) SetOutputVolume(v float32) error {
	v, err := validateVolume(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[s.routeLocked()] = v
	s.updateGainLocked()
	return nil
}

// HeadsetPresent implements Session
func (s *MalgoSession) HeadsetPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headset
}

// OnHeadsetChange implements Session
func (s *MalgoSession) OnHeadsetChange(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// RequestRecordPermission implements Session. Desktop hosts grant capture
// access at the OS level, so the answer is always yes.
func (s *MalgoSession) RequestRecordPermission(fn func(bool)) {
	fn(true)
}

// OpenInput implements Session
func (s *MalgoSession) OpenInput(handler CaptureHandler) (Stream, error) {
	infos, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("audiosession").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_capture").
			Build()
	}
	info, err := selectDevice(infos, s.cfg.CaptureDevice)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(max(s.cfg.PeriodFrames, 0))
	deviceConfig.Alsa.NoMMap = 1

	var pcm []int16
	onData := func(_, pInput []byte, framecount uint32) {
		n := min(int(framecount), len(pInput)/2)
		if cap(pcm) < n {
			pcm = make([]int16, n)
		}
		pcm = pcm[:n]
		for i := range n {
			pcm[i] = int16(binary.LittleEndian.Uint16(pInput[2*i:]))
		}
		handler(pcm)
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, errors.New(err).
			Component("audiosession").
			Category(errors.CategoryResource).
			Context("operation", "init_capture").
			Context("device", info.Name()).
			Build()
	}

	s.logger.Info("capture device opened", logger.String("device", info.Name()))
	return &malgoStream{device: device, name: info.Name()}, nil
}

// OpenOutput implements Session
func (s *MalgoSession) OpenOutput(render RenderFunc) (Stream, error) {
	s.mu.Lock()
	if s.output != nil && !s.output.isClosed() {
		s.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	name := s.cfg.PlaybackDevice
	if s.routeLocked() == RouteSpeaker && s.cfg.SpeakerDevice != "" {
		name = s.cfg.SpeakerDevice
	}
	s.mu.Unlock()

	infos, err := s.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("audiosession").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_playback").
			Build()
	}
	info, err := selectDevice(infos, name)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.Playback.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(max(s.cfg.PeriodFrames, 0))
	deviceConfig.Alsa.NoMMap = 1

	var pcm []int16
	onData := func(pOutput, _ []byte, framecount uint32) {
		n := min(int(framecount), len(pOutput)/2)
		if cap(pcm) < n {
			pcm = make([]int16, n)
		}
		pcm = pcm[:n]
		render(pcm)
		applyGain(pcm, math.Float32frombits(s.gain.Load()))
		for i, v := range pcm {
			binary.LittleEndian.PutUint16(pOutput[2*i:], uint16(v))
		}
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, errors.New(err).
			Component("audiosession").
			Category(errors.CategoryResource).
			Context("operation", "init_playback").
			Context("device", info.Name()).
			Build()
	}

	stream := &malgoStream{device: device, name: info.Name()}
	s.mu.Lock()
	s.output = stream
	s.mu.Unlock()

	s.logger.Info("playback device opened", logger.String("device", info.Name()))
	return stream, nil
}

// Close stops headset polling and releases miniaudio.
func (s *MalgoSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopPoll)
	<-s.pollDone

	if err := s.ctx.Uninit(); err != nil {
		return errors.New(err).
			Component("audiosession").
			Category(errors.CategoryAudioSource).
			Context("operation", "uninit_context").
			Build()
	}
	s.ctx.Free()
	return nil
}

type malgoStream struct {
	mu     sync.Mutex
	device *malgo.Device
	name   string
	closed bool
}

func (m *malgoStream) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *malgoStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStreamClosed
	}
	if m.device.IsStarted() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return errors.New(err).
			Component("audiosession").
			Category(errors.CategoryResource).
			Context("device", m.name).
			Build()
	}
	return nil
}

func (m *malgoStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStreamClosed
	}
	if !m.device.IsStarted() {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return errors.New(err).
			Component("audiosession").
			Category(errors.CategoryAudio).
			Context("device", m.name).
			Build()
	}
	return nil
}

// Close uninitializes the device. miniaudio waits for an in-flight callback
// before returning, so no callback runs after Close.
func (m *malgoStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.device.Uninit()
	return nil
}
