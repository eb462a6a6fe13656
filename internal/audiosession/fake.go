package audiosession

import (
	"math"
	"slices"
	"sync"
)

// Fake is an in-memory Session. Tests and the simulator drive it with
// SetHeadset, Feed and Render. Only one output stream may run at a time.
type Fake struct {
	mu sync.Mutex

	format     Format
	category   Category
	override   RouteOverride
	headset    bool
	volumes    map[Route]float32
	permission bool

	inputs  []*fakeStream
	outputs []*fakeStream

	listeners map[int]func(bool)
	nextID    int

	outputErr   error
	inputErr    error
	overrideErr error
	categoryErr error
	volumeErr   error

	closed bool
}

type fakeStream struct {
	fake    *Fake
	running bool
	closed  bool
	capture CaptureHandler
	render  RenderFunc
}

// NewFake returns a fake session with the speaker route active and both
// route volumes at 0.5.
func NewFake(format Format) *Fake {
	if format.Channels == 0 {
		format.Channels = 1
	}
	return &Fake{
		format:     format,
		category:   Category{Name: CategoryAmbient, Mode: ModeDefault},
		volumes:    map[Route]float32{RouteSpeaker: 0.5, RouteHeadset: 0.5},
		permission: true,
		listeners:  make(map[int]func(bool)),
	}
}

// Format implements Session
func (f *Fake) Format() Format { return f.format }

// Category implements Session
func (f *Fake) Category() Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.category
}

// SetCategory implements Session
func (f *Fake) SetCategory(c Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoryErr != nil {
		return f.categoryErr
	}
	f.category = c
	return nil
}

func (f *Fake) routeLocked() Route {
	if f.headset && f.override == OverrideNone {
		return RouteHeadset
	}
	return RouteSpeaker
}

// CurrentRoute implements Session
func (f *Fake) CurrentRoute() Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routeLocked()
}

// OverrideRoute implements Session
func (f *Fake) OverrideRoute(o RouteOverride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overrideErr != nil {
		return f.overrideErr
	}
	f.override = o
	return nil
}

// Override returns the active route override.
func (f *Fake) Override() RouteOverride {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.override
}

// OutputVolume implements Session
func (f *Fake) OutputVolume() float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[f.routeLocked()]
}

// SetOutputVolume implements Session
func (f *Fake) SetOutputVolume(v float32) error {
	v, err := validateVolume(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volumeErr != nil {
		return f.volumeErr
	}
	f.volumes[f.routeLocked()] = v
	return nil
}

// RouteVolume returns the stored volume of a route regardless of the current route.
func (f *Fake) RouteVolume(r Route) float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[r]
}

// SetRouteVolume changes a route volume the way a user pressing volume keys would.
func (f *Fake) SetRouteVolume(r Route, v float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[r] = v
}

// HeadsetPresent implements Session
func (f *Fake) HeadsetPresent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headset
}

// OnHeadsetChange implements Session
func (f *Fake) OnHeadsetChange(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// SetHeadset simulates plugging or unplugging the accessory. Listeners run on
// the calling goroutine in registration order.
func (f *Fake) SetHeadset(present bool) {
	f.mu.Lock()
	if f.headset == present {
		f.mu.Unlock()
		return
	}
	f.headset = present
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.listeners[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(present)
	}
}

// SetPermission sets the answer RequestRecordPermission gives.
func (f *Fake) SetPermission(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permission = granted
}

// RequestRecordPermission implements Session
func (f *Fake) RequestRecordPermission(fn func(bool)) {
	f.mu.Lock()
	granted := f.permission
	f.mu.Unlock()
	fn(granted)
}

// FailOutput makes OpenOutput and output Start return err until cleared with nil.
func (f *Fake) FailOutput(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputErr = err
}

// FailInput makes OpenInput return err until cleared with nil.
func (f *Fake) FailInput(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputErr = err
}

// FailOverride makes OverrideRoute return err until cleared with nil.
func (f *Fake) FailOverride(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrideErr = err
}

// FailCategory makes SetCategory return err until cleared with nil.
func (f *Fake) FailCategory(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryErr = err
}

// FailVolume makes SetOutputVolume return err until cleared with nil.
func (f *Fake) FailVolume(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumeErr = err
}

// OpenInput implements Session
func (f *Fake) OpenInput(handler CaptureHandler) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrStreamClosed
	}
	if f.inputErr != nil {
		return nil, f.inputErr
	}
	s := &fakeStream{fake: f, capture: handler}
	f.inputs = append(f.inputs, s)
	return s, nil
}

// OpenOutput implements Session
func (f *Fake) OpenOutput(render RenderFunc) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrStreamClosed
	}
	if f.outputErr != nil {
		return nil, f.outputErr
	}
	s := &fakeStream{fake: f, render: render}
	f.outputs = append(f.outputs, s)
	return s, nil
}

// Feed delivers pcm to every running input and returns how many received it.
func (f *Fake) Feed(pcm []int16) int {
	f.mu.Lock()
	var handlers []CaptureHandler
	for _, s := range f.inputs {
		if s.running {
			handlers = append(handlers, s.capture)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(pcm)
	}
	return len(handlers)
}

// Render pulls n samples from the running output with the route volume
// applied. It returns nil when no output is running.
func (f *Fake) Render(n int) []int16 {
	f.mu.Lock()
	var render RenderFunc
	for _, s := range f.outputs {
		if s.running {
			render = s.render
			break
		}
	}
	gain := f.volumes[f.routeLocked()]
	f.mu.Unlock()

	if render == nil {
		return nil
	}
	out := make([]int16, n)
	render(out)
	applyGain(out, gain)
	return out
}

// RunningOutputs returns the number of running output streams.
func (f *Fake) RunningOutputs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.outputs {
		if s.running {
			n++
		}
	}
	return n
}

// OpenStreams returns the number of input and output streams not yet closed.
func (f *Fake) OpenStreams() (inputs, outputs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs), len(f.outputs)
}

// Close implements Session
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for _, s := range slices.Concat(f.inputs, f.outputs) {
		s.running = false
		s.closed = true
	}
	f.inputs, f.outputs = nil, nil
	return nil
}

func (s *fakeStream) Start() error {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if s.render != nil {
		if f.outputErr != nil {
			return f.outputErr
		}
		for _, o := range f.outputs {
			if o != s && o.running {
				return ErrDeviceBusy
			}
		}
	}
	s.running = true
	return nil
}

func (s *fakeStream) Stop() error {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.running = false
	return nil
}

func (s *fakeStream) Close() error {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.closed {
		return nil
	}
	s.running = false
	s.closed = true
	f.inputs = slices.DeleteFunc(f.inputs, func(o *fakeStream) bool { return o == s })
	f.outputs = slices.DeleteFunc(f.outputs, func(o *fakeStream) bool { return o == s })
	return nil
}

// applyGain scales pcm in place with saturation.
func applyGain(pcm []int16, gain float32) {
	if gain == 1 {
		return
	}
	for i, v := range pcm {
		scaled := math.Round(float64(v) * float64(gain))
		pcm[i] = int16(max(math.MinInt16, min(math.MaxInt16, scaled)))
	}
}
