// Package audiosession abstracts the host audio subsystem: one PCM input, one
// PCM output, per-route output volume, route override and headset presence.
//
// Two implementations exist: Fake, an in-memory session driven by tests and
// the simulator, and MalgoSession backed by miniaudio.
package audiosession

import (
	"fmt"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("audiosession")
}

// Format describes the PCM layout exchanged with handlers: signed 16-bit
// interleaved samples.
type Format struct {
	SampleRate int
	Channels   int
}

// Option is a category option bit.
type Option uint32

const (
	OptionMixWithOthers Option = 1 << iota
	OptionDefaultToSpeaker
	OptionAllowBluetooth
)

// Category names and modes understood by the sessions.
const (
	CategoryAmbient       = "ambient"
	CategoryPlayback      = "playback"
	CategoryPlayAndRecord = "play-and-record"

	ModeDefault     = "default"
	ModeMeasurement = "measurement"
)

// Category is the session configuration that decides how the process shares
// audio hardware.
type Category struct {
	Name    string
	Mode    string
	Options Option
}

func (c Category) String() string {
	return fmt.Sprintf("%s/%s/%#x", c.Name, c.Mode, uint32(c.Options))
}

// Route is the physical output currently in use.
type Route int

const (
	RouteUnknown Route = iota
	RouteSpeaker
	RouteHeadset
)

func (r Route) String() string {
	switch r {
	case RouteSpeaker:
		return "speaker"
	case RouteHeadset:
		return "headset"
	default:
		return "unknown"
	}
}

// RouteOverride forces output away from the headset connector.
type RouteOverride int

const (
	OverrideNone RouteOverride = iota
	OverrideSpeaker
)

// CaptureHandler receives input buffers on a platform goroutine. It must not
// block and must not retain pcm after returning.
type CaptureHandler func(pcm []int16)

// RenderFunc fills out with the next output samples on a platform goroutine.
// It must not block.
type RenderFunc func(out []int16)

// Stream is an opened input or output. Close releases it synchronously.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// InputOpener opens the single PCM input.
type InputOpener interface {
	Format() Format
	OpenInput(handler CaptureHandler) (Stream, error)
}

// OutputOpener opens the single PCM output.
type OutputOpener interface {
	Format() Format
	OpenOutput(render RenderFunc) (Stream, error)
}

// Session is the full host audio subsystem contract.
type Session interface {
	InputOpener
	OutputOpener

	Category() Category
	SetCategory(c Category) error

	CurrentRoute() Route
	OverrideRoute(o RouteOverride) error

	// OutputVolume is the volume of the current route in [0,1]
	OutputVolume() float32
	SetOutputVolume(v float32) error

	HeadsetPresent() bool
	// OnHeadsetChange registers fn for headset insertion and removal and
	// returns a function that unregisters it.
	OnHeadsetChange(fn func(present bool)) (cancel func())

	RequestRecordPermission(fn func(granted bool))

	Close() error
}

var (
	// ErrStreamClosed is returned by operations on a closed stream.
	ErrStreamClosed = errors.New(errors.NewStd("audio stream closed")).
			Component("audiosession").
			Category(errors.CategoryState).
			Build()

	// ErrDeviceBusy is returned when the single input or output is already claimed.
	ErrDeviceBusy = errors.New(errors.NewStd("audio device busy")).
			Component("audiosession").
			Category(errors.CategoryResource).
			Build()
)

func validateVolume(v float32) (float32, error) {
	if v < 0 || v > 1 || v != v {
		return 0, errors.Newf("volume %v outside [0,1]", v).
			Component("audiosession").
			Category(errors.CategoryValidation).
			Build()
	}
	return v, nil
}
