package arbiter

import "fmt"

// State is the audio session state. Values are stable and exported to
// metrics and the HTTP API.
type State int

const (
	Uninitialized        State = 0
	Started              State = 1
	Stopped              State = 2
	Paused               State = 3
	Destroyed            State = 4
	EnabledNotStarted    State = 5
	DestroyedAndDisabled State = 6
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Paused:
		return "paused"
	case Destroyed:
		return "destroyed"
	case EnabledNotStarted:
		return "enabled-not-started"
	case DestroyedAndDisabled:
		return "destroyed-and-disabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Destroyed || s == DestroyedAndDisabled
}

// Enabled reports whether audio is enabled, started or not.
func (s State) Enabled() bool {
	return s == EnabledNotStarted || s == Started || s == Paused
}

// HeadsetChange is the direction of a headset event.
type HeadsetChange int

const (
	HeadsetRemoved HeadsetChange = iota
	HeadsetInserted
)

func (c HeadsetChange) String() string {
	if c == HeadsetInserted {
		return "inserted"
	}
	return "removed"
}
