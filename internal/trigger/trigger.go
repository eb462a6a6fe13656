// Package trigger evaluates threshold crossings of a temperature stream.
package trigger

import (
	"fmt"
	"strings"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

// Direction selects which threshold crossings fire.
type Direction int

const (
	Unset Direction = iota
	Rising
	Falling
	Bidirectional
)

var directionNames = [...]string{"unset", "rising", "falling", "bidirectional"}

func (d Direction) String() string {
	if d < Unset || d > Bidirectional {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Toggle cycles rising, falling, bidirectional and back to rising.
// Unset toggles to rising.
func (d Direction) Toggle() Direction {
	switch d {
	case Rising:
		return Falling
	case Falling:
		return Bidirectional
	default:
		return Rising
	}
}

// ParseDirection parses the names produced by Direction.String.
func ParseDirection(s string) (Direction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return Unset, errors.Newf("unknown trigger direction %q", s).
		Component("trigger").
		Category(errors.CategoryValidation).
		Build()
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	if d < Unset || d > Bidirectional {
		return nil, errors.Newf("invalid trigger direction %d", int(d)).
			Component("trigger").
			Category(errors.CategoryValidation).
			Build()
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Regime is the side of the threshold the last evaluated sample was on.
type Regime int

const (
	RegimeUnset Regime = iota
	RegimeAbove
	RegimeBelow
)

func (r Regime) String() string {
	switch r {
	case RegimeAbove:
		return "above"
	case RegimeBelow:
		return "below"
	default:
		return "unset"
	}
}

// Trigger fires when consecutive samples cross Temperature in Direction.
// A sample equal to the threshold counts as above. The first sample after
// construction or Change only establishes the regime.
//
// Trigger is not safe for concurrent use.
type Trigger struct {
	temperature float32
	direction   Direction
	regime      Regime
}

// New returns a trigger for a raw-scale threshold.
func New(temperature float32, direction Direction) *Trigger {
	return &Trigger{temperature: temperature, direction: direction}
}

// Temperature returns the threshold in raw scale.
func (t *Trigger) Temperature() float32 { return t.temperature }

// Direction returns the configured direction.
func (t *Trigger) Direction() Direction { return t.direction }

// Regime returns the regime established by the last evaluated sample.
func (t *Trigger) Regime() Regime { return t.regime }

// Change reconfigures the trigger and forgets the current regime.
func (t *Trigger) Change(temperature float32, direction Direction) {
	t.temperature = temperature
	t.direction = direction
	t.regime = RegimeUnset
}

// Reset forgets the current regime.
func (t *Trigger) Reset() {
	t.regime = RegimeUnset
}

// Evaluate updates the regime with s and reports whether the transition fires.
func (t *Trigger) Evaluate(s timeseries.Sample) bool {
	next := RegimeBelow
	if s.Temperature >= t.temperature {
		next = RegimeAbove
	}

	prev := t.regime
	t.regime = next

	if prev == RegimeUnset || prev == next {
		return false
	}

	switch t.direction {
	case Rising:
		return next == RegimeAbove
	case Falling:
		return next == RegimeBelow
	case Bidirectional:
		return true
	default:
		return false
	}
}

// EvaluateAll feeds samples in order and returns the ones that fired.
func (t *Trigger) EvaluateAll(samples []timeseries.Sample) []timeseries.Sample {
	var fired []timeseries.Sample
	for _, s := range samples {
		if t.Evaluate(s) {
			fired = append(fired, s)
		}
	}
	return fired
}
