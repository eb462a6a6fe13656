// Package temperature converts raw probe readings between scales and formats them.
// Raw readings are Fahrenheit.
package temperature

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/supermechanical/rangelink/internal/errors"
)

// Scale is a temperature unit.
type Scale int

const (
	Fahrenheit Scale = iota
	Celsius
	Kelvin
)

// RawScale is the scale decoded samples are expressed in.
const RawScale = Fahrenheit

// Symbol returns the unit suffix.
func (s Scale) Symbol() string {
	switch s {
	case Celsius:
		return "°C"
	case Kelvin:
		return "K"
	default:
		return "°F"
	}
}

func (s Scale) String() string {
	switch s {
	case Fahrenheit:
		return "fahrenheit"
	case Celsius:
		return "celsius"
	case Kelvin:
		return "kelvin"
	default:
		return fmt.Sprintf("scale(%d)", int(s))
	}
}

// ParseScale accepts full names or the single-letter unit.
func ParseScale(s string) (Scale, error) {
	switch s {
	case "fahrenheit", "F", "f":
		return Fahrenheit, nil
	case "celsius", "C", "c":
		return Celsius, nil
	case "kelvin", "K", "k":
		return Kelvin, nil
	}
	return Fahrenheit, errors.Newf("unknown temperature scale %q", s).
		Component("temperature").
		Category(errors.CategoryValidation).
		Build()
}

// PrintFormat selects how readings are rendered.
type PrintFormat int

const (
	// RawData renders one decimal without unit, suitable for export.
	RawData PrintFormat = iota
	// HumanReadable renders a whole number with the unit symbol.
	HumanReadable
)

const kelvinOffset = 273.15

func toCelsius(value float64, from Scale) float64 {
	switch from {
	case Celsius:
		return value
	case Kelvin:
		return value - kelvinOffset
	default:
		return (value - 32) * 5 / 9
	}
}

func fromCelsius(c float64, to Scale) float64 {
	switch to {
	case Celsius:
		return c
	case Kelvin:
		return c + kelvinOffset
	default:
		return c*9/5 + 32
	}
}

// Convert converts value between two scales.
func Convert(value float32, from, to Scale) float32 {
	if from == to {
		return value
	}
	return float32(fromCelsius(toCelsius(float64(value), from), to))
}

// Translator converts raw readings into a current display scale.
// It is safe for concurrent use.
type Translator struct {
	mu      sync.RWMutex
	current Scale
	printer *message.Printer
}

// NewTranslator returns a translator displaying in scale, formatting numbers for tag.
func NewTranslator(scale Scale, tag language.Tag) *Translator {
	return &Translator{current: scale, printer: message.NewPrinter(tag)}
}

// Scale returns the current display scale.
func (t *Translator) Scale() Scale {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// SetScale changes the current display scale.
func (t *Translator) SetScale(s Scale) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = s
}

// Translate converts a raw reading into the current scale.
func (t *Translator) Translate(raw float32) float32 {
	return Convert(raw, RawScale, t.Scale())
}

// TranslateTo converts a raw reading into scale.
func (t *Translator) TranslateTo(raw float32, scale Scale) float32 {
	return Convert(raw, RawScale, scale)
}

// TranslateBetween converts value from one scale to another.
func (t *Translator) TranslateBetween(value float32, from, to Scale) float32 {
	return Convert(value, from, to)
}

// ToRaw converts a value in the current scale back to raw.
func (t *Translator) ToRaw(value float32) float32 {
	return Convert(value, t.Scale(), RawScale)
}

// Round converts raw into the current scale and rounds it for format.
func (t *Translator) Round(raw float32, format PrintFormat) float32 {
	return t.RoundIn(raw, format, t.Scale())
}

// RoundIn converts raw into scale and rounds it for format.
func (t *Translator) RoundIn(raw float32, format PrintFormat, scale Scale) float32 {
	v := float64(Convert(raw, RawScale, scale))
	if format == HumanReadable {
		return float32(math.Round(v))
	}
	return float32(math.Round(v*10) / 10)
}

// Print renders raw in the current scale.
func (t *Translator) Print(raw float32, format PrintFormat) string {
	return t.PrintIn(raw, format, t.Scale())
}

// PrintIn renders raw in scale.
func (t *Translator) PrintIn(raw float32, format PrintFormat, scale Scale) string {
	v := t.RoundIn(raw, format, scale)
	if format == HumanReadable {
		return t.printer.Sprintf("%.0f%s", v, scale.Symbol())
	}
	return t.printer.Sprintf("%.1f", v)
}
