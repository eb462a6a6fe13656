package trigger

import (
	"gopkg.in/yaml.v3"

	"github.com/supermechanical/rangelink/internal/errors"
)

// Config is the persisted form of a trigger. The regime is runtime state and
// is not stored.
type Config struct {
	Temperature float32   `yaml:"temperature" json:"temperature" mapstructure:"temperature"`
	Direction   Direction `yaml:"direction" json:"direction" mapstructure:"direction"`
}

// Config returns the persistable configuration.
func (t *Trigger) Config() Config {
	return Config{Temperature: t.temperature, Direction: t.direction}
}

// FromConfig builds a trigger with an unset regime.
func FromConfig(c Config) *Trigger {
	return New(c.Temperature, c.Direction)
}

// Encode serializes the trigger configuration as YAML.
func (t *Trigger) Encode() ([]byte, error) {
	data, err := yaml.Marshal(t.Config())
	if err != nil {
		return nil, errors.New(err).
			Component("trigger").
			Category(errors.CategoryProcessing).
			Build()
	}
	return data, nil
}

// Decode restores a trigger from YAML produced by Encode.
func Decode(data []byte) (*Trigger, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.New(err).
			Component("trigger").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return FromConfig(c), nil
}
