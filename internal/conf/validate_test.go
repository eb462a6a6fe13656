package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Audio: AudioSettings{
			Backend:       BackendSimulate,
			SampleRate:    44100,
			PollInterval:  time.Second,
			InitialVolume: 0.5,
		},
		Decoder: DecoderSettings{HalfPeriod: 8, Threshold: 1024, BufferBytes: 1 << 16, StaleAfter: 10 * time.Second},
		Tone:    ToneSettings{Frequency: 15000, Amplitude: 1},
		Power:   PowerSettings{RequiredVolume: 0.9, WatchdogInterval: time.Second},
		Ledger:  LedgerSettings{GapThreshold: 30, RefreshInterval: time.Second},
		Trigger: TriggerSettings{Direction: "rising"},
		MQTT:    MQTTSettings{Broker: "tcp://localhost:1883", Topic: "rangelink"},
		HTTP:    HTTPSettings{Enabled: true, Listen: "127.0.0.1:8089"},
		Display: DisplaySettings{Scale: "fahrenheit", Locale: "en-US"},
		Simulator: SimulatorSettings{
			UID:      "524e4701",
			Interval: time.Second,
			MinPower: 0.5,
		},
	}
}

func TestValidateSettings(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown backend", func(s *Settings) { s.Audio.Backend = "alsa" }},
		{"low sample rate", func(s *Settings) { s.Audio.SampleRate = 4000 }},
		{"odd half period", func(s *Settings) { s.Decoder.HalfPeriod = 5 }},
		{"tone above nyquist", func(s *Settings) { s.Tone.Frequency = 30000 }},
		{"zero required volume", func(s *Settings) { s.Power.RequiredVolume = 0 }},
		{"negative gap", func(s *Settings) { s.Ledger.GapThreshold = -1 }},
		{"bad trigger direction", func(s *Settings) { s.Trigger.Enabled = true; s.Trigger.Direction = "sideways" }},
		{"unset trigger direction", func(s *Settings) { s.Trigger.Enabled = true; s.Trigger.Direction = "unset" }},
		{"mqtt without host", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Broker = "localhost" }},
		{"mqtt bad scheme", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Broker = "http://localhost:80" }},
		{"http listen without port", func(s *Settings) { s.HTTP.Listen = "localhost" }},
		{"bad scale", func(s *Settings) { s.Display.Scale = "rankine" }},
		{"bad locale", func(s *Settings) { s.Display.Locale = "!!" }},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }},
		{"simulator uid not hex", func(s *Settings) { s.Simulator.UID = "xyz" }},
		{"simulator uid too long", func(s *Settings) { s.Simulator.UID = "00112233445566778899aabbccddeeff00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.IsType(t, ValidationError{}, err)
		})
	}
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	s := validSettings()
	s.MQTT.Broker = ""
	s.HTTP.Enabled = false
	s.HTTP.Listen = ""
	s.Trigger.Direction = "sideways"
	s.Audio.Backend = BackendMalgo
	s.Simulator.UID = ""
	assert.NoError(t, ValidateSettings(s))
}
