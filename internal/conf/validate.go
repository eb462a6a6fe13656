package conf

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"slices"

	"golang.org/x/text/language"

	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/trigger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateAudioSettings,
		validateDecoderSettings,
		validateToneSettings,
		validatePowerSettings,
		validateLedgerSettings,
		validateTriggerSettings,
		validateMQTTSettings,
		validateHTTPSettings,
		validateDisplaySettings,
		validateSentrySettings,
		validateSimulatorSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(s *Settings) error {
	a := &s.Audio
	if !slices.Contains([]string{BackendMalgo, BackendSimulate}, a.Backend) {
		return fmt.Errorf("audio.backend must be %q or %q, got %q", BackendMalgo, BackendSimulate, a.Backend)
	}
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("audio.samplerate %d outside 8000..192000", a.SampleRate)
	}
	if a.PeriodFrames < 0 {
		return fmt.Errorf("audio.periodframes must not be negative")
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("audio.pollinterval must be positive")
	}
	if a.InitialVolume < 0 || a.InitialVolume > 1 {
		return fmt.Errorf("audio.initialvolume %v outside [0,1]", a.InitialVolume)
	}
	return nil
}

func validateDecoderSettings(s *Settings) error {
	d := &s.Decoder
	if d.HalfPeriod < 2 || d.HalfPeriod%2 != 0 {
		return fmt.Errorf("decoder.halfperiod %d must be even and at least 2", d.HalfPeriod)
	}
	if d.Threshold <= 0 || d.Threshold > 32767 {
		return fmt.Errorf("decoder.threshold %d outside 1..32767", d.Threshold)
	}
	if d.BufferBytes < 4096 {
		return fmt.Errorf("decoder.bufferbytes %d below 4096", d.BufferBytes)
	}
	if d.StaleAfter <= 0 {
		return fmt.Errorf("decoder.staleafter must be positive")
	}
	return nil
}

func validateToneSettings(s *Settings) error {
	t := &s.Tone
	if t.Frequency <= 0 || t.Frequency >= float64(s.Audio.SampleRate)/2 {
		return fmt.Errorf("tone.frequency %v must be below half the sample rate", t.Frequency)
	}
	if t.Amplitude <= 0 || t.Amplitude > 1 {
		return fmt.Errorf("tone.amplitude %v outside (0,1]", t.Amplitude)
	}
	return nil
}

func validatePowerSettings(s *Settings) error {
	p := &s.Power
	if p.RequiredVolume <= 0 || p.RequiredVolume > 1 {
		return fmt.Errorf("power.requiredvolume %v outside (0,1]", p.RequiredVolume)
	}
	if p.WatchdogInterval <= 0 {
		return fmt.Errorf("power.watchdoginterval must be positive")
	}
	return nil
}

func validateLedgerSettings(s *Settings) error {
	if s.Ledger.GapThreshold < 0 {
		return fmt.Errorf("ledger.gapthreshold must not be negative")
	}
	if s.Ledger.RefreshInterval <= 0 {
		return fmt.Errorf("ledger.refreshinterval must be positive")
	}
	return nil
}

func validateTriggerSettings(s *Settings) error {
	if !s.Trigger.Enabled {
		return nil
	}
	dir, err := trigger.ParseDirection(s.Trigger.Direction)
	if err != nil {
		return err
	}
	if dir == trigger.Unset {
		return fmt.Errorf("trigger.direction must be set when the trigger is enabled")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	u, err := url.Parse(m.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker %q is not a broker URL", m.Broker)
	}
	if !slices.Contains([]string{"tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts"}, u.Scheme) {
		return fmt.Errorf("mqtt.broker scheme %q not supported", u.Scheme)
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	if m.MinInterval < 0 {
		return fmt.Errorf("mqtt.mininterval must not be negative")
	}
	return nil
}

func validateHTTPSettings(s *Settings) error {
	if !s.HTTP.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.HTTP.Listen); err != nil {
		return fmt.Errorf("http.listen %q: %w", s.HTTP.Listen, err)
	}
	return nil
}

func validateDisplaySettings(s *Settings) error {
	if _, err := temperature.ParseScale(s.Display.Scale); err != nil {
		return err
	}
	if _, err := language.Parse(s.Display.Locale); err != nil {
		return fmt.Errorf("display.locale %q: %w", s.Display.Locale, err)
	}
	return nil
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	return nil
}

func validateSimulatorSettings(s *Settings) error {
	if s.Audio.Backend != BackendSimulate {
		return nil
	}
	uid, err := hex.DecodeString(s.Simulator.UID)
	if err != nil || len(uid) == 0 || len(uid) > 16 {
		return fmt.Errorf("simulator.uid %q must be 1 to 16 hex encoded bytes", s.Simulator.UID)
	}
	if s.Simulator.Interval <= 0 {
		return fmt.Errorf("simulator.interval must be positive")
	}
	if s.Simulator.MinPower <= 0 || s.Simulator.MinPower > 1 {
		return fmt.Errorf("simulator.minpower %v outside (0,1]", s.Simulator.MinPower)
	}
	return nil
}
