// Package setup turns loaded settings into component configurations shared
// by the subcommands.
package setup

import (
	"encoding/hex"
	"math"
	"time"

	"golang.org/x/text/language"

	"github.com/supermechanical/rangelink/internal/arbiter"
	"github.com/supermechanical/rangelink/internal/audiolink"
	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/conf"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/httpapi"
	"github.com/supermechanical/rangelink/internal/monitor"
	"github.com/supermechanical/rangelink/internal/mqtt"
	"github.com/supermechanical/rangelink/internal/reader"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/trigger"
)

// ModemConfig returns the link timing.
func ModemConfig(s *conf.Settings) audiolink.ModemConfig {
	cfg := audiolink.DefaultModemConfig()
	cfg.HalfPeriod = s.Decoder.HalfPeriod
	cfg.Threshold = int16(min(s.Decoder.Threshold, math.MaxInt16))
	return cfg
}

// Translator returns the display translator.
func Translator(s *conf.Settings) (*temperature.Translator, error) {
	scale, tag, err := display(s)
	if err != nil {
		return nil, err
	}
	return temperature.NewTranslator(scale, tag), nil
}

func display(s *conf.Settings) (temperature.Scale, language.Tag, error) {
	scale, err := temperature.ParseScale(s.Display.Scale)
	if err != nil {
		return scale, language.Und, err
	}
	tag, err := language.Parse(s.Display.Locale)
	if err != nil {
		return scale, language.Und, errors.New(err).
			Component("setup").
			Category(errors.CategoryConfiguration).
			Context("locale", s.Display.Locale).
			Build()
	}
	return scale, tag, nil
}

// ReaderConfig returns the configuration of the reader and its components.
func ReaderConfig(s *conf.Settings) (reader.Config, error) {
	scale, tag, err := display(s)
	if err != nil {
		return reader.Config{}, err
	}

	arb := arbiter.DefaultConfig()
	arb.RequiredVolume = float32(s.Power.RequiredVolume)
	arb.AutoStart = s.Power.AutoStart
	arb.StaleAfter = s.Decoder.StaleAfter

	return reader.Config{
		Modem: ModemConfig(s),
		Tone: audiolink.ToneConfig{
			Frequency: s.Tone.Frequency,
			Amplitude: s.Tone.Amplitude,
		},
		Arbiter:            arb,
		DecoderBufferBytes: s.Decoder.BufferBytes,
		GapThreshold:       s.Ledger.GapThreshold,
		Scale:              scale,
		Language:           tag,
	}, nil
}

// MalgoConfig returns the host audio configuration.
func MalgoConfig(s *conf.Settings) audiosession.MalgoConfig {
	return audiosession.MalgoConfig{
		SampleRate:     s.Audio.SampleRate,
		PeriodFrames:   s.Audio.PeriodFrames,
		CaptureDevice:  s.Audio.CaptureDevice,
		PlaybackDevice: s.Audio.PlaybackDevice,
		SpeakerDevice:  s.Audio.SpeakerDevice,
		HeadsetMatch:   s.Audio.HeadsetMatch,
		PollInterval:   s.Audio.PollInterval,
		InitialVolume:  float32(s.Audio.InitialVolume),
	}
}

// ProbeConfig returns the simulated accessory of the simulate backend. It
// reports Temperature plus a one-minute sine swing.
func ProbeConfig(s *conf.Settings) (audiolink.ProbeConfig, error) {
	uid, err := hex.DecodeString(s.Simulator.UID)
	if err != nil {
		return audiolink.ProbeConfig{}, errors.New(err).
			Component("setup").
			Category(errors.CategoryConfiguration).
			Context("uid", s.Simulator.UID).
			Build()
	}
	cfg := audiolink.DefaultProbeConfig()
	cfg.UID = uid
	cfg.Interval = s.Simulator.Interval
	cfg.MinPower = s.Simulator.MinPower
	mean, swing := s.Simulator.Temperature, s.Simulator.Swing
	cfg.Reading = func(now time.Time) float32 {
		phase := float64(now.UnixNano()) / float64(time.Minute) * 2 * math.Pi
		return float32(mean + swing*math.Sin(phase))
	}
	return cfg, nil
}

// TriggerConfig returns the configured trigger.
func TriggerConfig(s *conf.Settings) (trigger.Config, error) {
	dir, err := trigger.ParseDirection(s.Trigger.Direction)
	if err != nil {
		return trigger.Config{}, err
	}
	return trigger.Config{Temperature: float32(s.Trigger.Temperature), Direction: dir}, nil
}

// MonitorConfig returns the loop timing.
func MonitorConfig(s *conf.Settings) monitor.Config {
	return monitor.Config{
		RefreshInterval: s.Ledger.RefreshInterval,
		StaleAfter:      s.Decoder.StaleAfter,
	}
}

// MQTTConfig returns the client configuration.
func MQTTConfig(s *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.MQTT.Broker
	cfg.ClientID = s.MQTT.ClientID
	cfg.Username = s.MQTT.Username
	cfg.Password = s.MQTT.Password
	cfg.Retain = s.MQTT.Retain
	return cfg
}

// PublisherConfig returns the topic layout.
func PublisherConfig(s *conf.Settings) mqtt.PublisherConfig {
	return mqtt.PublisherConfig{
		Topic:           s.MQTT.Topic,
		MinInterval:     s.MQTT.MinInterval,
		Discovery:       s.MQTT.Discovery,
		DiscoveryPrefix: s.MQTT.DiscoveryPrefix,
	}
}

// HTTPConfig returns the API server configuration.
func HTTPConfig(s *conf.Settings) httpapi.Config {
	cfg := httpapi.DefaultConfig()
	cfg.Listen = s.HTTP.Listen
	return cfg
}
