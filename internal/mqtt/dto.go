package mqtt

import (
	"math"
	"time"

	"github.com/supermechanical/rangelink/internal/timeseries"
)

// SampleDTO is the payload of <topic>/<device>/temperature.
// Field names are consumed by the discovery value templates.
type SampleDTO struct {
	Device       string  `json:"device"`
	Time         string  `json:"time"` // RFC3339 with milliseconds
	UnixTime     float64 `json:"unix_time"`
	TemperatureF float32 `json:"temperature_f"`
	TemperatureC float32 `json:"temperature_c"`
}

// NewSampleDTO creates a SampleDTO from a decoded sample.
func NewSampleDTO(device string, s timeseries.Sample) *SampleDTO {
	return &SampleDTO{
		Device:       device,
		Time:         unixToTime(s.UnixTime).UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		UnixTime:     s.UnixTime,
		TemperatureF: roundTenth(s.Temperature),
		TemperatureC: roundTenth((s.Temperature - 32) * 5 / 9),
	}
}

// TriggerDTO is the payload of <topic>/<device>/trigger.
type TriggerDTO struct {
	Device       string  `json:"device"`
	Direction    string  `json:"direction"`
	ThresholdF   float32 `json:"threshold_f"`
	TemperatureF float32 `json:"temperature_f"`
	UnixTime     float64 `json:"unix_time"`
}

// StateDTO is the payload of <topic>/state.
type StateDTO struct {
	State        string `json:"state"`
	Headset      bool   `json:"headset"`
	AudioEnabled bool   `json:"audio_enabled"`
	Stale        bool   `json:"stale"`
}

func unixToTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func roundTenth(v float32) float32 {
	return float32(math.Round(float64(v)*10) / 10)
}
