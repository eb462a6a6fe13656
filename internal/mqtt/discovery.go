package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

const deviceIDPrefix = "rangelink"

// idSanitizer matches runs of characters Home Assistant rejects in ids.
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// SanitizeID maps a device uid onto the id alphabet of Home Assistant.
func SanitizeID(id string) string {
	if s := strings.Trim(idSanitizer.ReplaceAllString(id, "_"), "_"); s != "" {
		return s
	}
	return "unknown"
}

// DiscoveryPayload is a Home Assistant MQTT discovery message announcing
// the temperature sensor of one probe.
// See https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
type DiscoveryPayload struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	ValueTemplate     string `json:"value_template,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	// Availability follows the audio state: the probe is only powered while
	// audio is enabled.
	AvailabilityTopic    string           `json:"availability_topic,omitempty"`
	AvailabilityTemplate string           `json:"availability_template,omitempty"`
	Icon                 string           `json:"icon,omitempty"`
	Device               DiscoveryDevice  `json:"device"`
	Origin               *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// DiscoveryOrigin names the software creating the discovery message.
type DiscoveryOrigin struct {
	Name string `json:"name"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // usually homeassistant
	BaseTopic       string // prefix of the state topics
}

// discoveryTopic is where the temperature sensor of device is announced.
func (c DiscoveryConfig) discoveryTopic(device string) string {
	id := SanitizeID(device)
	return fmt.Sprintf("%s/sensor/%s_%s/temperature/config", c.DiscoveryPrefix, deviceIDPrefix, id)
}

// discoveryPayload builds the temperature sensor announcement of device.
func (c DiscoveryConfig) discoveryPayload(device string) *DiscoveryPayload {
	id := fmt.Sprintf("%s_%s", deviceIDPrefix, SanitizeID(device))
	return &DiscoveryPayload{
		Name:                 "Temperature",
		UniqueID:             id + "_temperature",
		StateTopic:           sampleTopic(c.BaseTopic, device),
		ValueTemplate:        "{{ value_json.temperature_f }}",
		UnitOfMeasurement:    "°F",
		DeviceClass:          "temperature",
		StateClass:           "measurement",
		Icon:                 "mdi:thermometer-probe",
		AvailabilityTopic:    stateTopic(c.BaseTopic),
		AvailabilityTemplate: "{{ 'online' if value_json.audio_enabled and not value_json.stale else 'offline' }}",
		Device: DiscoveryDevice{
			Identifiers:  []string{id},
			Name:         "Probe " + device,
			Manufacturer: "rangelink",
			Model:        "Audio jack probe",
		},
		Origin: &DiscoveryOrigin{Name: "rangelink"},
	}
}

// publishDiscovery announces device. Discovery messages are always retained.
func publishDiscovery(ctx context.Context, c Client, cfg DiscoveryConfig, device string) error {
	data, err := json.Marshal(cfg.discoveryPayload(device))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryProcessing).
			Build()
	}
	topic := cfg.discoveryTopic(device)
	GetLogger().Debug("publishing discovery message",
		logger.String("topic", topic),
		logger.Int("payload_size", len(data)))
	return c.PublishWithRetain(ctx, topic, string(data), true)
}

// removeDiscovery clears the retained announcement of device.
func removeDiscovery(ctx context.Context, c Client, cfg DiscoveryConfig, device string) error {
	return c.PublishWithRetain(ctx, cfg.discoveryTopic(device), "", true)
}
