// Package conf loads rangelink settings from defaults, the config file,
// RANGELINK_* environment variables and command line flags.
package conf

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix is the prefix of environment overrides, e.g. RANGELINK_MQTT_BROKER.
const EnvPrefix = "RANGELINK"

// Audio backends.
const (
	BackendMalgo    = "malgo"
	BackendSimulate = "simulate"
)

// AudioSettings selects and tunes the host audio backend.
type AudioSettings struct {
	Backend        string        // malgo or simulate
	SampleRate     int           // PCM sample rate in Hz
	PeriodFrames   int           // frames per device callback, 0 for backend default
	CaptureDevice  string        // substring of the capture device name, empty for default
	PlaybackDevice string        // substring of the jack playback device name
	SpeakerDevice  string        // substring of the built-in speaker device name
	HeadsetMatch   string        // capture device name substring that means the accessory is plugged in
	PollInterval   time.Duration // headset presence polling
	InitialVolume  float64       // software output volume at startup
}

// DecoderSettings tunes the demodulator.
type DecoderSettings struct {
	HalfPeriod  int           // space half-cycle length in samples
	Threshold   int           // zero-crossing hysteresis
	BufferBytes int           // callback to worker hand-off size
	StaleAfter  time.Duration // silence reported by the watchdog
}

// ToneSettings describes the power tone.
type ToneSettings struct {
	Frequency float64
	Amplitude float64
}

// PowerSettings configures the audio arbiter.
type PowerSettings struct {
	RequiredVolume   float64       // lowest volume that powers the accessory
	AutoStart        bool          // start on headset insertion
	WatchdogInterval time.Duration // volume and staleness check period
}

// LedgerSettings configures sample accumulation.
type LedgerSettings struct {
	GapThreshold    float64       // seconds between samples that count as a gap, 0 disables
	RefreshInterval time.Duration // how often the monitor pulls decoded samples
}

// TriggerSettings configures the threshold trigger of the monitor.
type TriggerSettings struct {
	Enabled     bool
	Temperature float64 // threshold in degrees Fahrenheit
	Direction   string  // rising, falling or bidirectional
	StateFile   string  // where the trigger configuration is persisted, empty to disable
}

// MQTTSettings configures sample publishing.
type MQTTSettings struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	Topic       string // topic prefix
	Retain      bool
	MinInterval time.Duration // per-device publish throttle

	Discovery       bool   // Home Assistant auto-discovery
	DiscoveryPrefix string // discovery topic prefix
}

// HTTPSettings configures the status API.
type HTTPSettings struct {
	Enabled bool
	Listen  string
}

// DisplaySettings controls human readable output.
type DisplaySettings struct {
	Scale  string // fahrenheit, celsius or kelvin
	Locale string // BCP 47 tag used for number formatting
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// SimulatorSettings describes the synthetic probe of the simulate backend.
type SimulatorSettings struct {
	UID         string  // hex encoded probe uid
	Temperature float64 // mean reported temperature
	Swing       float64 // amplitude of the slow temperature swing
	Interval    time.Duration
	MinPower    float64 // RMS fraction of full scale needed to power the probe
}

// Settings contains all configuration options.
type Settings struct {
	Debug bool

	Logging   logger.LoggingConfig
	Audio     AudioSettings
	Decoder   DecoderSettings
	Tone      ToneSettings
	Power     PowerSettings
	Ledger    LedgerSettings
	Trigger   TriggerSettings
	MQTT      MQTTSettings
	HTTP      HTTPSettings
	Display   DisplaySettings
	Sentry    SentrySettings
	Simulator SimulatorSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration. An explicit configFile must exist; without
// one the default search paths are used and a default file is created when
// none is found.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and environment bindings and reads the file.
func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	configPaths, err := ConfigDirs()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}
	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it.
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, configFileName)
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}

	configPath := filepath.Join(dir, configFileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", configPath).
			Build()
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// DefaultConfigYAML returns the embedded default configuration.
func DefaultConfigYAML() []byte {
	data, _ := fs.ReadFile(configFiles, configFileName)
	return data
}

// GetSettings returns the settings of the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
