package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/supermechanical/rangelink/internal/logger"
)

// setDefaultConfig sets the default value of every key. Keys without a
// default are invisible to environment overrides.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("audio.backend", BackendMalgo)
	viper.SetDefault("audio.samplerate", 44100)
	viper.SetDefault("audio.periodframes", 0)
	viper.SetDefault("audio.capturedevice", "")
	viper.SetDefault("audio.playbackdevice", "")
	viper.SetDefault("audio.speakerdevice", "")
	viper.SetDefault("audio.headsetmatch", "")
	viper.SetDefault("audio.pollinterval", time.Second)
	viper.SetDefault("audio.initialvolume", 0.5)

	viper.SetDefault("decoder.halfperiod", 8)
	viper.SetDefault("decoder.threshold", 1024)
	viper.SetDefault("decoder.bufferbytes", 256*1024)
	viper.SetDefault("decoder.staleafter", 10*time.Second)

	viper.SetDefault("tone.frequency", 15000.0)
	viper.SetDefault("tone.amplitude", 1.0)

	viper.SetDefault("power.requiredvolume", 0.9)
	viper.SetDefault("power.autostart", true)
	viper.SetDefault("power.watchdoginterval", 2*time.Second)

	viper.SetDefault("ledger.gapthreshold", 30.0)
	viper.SetDefault("ledger.refreshinterval", time.Second)

	viper.SetDefault("trigger.enabled", false)
	viper.SetDefault("trigger.temperature", 165.0)
	viper.SetDefault("trigger.direction", "rising")
	viper.SetDefault("trigger.statefile", "")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.topic", "rangelink")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.mininterval", 5*time.Second)
	viper.SetDefault("mqtt.discovery", false)
	viper.SetDefault("mqtt.discoveryprefix", "homeassistant")

	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.listen", "127.0.0.1:8089")

	viper.SetDefault("display.scale", "fahrenheit")
	viper.SetDefault("display.locale", "en-US")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("simulator.uid", "524e4701")
	viper.SetDefault("simulator.temperature", 70.0)
	viper.SetDefault("simulator.swing", 5.0)
	viper.SetDefault("simulator.interval", time.Second)
	viper.SetDefault("simulator.minpower", 0.5)
}
