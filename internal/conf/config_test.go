package conf

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendMalgo, settings.Audio.Backend)
	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, time.Second, settings.Audio.PollInterval)
	assert.Equal(t, 8, settings.Decoder.HalfPeriod)
	assert.Equal(t, 10*time.Second, settings.Decoder.StaleAfter)
	assert.InDelta(t, 0.9, settings.Power.RequiredVolume, 1e-9)
	assert.True(t, settings.Power.AutoStart)
	assert.InDelta(t, 30.0, settings.Ledger.GapThreshold, 1e-9)
	assert.Equal(t, "127.0.0.1:8089", settings.HTTP.Listen)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	assert.Same(t, settings, GetSettings())
}

func TestLoadFileOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	settings, err := Load(writeConfig(t, `
audio:
  backend: simulate
  samplerate: 48000
decoder:
  staleafter: 3s
mqtt:
  enabled: true
  broker: tcp://broker.local:1883
  topic: kitchen
display:
  scale: celsius
`))
	require.NoError(t, err)

	assert.Equal(t, BackendSimulate, settings.Audio.Backend)
	assert.Equal(t, 48000, settings.Audio.SampleRate)
	assert.Equal(t, 3*time.Second, settings.Decoder.StaleAfter)
	assert.True(t, settings.MQTT.Enabled)
	assert.Equal(t, "kitchen", settings.MQTT.Topic)
	assert.Equal(t, "celsius", settings.Display.Scale)
	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, settings.MQTT.MinInterval)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("RANGELINK_HTTP_LISTEN", "0.0.0.0:9000")
	t.Setenv("RANGELINK_LEDGER_GAPTHRESHOLD", "12.5")
	t.Setenv("RANGELINK_POWER_AUTOSTART", "false")

	settings, err := Load(writeConfig(t, "http:\n  listen: 127.0.0.1:1\n"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", settings.HTTP.Listen)
	assert.InDelta(t, 12.5, settings.Ledger.GapThreshold, 1e-9)
	assert.False(t, settings.Power.AutoStart)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(writeConfig(t, "decoder:\n  halfperiod: 7\ntone:\n  amplitude: 2\n"))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestEmbeddedDefaultConfigMatchesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML(), 0o600))

	fromFile, err := Load(path)
	require.NoError(t, err)

	viper.Reset()
	fromDefaults, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, fromDefaults.Audio, fromFile.Audio)
	assert.Equal(t, fromDefaults.Decoder, fromFile.Decoder)
	assert.Equal(t, fromDefaults.Tone, fromFile.Tone)
	assert.Equal(t, fromDefaults.Power, fromFile.Power)
	assert.Equal(t, fromDefaults.Ledger, fromFile.Ledger)
	assert.Equal(t, fromDefaults.Trigger, fromFile.Trigger)
	assert.Equal(t, fromDefaults.MQTT, fromFile.MQTT)
	assert.Equal(t, fromDefaults.HTTP, fromFile.HTTP)
	assert.Equal(t, fromDefaults.Display, fromFile.Display)
	assert.Equal(t, fromDefaults.Simulator, fromFile.Simulator)
}

func TestLoadCreatesDefaultConfigInUserDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only honoured on linux")
	}
	viper.Reset()
	t.Cleanup(viper.Reset)

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	dirs, err := ConfigDirs()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "rangelink"), dirs[0])

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMalgo, settings.Audio.Backend)

	created := filepath.Join(home, "rangelink", "config.yaml")
	assert.FileExists(t, created)

	dirs, err = ConfigDirs()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(home, "rangelink")}, dirs)
}
