package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestModuleLoggerWritesModuleAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, time.UTC).Module("audiolink")

	log.Info("frame decoded", String("uid", "a1b2"), Float32("temperature", 72.5))

	out := buf.String()
	assert.Contains(t, out, "module=audiolink")
	assert.Contains(t, out, "uid=a1b2")
	assert.Contains(t, out, "temperature=72.5")
	assert.Contains(t, out, `msg="frame decoded"`)
}

func TestSubModuleNaming(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC).Module("arbiter").Module("watchdog")

	log.Warn("volume drift")
	assert.Contains(t, buf.String(), "module=arbiter.watchdog")
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelWarn, time.UTC)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestTraceLevelName(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelTrace, time.UTC)

	log.Trace("raw buffer")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestWithDoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	parent := NewSlogLogger(buf, LogLevelInfo, time.UTC)
	child := parent.With(String("device", "probe"))

	parent.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "device=probe")
	assert.Contains(t, lines[1], "device=probe")
}

func TestErrorFieldNil(t *testing.T) {
	f := Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
}

func TestCentralLoggerModuleLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Timezone:     "UTC",
		Console:      ConsoleOutput{Enabled: true, Level: "debug"},
		FileOutput:   FileOutput{Enabled: false},
		ModuleLevels: map[string]string{"audiolink": "debug"},
	}, buf)
	require.NoError(t, err)
	defer func() { _ = cl.Close() }()

	cl.Module("audiolink").Debug("decoder detail")
	cl.Module("arbiter").Info("suppressed")

	out := buf.String()
	assert.Contains(t, out, "decoder detail")
	assert.NotContains(t, out, "suppressed")
}

func TestCentralLoggerInvalidTimezone(t *testing.T) {
	_, err := newCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"}, io.Discard)
	require.Error(t, err)
}

func TestCentralLoggerFileOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "logs", "rangelink.log")
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      ConsoleOutput{Enabled: false},
		FileOutput:   FileOutput{Enabled: true, Path: path, Level: "info"},
	}, io.Discard)
	require.NoError(t, err)

	cl.Module("reader").Info("refreshed", Int("devices", 2))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "refreshed", record["msg"])
	assert.Equal(t, "reader", record["module"])
	assert.InDelta(t, 2, record["devices"], 0)
}

func TestNilConfigRejected(t *testing.T) {
	_, err := NewCentralLogger(nil)
	require.Error(t, err)
}

func TestErrorsBypassModuleLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"mqtt": "error"},
	}, buf)
	require.NoError(t, err)

	log := cl.Module("mqtt")
	log.Warn("reconnecting")
	log.Error("publish failed", Error(os.ErrDeadlineExceeded))

	out := buf.String()
	assert.NotContains(t, out, "reconnecting")
	assert.Contains(t, out, "publish failed")
}

func TestSetLevelRaisesEveryOutput(t *testing.T) {
	cfg := LoggingConfig{DefaultLevel: "info", Console: ConsoleOutput{Enabled: true, Level: "info"}}
	cfg.SetLevel(LogLevelDebug)

	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(&cfg, buf)
	require.NoError(t, err)

	cl.Module("reader").Debug("refresh detail")
	assert.Contains(t, buf.String(), "refresh detail")
}
