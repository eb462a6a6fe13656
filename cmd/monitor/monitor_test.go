package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/supermechanical/rangelink/internal/conf"
	"github.com/supermechanical/rangelink/internal/errors"
)

func simulatedSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Audio.Backend = conf.BackendSimulate
	s.Audio.SampleRate = 44100
	s.Audio.InitialVolume = 1
	s.Decoder.HalfPeriod = 8
	s.Decoder.Threshold = 1024
	s.Decoder.BufferBytes = 64 * 1024
	s.Decoder.StaleAfter = 10 * time.Second
	s.Tone.Frequency = 15000
	s.Tone.Amplitude = 1
	s.Power.RequiredVolume = 0.9
	s.Power.AutoStart = true
	s.Power.WatchdogInterval = 10 * time.Millisecond
	s.Ledger.GapThreshold = 30
	s.Ledger.RefreshInterval = 10 * time.Millisecond
	s.Trigger.Temperature = 165
	s.Trigger.Direction = "rising"
	s.Display.Scale = "fahrenheit"
	s.Display.Locale = "en-US"
	s.Simulator.UID = "524e4701"
	s.Simulator.Temperature = 70
	s.Simulator.Swing = 5
	s.Simulator.Interval = 50 * time.Millisecond
	s.Simulator.MinPower = 0.5
	return s
}

func TestRunStopsBackgroundWorkOnSetupError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	t.Cleanup(errors.ClearErrorHooks)

	s := simulatedSettings(t)
	s.Trigger.Enabled = true
	s.Trigger.StateFile = filepath.Join(t.TempDir(), "trigger.yaml")
	require.NoError(t, os.WriteFile(s.Trigger.StateFile, []byte("direction: [unclosed\n"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The simulated accessory and the watchdog are already running when
	// the trigger store fails to load.
	err := Run(ctx, s)
	require.Error(t, err)
	require.NoError(t, ctx.Err(), "returned without waiting for the parent context")
}

func TestRunReturnsWhenContextEnds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	t.Cleanup(errors.ClearErrorHooks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	require.NoError(t, Run(ctx, simulatedSettings(t)))
}
