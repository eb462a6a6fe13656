package reader

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/supermechanical/rangelink/internal/arbiter"
	"github.com/supermechanical/rangelink/internal/audiolink"
	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newProbeRig(t *testing.T) (*Reader, *audiosession.Fake, *audiolink.SimulatedProbe, *atomic.Int64) {
	t.Helper()
	fake := audiosession.NewFake(audiosession.Format{SampleRate: 44100, Channels: 1})

	var decoded atomic.Int64
	r, err := New(fake, DefaultConfig(), WithSampleHandler(func(string, timeseries.Sample) {
		decoded.Add(1)
	}))
	require.NoError(t, err)
	t.Cleanup(r.Close)

	cfg := audiolink.DefaultProbeConfig()
	cfg.UID = []byte{0x01, 0x02}
	cfg.Reading = func(time.Time) float32 { return 71.3 }
	cfg.Interval = 100 * time.Millisecond
	probe, err := audiolink.NewSimulatedProbe(fake, audiolink.DefaultModemConfig(), cfg, nil)
	require.NoError(t, err)
	return r, fake, probe, &decoded
}

func stepFor(probe *audiolink.SimulatedProbe, start time.Time, d time.Duration) {
	for at := time.Duration(0); at < d; at += 20 * time.Millisecond {
		probe.Step(start.Add(at))
	}
}

func TestReaderEndToEnd(t *testing.T) {
	r, fake, probe, decoded := newProbeRig(t)

	require.NoError(t, r.Audio().EnableAllAudio())
	fake.SetHeadset(true)
	require.Equal(t, arbiter.Started, r.Audio().State())
	assert.InDelta(t, 1.0, fake.OutputVolume(), 1e-6, "power volume corrected on start")

	stepFor(probe, time.Now(), time.Second)
	require.True(t, probe.Powered())
	require.Eventually(t, func() bool { return decoded.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	batch := r.Refresh()
	assert.GreaterOrEqual(t, batch.TotalLen(), 2)

	r.View(func(l *timeseries.Ledger) {
		assert.Equal(t, []string{"0102"}, l.DeviceIDs())
		s, uid, ok := l.Latest()
		require.True(t, ok)
		assert.Equal(t, "0102", uid)
		assert.InDelta(t, 71.3, s.Temperature, 0.001)
	})

	snapshot := r.AllData()
	assert.Equal(t, batch.TotalLen(), snapshot.TotalLen())
	assert.Equal(t, "71°F", r.Translator().Print(71.3, temperature.HumanReadable))
}

func TestReaderNotificationSilencesProbe(t *testing.T) {
	r, fake, probe, decoded := newProbeRig(t)
	require.NoError(t, r.Audio().EnableAllAudio())
	fake.SetHeadset(true)

	require.True(t, r.Audio().PrepareForAudioNotification())
	stepFor(probe, time.Now(), 500*time.Millisecond)
	assert.False(t, probe.Powered(), "tone is paused during a notification")
	assert.Zero(t, decoded.Load())

	r.Audio().CleanUpAfterAudioNotification()
	stepFor(probe, time.Now(), time.Second)
	assert.True(t, probe.Powered())
	require.Eventually(t, func() bool { return decoded.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRefreshAndViewSeesBatch(t *testing.T) {
	r, fake, probe, decoded := newProbeRig(t)
	require.NoError(t, r.Audio().EnableAllAudio())
	fake.SetHeadset(true)
	stepFor(probe, time.Now(), time.Second)
	require.Eventually(t, func() bool { return decoded.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	r.RefreshAndView(func(ledger, batch *timeseries.Ledger) {
		assert.Equal(t, batch.TotalLen(), ledger.TotalLen())
	})
	assert.Zero(t, r.Refresh().TotalLen(), "nothing new since the last refresh")
}

func TestReaderRejectsInvalidModem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modem.HalfPeriod = 5
	_, err := New(audiosession.NewFake(audiosession.Format{SampleRate: 44100}), cfg)
	assert.Error(t, err)
}

func TestPrepareForAppQuittingRestoresVolume(t *testing.T) {
	r, fake, _, _ := newProbeRig(t)
	require.NoError(t, r.Audio().EnableAllAudio())
	fake.SetHeadset(true)
	require.InDelta(t, 1.0, fake.OutputVolume(), 1e-6)

	r.PrepareForAppQuitting()
	assert.InDelta(t, 0.5, fake.RouteVolume(audiosession.RouteHeadset), 1e-6)
}
