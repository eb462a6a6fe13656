package audiolink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/observability/metrics"
)

func newTestProbe(t *testing.T, fake *audiosession.Fake) *SimulatedProbe {
	t.Helper()
	cfg := DefaultProbeConfig()
	cfg.UID = []byte{0x0a, 0x0b}
	cfg.Reading = func(time.Time) float32 { return 75.5 }
	cfg.Interval = 100 * time.Millisecond
	p, err := NewSimulatedProbe(fake, DefaultModemConfig(), cfg, nil)
	require.NoError(t, err)
	return p
}

func TestSimulatedProbeNeedsPower(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	rec := newRecordingMetrics()
	d, err := NewDecoder(fake, DefaultModemConfig(), WithLinkRecorder(rec))
	require.NoError(t, err)
	defer d.ImmediateDestroyState()
	require.NoError(t, d.StartRec())

	p := newTestProbe(t, fake)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	// No tone: silent
	for i := range 50 {
		p.Step(now.Add(time.Duration(i) * 20 * time.Millisecond))
	}
	assert.False(t, p.Powered())

	g, err := NewToneGenerator(fake, DefaultToneConfig(), nil, nil)
	require.NoError(t, err)
	defer g.ImmediateDestroyState()
	require.NoError(t, g.Play())

	// Default route volume is too low to power the probe
	p.Step(now)
	assert.False(t, p.Powered())

	require.NoError(t, fake.SetOutputVolume(1))
	for i := range 50 {
		p.Step(now.Add(time.Second + time.Duration(i)*20*time.Millisecond))
	}
	assert.True(t, p.Powered())

	require.Eventually(t, func() bool {
		return rec.frameCount(metrics.FrameValid) > 0
	}, 2*time.Second, 5*time.Millisecond)

	ledger := d.AllTemperatures()
	store, ok := ledger.Store("0a0b")
	require.True(t, ok)
	latest, _ := store.Latest()
	assert.InDelta(t, 75.5, latest.Temperature, 0.001)
}

func TestSimulatedProbeRunStopsOnCancel(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	p := newTestProbe(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Run(ctx), context.DeadlineExceeded)
}

func TestSimulatedProbeValidatesConfig(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	cfg := DefaultProbeConfig()
	cfg.UID = nil
	_, err := NewSimulatedProbe(fake, DefaultModemConfig(), cfg, nil)
	assert.Error(t, err)
}
