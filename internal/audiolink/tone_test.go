package audiolink

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/errors"
)

func TestToneGeneratorPlayPause(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	require.NoError(t, fake.SetOutputVolume(1))
	rec := newRecordingMetrics()

	g, err := NewToneGenerator(fake, DefaultToneConfig(), nil, rec)
	require.NoError(t, err)
	defer g.ImmediateDestroyState()

	assert.Nil(t, fake.Render(16), "nothing rendered before play")

	require.NoError(t, g.Play())
	require.NoError(t, g.Play())
	assert.True(t, g.IsPlaying())
	assert.Equal(t, 1, fake.RunningOutputs())

	out := fake.Render(1024)
	require.Len(t, out, 1024)
	assert.InDelta(t, math.MaxInt16/math.Sqrt2, rms(out), 300)

	g.Pause()
	g.Pause()
	assert.False(t, g.IsPlaying())
	assert.Nil(t, fake.Render(16))
	assert.Equal(t, []bool{true, false}, rec.tone)
}

func TestToneGeneratorIsPhaseContinuous(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	g, err := NewToneGenerator(fake, ToneConfig{Frequency: 1000, Amplitude: 1}, nil, nil)
	require.NoError(t, err)
	defer g.ImmediateDestroyState()

	whole := make([]int16, 300)
	g.render(whole)

	g2, err := NewToneGenerator(fake, ToneConfig{Frequency: 1000, Amplitude: 1}, nil, nil)
	require.NoError(t, err)
	defer g2.ImmediateDestroyState()
	split := make([]int16, 300)
	g2.render(split[:77])
	g2.render(split[77:])

	assert.Equal(t, whole, split)
}

func TestToneGeneratorOutputBusy(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	other, err := fake.OpenOutput(func(out []int16) {})
	require.NoError(t, err)
	require.NoError(t, other.Start())

	g, err := NewToneGenerator(fake, DefaultToneConfig(), nil, nil)
	require.NoError(t, err)
	defer g.ImmediateDestroyState()

	err = g.Play()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryResource))
	assert.False(t, g.IsPlaying())

	require.NoError(t, other.Close())
	assert.NoError(t, g.Play())
}

func TestToneGeneratorDestroy(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	g, err := NewToneGenerator(fake, DefaultToneConfig(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, g.Play())
	g.ImmediateDestroyState()

	_, outputs := fake.OpenStreams()
	assert.Zero(t, outputs)
	assert.False(t, g.IsPlaying())
	assert.ErrorIs(t, g.Play(), ErrToneDestroyed)
}

func TestToneGeneratorValidatesConfig(t *testing.T) {
	fake := audiosession.NewFake(testFormat)
	_, err := NewToneGenerator(fake, ToneConfig{Frequency: 30000, Amplitude: 1}, nil, nil)
	assert.Error(t, err)
	_, err = NewToneGenerator(fake, ToneConfig{Frequency: 1000, Amplitude: 0}, nil, nil)
	assert.Error(t, err)
}
