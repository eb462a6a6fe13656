package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

func temps(values ...float32) []timeseries.Sample {
	out := make([]timeseries.Sample, len(values))
	for i, v := range values {
		out[i] = timeseries.Sample{Temperature: v, UnixTime: float64(i)}
	}
	return out
}

func TestRisingFiresOnceOnCrossing(t *testing.T) {
	tr := New(32, Rising)
	fired := tr.EvaluateAll(temps(30, 31, 33, 34))

	require.Len(t, fired, 1)
	assert.InDelta(t, 33, fired[0].Temperature, 0)
}

func TestFirstSampleOnlyEstablishesRegime(t *testing.T) {
	tr := New(32, Rising)
	assert.Empty(t, tr.EvaluateAll(temps(33, 34)))
	assert.Equal(t, RegimeAbove, tr.Regime())
}

func TestThresholdCountsAsAbove(t *testing.T) {
	tr := New(32, Rising)
	assert.False(t, tr.Evaluate(temps(31)[0]))
	assert.True(t, tr.Evaluate(temps(32)[0]))
}

func TestDirections(t *testing.T) {
	seq := temps(40, 20, 40, 20)

	tests := []struct {
		dir  Direction
		want int
	}{
		{Unset, 0},
		{Rising, 1},
		{Falling, 2},
		{Bidirectional, 3},
	}
	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			assert.Len(t, New(30, tt.dir).EvaluateAll(seq), tt.want)
		})
	}
}

func TestChangeResetsRegime(t *testing.T) {
	tr := New(32, Rising)
	tr.Evaluate(temps(30)[0])
	require.Equal(t, RegimeBelow, tr.Regime())

	tr.Change(32, Rising)
	assert.Equal(t, RegimeUnset, tr.Regime())
	assert.False(t, tr.Evaluate(temps(40)[0]))
}

func TestToggleSkipsUnset(t *testing.T) {
	d := Unset
	seen := []Direction{}
	for range 4 {
		d = d.Toggle()
		seen = append(seen, d)
	}
	assert.Equal(t, []Direction{Rising, Falling, Bidirectional, Rising}, seen)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" Falling ")
	require.NoError(t, err)
	assert.Equal(t, Falling, d)

	_, err = ParseDirection("sideways")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		temp float32
		dir  Direction
	}{
		{212.3, Rising},
		{-40.05, Falling},
		{0.1, Bidirectional},
		{98.6, Unset},
	} {
		tr := New(tt.temp, tt.dir)
		tr.Evaluate(temps(500)[0])

		data, err := tr.Encode()
		require.NoError(t, err)

		back, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, tt.temp, back.Temperature(), "threshold must round-trip exactly")
		assert.Equal(t, tt.dir, back.Direction())
		assert.Equal(t, RegimeUnset, back.Regime())
	}
}

func TestDecodeRejectsUnknownDirection(t *testing.T) {
	_, err := Decode([]byte("temperature: 10\ndirection: sideways\n"))
	require.Error(t, err)
}
