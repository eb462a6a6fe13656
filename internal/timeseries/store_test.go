package timeseries

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermechanical/rangelink/internal/errors"
)

func samplesAt(times ...float64) []Sample {
	out := make([]Sample, len(times))
	for i, t := range times {
		out[i] = Sample{Temperature: float32(t), UnixTime: t}
	}
	return out
}

func mustStore(t *testing.T, samples ...Sample) *Store {
	t.Helper()
	st, err := NewStore("a1", samples...)
	require.NoError(t, err)
	return st
}

func TestNewStoreRejectsInvalidUID(t *testing.T) {
	for _, uid := range []string{"", IllegalUID} {
		_, err := NewStore(uid)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}
}

func TestMergeKeepsTimeOrder(t *testing.T) {
	st := mustStore(t, samplesAt(5, 1, 3)...)
	st.Merge(samplesAt(4, 0, 6)...)

	got := st.Samples()
	require.Len(t, got, 6)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].UnixTime, got[i].UnixTime)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	data := samplesAt(1, 2, 2.5, 7)
	st := mustStore(t, data...)

	added := st.Merge(data...)
	assert.Zero(t, added)
	assert.Equal(t, data, st.Samples())
}

func TestMergeEqualTimesKeepsArrivalOrder(t *testing.T) {
	st := mustStore(t, Sample{Temperature: 70, UnixTime: 10})
	st.Merge(Sample{Temperature: 71, UnixTime: 10}, Sample{Temperature: 70, UnixTime: 10})

	assert.Equal(t, []Sample{
		{Temperature: 70, UnixTime: 10},
		{Temperature: 71, UnixTime: 10},
	}, st.Samples())
}

func TestMergeStoreUIDMismatch(t *testing.T) {
	a := mustStore(t)
	b, err := NewStore("b2", samplesAt(1)...)
	require.NoError(t, err)

	require.Error(t, a.MergeStore(b))
	assert.Zero(t, a.Len())
}

func TestSampleAtOutOfRange(t *testing.T) {
	st := mustStore(t, samplesAt(1)...)

	_, ok := st.SampleAt(-1)
	assert.False(t, ok)
	_, ok = st.SampleAt(1)
	assert.False(t, ok)
	s, ok := st.SampleAt(0)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, s.UnixTime, 0)
}

func TestClosestIndex(t *testing.T) {
	st := mustStore(t, samplesAt(0, 10, 20)...)

	tests := []struct {
		name string
		t    float64
		want int
	}{
		{"before first", -5, 0},
		{"after last", 99, 2},
		{"exact", 10, 1},
		{"nearer left", 13, 1},
		{"nearer right", 17, 2},
		{"tie goes earlier", 15, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, st.ClosestIndex(tt.t))
		})
	}

	assert.Equal(t, IndexNotFound, mustStore(t).ClosestIndex(1))
}

func TestClosestIndexIsMinimal(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	times := make([]float64, 200)
	for i := range times {
		times[i] = math.Round(rng.Float64()*1000) / 4
	}
	st := mustStore(t, samplesAt(times...)...)

	for range 500 {
		q := rng.Float64()*1100 - 50
		idx := st.ClosestIndex(q)
		require.NotEqual(t, IndexNotFound, idx)
		best := math.Abs(st.samples[idx].UnixTime - q)
		for j, s := range st.samples {
			d := math.Abs(s.UnixTime - q)
			require.GreaterOrEqual(t, d, best, "index %d closer than %d for %f", j, idx, q)
			if d == best {
				require.GreaterOrEqual(t, j, idx, "tie must resolve to earliest index")
			}
		}
	}
}

func TestFindSamples(t *testing.T) {
	st := mustStore(t, samplesAt(0, 1, 2, 3, 4)...)

	got, err := st.FindSamples(1, 3)
	require.NoError(t, err)
	assert.Equal(t, samplesAt(1, 2, 3), got)

	start, n, err := st.FindSamplesIndex(1.5, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, start)
	assert.Equal(t, 3, n)

	_, err = st.FindSamples(5, 9)
	require.ErrorIs(t, err, ErrNoSamplesInRange)
	assert.NotErrorIs(t, err, ErrStoreEmpty)

	_, err = mustStore(t).FindSamples(0, 1)
	require.ErrorIs(t, err, ErrStoreEmpty)
}

func TestInterpolate(t *testing.T) {
	st := mustStore(t,
		Sample{Temperature: 20, UnixTime: 0},
		Sample{Temperature: 30, UnixTime: 10},
	)

	tests := []struct {
		name         string
		t            float64
		wantValue    float32
		wantInterval float64
	}{
		{"midpoint", 5, 25, 10},
		{"exact first", 0, 20, 0},
		{"exact last", 10, 30, 0},
		{"before", -1, 20, -1},
		{"after", 11, 30, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, iv := st.Interpolate(tt.t)
			assert.InDelta(t, tt.wantValue, v, 1e-6)
			assert.InDelta(t, tt.wantInterval, iv, 0)
		})
	}
}

func TestInterpolateEdgeStores(t *testing.T) {
	v, iv := mustStore(t).Interpolate(3)
	assert.Zero(t, v)
	assert.InDelta(t, -1, iv, 0)

	single := mustStore(t, Sample{Temperature: 42, UnixTime: 7})
	v, iv = single.Interpolate(7)
	assert.InDelta(t, 42, v, 0)
	assert.InDelta(t, 0, iv, 0)
}

func TestInterpolateReturnsSampleValueAtSampleTimes(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	var data []Sample
	ts := 0.0
	for range 100 {
		ts += 0.1 + rng.Float64()
		data = append(data, Sample{Temperature: float32(rng.Float64() * 200), UnixTime: ts})
	}
	st := mustStore(t, data...)

	for _, s := range data {
		v, iv := st.Interpolate(s.UnixTime)
		assert.InDelta(t, s.Temperature, v, 0)
		assert.InDelta(t, 0, iv, 0)
	}
}

func TestEndOfLatestGap(t *testing.T) {
	st := mustStore(t, samplesAt(0, 1, 2, 50, 51)...)
	st.SetGapThreshold(10)

	s, ok := st.EndOfLatestGap()
	require.True(t, ok)
	assert.InDelta(t, 50, s.UnixTime, 0)
	assert.Equal(t, 3, st.EndOfLatestGapIndex())

	st.SetGapThreshold(100)
	_, ok = st.EndOfLatestGap()
	assert.False(t, ok)

	st.SetGapThreshold(0)
	assert.Equal(t, IndexNotFound, st.EndOfLatestGapIndex())
}

func TestSampleRateInHz(t *testing.T) {
	assert.Zero(t, mustStore(t).SampleRateInHz())
	assert.Zero(t, mustStore(t, samplesAt(1)...).SampleRateInHz())

	st := mustStore(t, samplesAt(0, 1, 1.25, 3)...)
	assert.InDelta(t, 4, st.SampleRateInHz(), 1e-9)
}

func TestCloneIsIndependent(t *testing.T) {
	st := mustStore(t, samplesAt(1, 2)...)
	c := st.Clone()
	c.Merge(samplesAt(3)...)

	assert.Equal(t, 2, st.Len())
	assert.Equal(t, 3, c.Len())
}
