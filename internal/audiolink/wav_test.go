package audiolink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRoundTripDecodes(t *testing.T) {
	pcm := modulate(t, reading{[]byte{0xca, 0xfe}, 68.2}, reading{[]byte{0xca, 0xfe}, 68.4})
	path := filepath.Join(t.TempDir(), "probe.wav")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, pcm, 44100))
	require.NoError(t, f.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	got, rate, err := ReadWAV(in)
	require.NoError(t, err)
	assert.Equal(t, 44100, rate)
	assert.Equal(t, pcm, got)

	start := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	ledger, stats, err := DecodePCM(got, rate, DefaultModemConfig(), start)
	require.NoError(t, err)
	assert.Equal(t, DecodeStats{Valid: 2}, stats)

	store, ok := ledger.Store("cafe")
	require.True(t, ok)
	require.Equal(t, 2, store.Len())
	first, _ := store.SampleAt(0)
	second, _ := store.SampleAt(1)
	assert.InDelta(t, 68.2, first.Temperature, 0.001)
	assert.InDelta(t, 68.4, second.Temperature, 0.001)
	assert.Greater(t, first.UnixTime, UnixSeconds(start))
	assert.Greater(t, second.UnixTime, first.UnixTime)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file"), 0o600))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, _, err = ReadWAV(f)
	assert.Error(t, err)
}

func TestDecodePCMRejectsBadRate(t *testing.T) {
	_, _, err := DecodePCM(nil, 0, DefaultModemConfig(), time.Now())
	assert.Error(t, err)
}
