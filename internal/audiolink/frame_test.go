package audiolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermechanical/rangelink/internal/errors"
)

func TestEncodeFrameLayout(t *testing.T) {
	out, err := EncodeFrame([]byte{0x01, 0x02}, 72.5)
	require.NoError(t, err)

	require.Len(t, out, frameOverhead+2)
	assert.Equal(t, []byte{0xA5, 0x5A, 0x02, 0x01, 0x02, 0x02, 0xD5}, out[:7])
}

func TestEncodeFrameRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		uid  []byte
		temp float32
	}{
		{"empty uid", nil, 70},
		{"uid too long", make([]byte, MaxUIDLen+1), 70},
		{"temperature overflow", []byte{1}, 4000},
		{"temperature underflow", []byte{1}, -4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(tt.uid, tt.temp)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestFrameParserRoundTrip(t *testing.T) {
	var p frameParser
	for _, temp := range []float32{-40, 0, 72.5, 3276.7} {
		raw, err := EncodeFrame([]byte{0xde, 0xad}, temp)
		require.NoError(t, err)
		for _, b := range raw {
			p.push(b)
		}
	}

	var got []float32
	for {
		f, res := p.next()
		if res == parseNeedMore {
			break
		}
		require.Equal(t, parseFrame, res)
		assert.Equal(t, "dead", f.DeviceID())
		got = append(got, f.Temperature)
	}
	assert.Equal(t, []float32{-40, 0, 72.5, 3276.7}, got)
}

func TestFrameParserResyncAfterCorruption(t *testing.T) {
	good, err := EncodeFrame([]byte{0x10}, 50)
	require.NoError(t, err)
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF

	var p frameParser
	for _, b := range append(append([]byte{0x00, 0xA5, 0x13}, bad...), good...) {
		p.push(b)
	}

	var frames, checksums int
	for {
		f, res := p.next()
		if res == parseNeedMore {
			break
		}
		switch res {
		case parseFrame:
			frames++
			assert.InDelta(t, 50, f.Temperature, 0.001)
		case parseChecksum:
			checksums++
		}
	}
	assert.Equal(t, 1, frames)
	assert.Equal(t, 1, checksums)
}

func TestFrameParserRejectsZeroLength(t *testing.T) {
	var p frameParser
	for _, b := range []byte{0xA5, 0x5A, 0x00} {
		p.push(b)
	}
	_, res := p.next()
	assert.Equal(t, parseMalformed, res)
}
