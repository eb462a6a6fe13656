package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermechanical/rangelink/internal/audiolink"
)

func TestRenderGrowsWithFrames(t *testing.T) {
	modem := audiolink.DefaultModemConfig()

	one, err := Render(Options{UID: "01", Temperatures: []float64{70}, IdleBits: 16}, modem)
	require.NoError(t, err)
	two, err := Render(Options{UID: "01", Temperatures: []float64{70, 71}, IdleBits: 16}, modem)
	require.NoError(t, err)

	assert.NotEmpty(t, one)
	assert.Greater(t, len(two), len(one))
}

func TestRenderRejectsBadUID(t *testing.T) {
	modem := audiolink.DefaultModemConfig()

	_, err := Render(Options{UID: "zz", Temperatures: []float64{70}}, modem)
	require.Error(t, err)

	_, err = Render(Options{UID: "", Temperatures: []float64{70}}, modem)
	require.Error(t, err)
}
