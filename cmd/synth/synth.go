// Package synth implements the synth subcommand, which writes a WAV file of
// link frames for testing the decoder without hardware.
package synth

import (
	"encoding/hex"
	"os"

	"github.com/spf13/cobra"

	"github.com/supermechanical/rangelink/cmd/setup"
	"github.com/supermechanical/rangelink/internal/audiolink"
	"github.com/supermechanical/rangelink/internal/conf"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// Options describes the generated recording.
type Options struct {
	UID          string
	Temperatures []float64
	IdleBits     int
	SampleRate   int
}

// Command creates the synth command.
func Command(settings *conf.Settings) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "synth [out.wav]",
		Short: "Write a recording of synthetic probe frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.SampleRate == 0 {
				opts.SampleRate = settings.Audio.SampleRate
			}
			if opts.UID == "" {
				opts.UID = settings.Simulator.UID
			}
			return Run(args[0], opts, settings)
		},
	}

	cmd.Flags().StringVar(&opts.UID, "uid", "", "Hex encoded probe uid (default: simulator.uid)")
	cmd.Flags().Float64SliceVar(&opts.Temperatures, "temps", []float64{70, 71.5, 72}, "Readings in degrees Fahrenheit, one frame each")
	cmd.Flags().IntVar(&opts.IdleBits, "idle", 64, "Idle bits between frames")
	cmd.Flags().IntVar(&opts.SampleRate, "rate", 0, "Sample rate in Hz (default: audio.samplerate)")
	return cmd
}

// Run renders the frames and writes them to path.
func Run(path string, opts Options, settings *conf.Settings) error {
	pcm, err := Render(opts, setup.ModemConfig(settings))
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component("synth").
			Category(errors.CategoryFileIO).
			Context("file", path).
			Build()
	}
	if err := audiolink.WriteWAV(f, pcm, opts.SampleRate); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.New(err).
			Component("synth").
			Category(errors.CategoryFileIO).
			Context("file", path).
			Build()
	}

	logger.Global().Module("synth").Info("recording written",
		logger.String("file", path),
		logger.Int("frames", len(opts.Temperatures)),
		logger.Int("samples", len(pcm)))
	return nil
}

// Render returns the PCM of one frame per temperature, separated by idle
// bits.
func Render(opts Options, modem audiolink.ModemConfig) ([]int16, error) {
	uid, err := hex.DecodeString(opts.UID)
	if err != nil {
		return nil, errors.New(err).
			Component("synth").
			Category(errors.CategoryValidation).
			Context("uid", opts.UID).
			Build()
	}
	mod, err := audiolink.NewModulator(modem)
	if err != nil {
		return nil, err
	}

	var pcm []int16
	pcm = mod.Idle(pcm, opts.IdleBits)
	for _, t := range opts.Temperatures {
		if pcm, err = mod.Frame(pcm, uid, float32(t)); err != nil {
			return nil, err
		}
		pcm = mod.Idle(pcm, opts.IdleBits)
	}
	return pcm, nil
}
