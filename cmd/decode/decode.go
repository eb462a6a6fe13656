// Package decode implements the decode subcommand, which demodulates a WAV
// recording of the link.
package decode

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/supermechanical/rangelink/cmd/setup"
	"github.com/supermechanical/rangelink/internal/audiolink"
	"github.com/supermechanical/rangelink/internal/conf"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/timeseries"
)

// Command creates the decode command.
func Command(settings *conf.Settings) *cobra.Command {
	var start string

	cmd := &cobra.Command{
		Use:   "decode [file.wav]",
		Short: "Decode a recording of the probe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return errors.New(err).
						Component("decode").
						Category(errors.CategoryValidation).
						Context("start", start).
						Build()
				}
				startTime = t
			}
			return Run(cmd.OutOrStdout(), args[0], startTime, settings)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Timestamp of the first sample, RFC 3339 (default: now)")
	return cmd
}

// Run decodes path and prints every reading followed by frame counts.
func Run(w io.Writer, path string, start time.Time, settings *conf.Settings) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New(err).
			Component("decode").
			Category(errors.CategoryFileIO).
			Context("file", path).
			Build()
	}
	defer f.Close()

	pcm, rate, err := audiolink.ReadWAV(f)
	if err != nil {
		return err
	}
	ledger, stats, err := audiolink.DecodePCM(pcm, rate, setup.ModemConfig(settings), start)
	if err != nil {
		return err
	}
	tr, err := setup.Translator(settings)
	if err != nil {
		return err
	}

	Print(w, ledger, tr)
	_, err = fmt.Fprintf(w, "frames: %d valid, %d checksum errors, %d malformed\n",
		stats.Valid, stats.Checksum, stats.Malformed)
	return err
}

// Print writes the readings of every device in time order.
func Print(w io.Writer, ledger *timeseries.Ledger, tr *temperature.Translator) {
	for _, uid := range ledger.DeviceIDs() {
		store, _ := ledger.Store(uid)
		fmt.Fprintf(w, "%s (%d samples)\n", uid, store.Len())
		for _, s := range store.Samples() {
			at := time.UnixMilli(int64(s.UnixTime * 1000)).UTC()
			fmt.Fprintf(w, "  %s  %s\n", at.Format("2006-01-02T15:04:05.000Z"), tr.Print(s.Temperature, temperature.RawData))
		}
	}
}
