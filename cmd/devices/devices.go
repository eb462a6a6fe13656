// Package devices implements the devices subcommand.
package devices

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/conf"
	"github.com/supermechanical/rangelink/internal/logger"
)

// Command creates the devices command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := audiosession.ListDevices(logger.Global().Module("audio"))
			if err != nil {
				return err
			}
			Print(cmd.OutOrStdout(), infos, settings)
			return nil
		},
	}
}

// Print writes one line per device and marks the configured ones.
func Print(w io.Writer, infos []audiosession.DeviceInfo, settings *conf.Settings) {
	for _, d := range infos {
		kind := "playback"
		if d.Capture {
			kind = "capture"
		}
		var marks string
		if d.IsDefault {
			marks += " [default]"
		}
		if d.Capture && settings.Audio.HeadsetMatch != "" && contains(d.Name, settings.Audio.HeadsetMatch) {
			marks += " [headset]"
		}
		fmt.Fprintf(w, "%-8s %s%s\n", kind, d.Name, marks)
	}
}

func contains(name, match string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(match))
}
