// Package cmd wires the rangelink command line.
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/supermechanical/rangelink/cmd/decode"
	"github.com/supermechanical/rangelink/cmd/devices"
	"github.com/supermechanical/rangelink/cmd/monitor"
	"github.com/supermechanical/rangelink/cmd/synth"
	"github.com/supermechanical/rangelink/internal/conf"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
		reporter   *telemetry.Reporter
	)

	rootCmd := &cobra.Command{
		Use:           "rangelink",
		Short:         "Audio-jack temperature probe reader",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		monitor.Command(settings),
		decode.Command(settings),
		synth.Command(settings),
		devices.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		if settings.Debug {
			settings.Logging.SetLevel(logger.LogLevelDebug)
		}
		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return errors.New(err).
				Component("cmd").
				Category(errors.CategoryConfiguration).
				Context("operation", "init_logger").
				Build()
		}
		logger.SetGlobal(central)

		if settings.Sentry.Enabled {
			reporter, err = telemetry.NewReporter(telemetry.Config{
				DSN:         settings.Sentry.DSN,
				Environment: settings.Sentry.Environment,
				Release:     Version,
			}, nil)
			if err != nil {
				return err
			}
			reporter.Install()
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if reporter != nil {
			reporter.Flush(2 * time.Second)
		}
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines the global flags and binds them to their config keys.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Config file (default: search ~/.config/rangelink and /etc/rangelink)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", conf.BackendMalgo, "Audio backend: malgo or simulate")
	flags.Int("samplerate", 44100, "PCM sample rate in Hz")
	flags.String("scale", "fahrenheit", "Display scale: fahrenheit, celsius or kelvin")
	flags.String("locale", "en-US", "Number formatting locale")

	bindings := map[string]string{
		"debug":            "debug",
		"audio.backend":    "backend",
		"audio.samplerate": "samplerate",
		"display.scale":    "scale",
		"display.locale":   "locale",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.New(err).
				Component("cmd").
				Category(errors.CategoryConfiguration).
				Context("flag", flag).
				Build()
		}
	}
	return nil
}
