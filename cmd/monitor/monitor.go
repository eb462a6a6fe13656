// Package monitor implements the monitor subcommand: it powers the probe,
// decodes readings and serves them until interrupted.
package monitor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/supermechanical/rangelink/cmd/setup"
	"github.com/supermechanical/rangelink/internal/audiolink"
	"github.com/supermechanical/rangelink/internal/audiosession"
	"github.com/supermechanical/rangelink/internal/conf"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/httpapi"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/monitor"
	"github.com/supermechanical/rangelink/internal/mqtt"
	"github.com/supermechanical/rangelink/internal/observability"
	"github.com/supermechanical/rangelink/internal/reader"
)

// Command creates the monitor command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Read the probe continuously",
		Long:  "Power the accessory, decode its readings and print, publish and serve them until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.Bool("mqtt", false, "Publish readings over MQTT")
	flags.Bool("http", false, "Serve the status API")
	flags.String("listen", "127.0.0.1:8080", "Status API listen address")
	flags.Bool("trigger", false, "Enable the temperature trigger")
	flags.Float64("threshold", 165, "Trigger threshold in degrees Fahrenheit")
	flags.String("direction", "rising", "Trigger direction: rising, falling or bidirectional")

	bindings := map[string]string{
		"mqtt.enabled":        "mqtt",
		"http.enabled":        "http",
		"http.listen":         "listen",
		"trigger.enabled":     "trigger",
		"trigger.temperature": "threshold",
		"trigger.direction":   "direction",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// Run wires the reader and its sinks and blocks until ctx is done.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("monitor")

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	m.CountErrors()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	// stop cancels and joins everything started on g. Every release below
	// calls it first so no goroutine outlives the resources it uses.
	stop := sync.OnceValue(func() error {
		cancel()
		return g.Wait()
	})
	defer stop()

	session, err := openSession(gctx, g, settings, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = stop()
		if err := session.Close(); err != nil {
			log.Warn("failed to close audio session", logger.Error(err))
		}
	}()

	readerCfg, err := setup.ReaderConfig(settings)
	if err != nil {
		return err
	}
	rd, err := reader.New(session, readerCfg,
		reader.WithLogger(log.Module("reader")),
		reader.WithLinkMetrics(m.Link),
		reader.WithArbiterMetrics(m.Arbiter),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = stop()
		rd.PrepareForAppQuitting()
		rd.Close()
	}()

	if err := rd.Audio().EnableAllAudio(); err != nil {
		return err
	}
	log.Info("audio enabled",
		logger.String("state", rd.Audio().State().String()),
		logger.Bool("headset", rd.Audio().IsHeadsetPluggedIn()))

	g.Go(func() error {
		return ignoreCanceled(rd.Audio().RunWatchdog(gctx, settings.Power.WatchdogInterval))
	})

	monOpts := []monitor.Option{
		monitor.WithLogger(log),
		monitor.WithOutput(os.Stdout),
	}

	if settings.Trigger.Enabled {
		initial, err := setup.TriggerConfig(settings)
		if err != nil {
			return err
		}
		store, err := monitor.NewTriggerStore(settings.Trigger.StateFile, initial)
		if err != nil {
			return err
		}
		monOpts = append(monOpts, monitor.WithTriggers(store))
	}

	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(setup.MQTTConfig(settings), m.MQTT, log.Module("mqtt"))
		if err != nil {
			return err
		}
		defer func() {
			_ = stop()
			client.Disconnect()
		}()
		g.Go(func() error {
			connectWithRetry(gctx, client, setup.MQTTConfig(settings).ReconnectCooldown, log)
			return nil
		})
		pub := mqtt.NewPublisher(client, setup.PublisherConfig(settings), m.MQTT, log.Module("mqtt"))
		monOpts = append(monOpts, monitor.WithPublisher(pub))
	}

	mon, err := monitor.New(rd, rd.Audio(), setup.MonitorConfig(settings), monOpts...)
	if err != nil {
		return err
	}
	g.Go(func() error { return mon.Run(gctx) })

	if settings.HTTP.Enabled {
		srv, err := httpapi.New(rd, setup.HTTPConfig(settings),
			httpapi.WithLogger(log.Module("http")),
			httpapi.WithAudioStatus(rd.Audio()),
			httpapi.WithTriggerControl(mon),
			httpapi.WithGatherer(m.Registry()),
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	err = g.Wait()
	log.Info("monitor stopped", logger.Int("crossings", mon.Crossings()))
	return err
}

// openSession opens the configured audio backend. The simulate backend
// starts a synthetic probe on g.
func openSession(ctx context.Context, g *errgroup.Group, settings *conf.Settings, log logger.Logger) (audiosession.Session, error) {
	switch settings.Audio.Backend {
	case conf.BackendSimulate:
		fake := audiosession.NewFake(audiosession.Format{SampleRate: settings.Audio.SampleRate, Channels: 1})
		if err := fake.SetOutputVolume(float32(settings.Audio.InitialVolume)); err != nil {
			return nil, err
		}
		probeCfg, err := setup.ProbeConfig(settings)
		if err != nil {
			return nil, err
		}
		probe, err := audiolink.NewSimulatedProbe(fake, setup.ModemConfig(settings), probeCfg, log.Module("probe"))
		if err != nil {
			return nil, err
		}
		fake.SetHeadset(true)
		g.Go(func() error { return ignoreCanceled(probe.Run(ctx)) })
		log.Info("simulated probe attached", logger.String("uid", settings.Simulator.UID))
		return fake, nil
	default:
		return audiosession.NewMalgoSession(setup.MalgoConfig(settings), log.Module("audio"))
	}
}

// connectWithRetry keeps trying until the broker accepts the connection.
// Later reconnects are handled by the client.
func connectWithRetry(ctx context.Context, client mqtt.Client, cooldown time.Duration, log logger.Logger) {
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	for {
		err := client.Connect(ctx)
		if err == nil {
			return
		}
		log.Warn("mqtt connect failed, retrying",
			logger.Error(err),
			logger.Duration("retry_in", cooldown))
		select {
		case <-ctx.Done():
			return
		case <-time.After(cooldown):
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
