// Package httpapi serves reader status, decoded samples and Prometheus
// metrics over HTTP for the monitor command.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/supermechanical/rangelink/internal/arbiter"
	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/temperature"
	"github.com/supermechanical/rangelink/internal/timeseries"
	"github.com/supermechanical/rangelink/internal/trigger"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("httpapi")
}

// DataSource gives read access to the accumulated samples.
type DataSource interface {
	View(fn func(*timeseries.Ledger))
	Translator() *temperature.Translator
}

// AudioStatus reports the audio arbiter. *arbiter.Arbiter implements it.
type AudioStatus interface {
	State() arbiter.State
	IsAudioEnabled() bool
	IsHeadsetPluggedIn() bool
	NotificationDepth() int
}

// TriggerControl reads and replaces the monitor's trigger configuration.
type TriggerControl interface {
	TriggerConfig() trigger.Config
	SetTriggerConfig(trigger.Config) error
}

// Config holds HTTP server settings.
type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8089",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server is the status and data API.
type Server struct {
	echo      *echo.Echo
	config    Config
	data      DataSource
	audio     AudioStatus
	trigger   TriggerControl
	gatherer  prometheus.Gatherer
	log       logger.Logger
	now       func() time.Time
	startTime time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithAudioStatus enables the status endpoint.
func WithAudioStatus(a AudioStatus) ServerOption {
	return func(s *Server) {
		s.audio = a
	}
}

// WithTriggerControl enables the trigger endpoints.
func WithTriggerControl(tc TriggerControl) ServerOption {
	return func(s *Server) {
		s.trigger = tc
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// New creates the server and registers its routes.
func New(data DataSource, cfg Config, opts ...ServerOption) (*Server, error) {
	if data == nil {
		return nil, errors.Newf("httpapi: data source is required").
			Component("httpapi").
			Category(errors.CategoryValidation).
			Build()
	}

	s := &Server{
		config: cfg,
		data:   data,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	s.startTime = s.now()

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.echo.Group("/api/v1")
	if s.audio != nil {
		api.GET("/status", s.status)
	}
	api.GET("/devices", s.listDevices)
	api.GET("/devices/:uid/latest", s.latest)
	api.GET("/devices/:uid/samples", s.samples)
	api.GET("/devices/:uid/closest", s.closest)
	api.GET("/devices/:uid/interpolate", s.interpolate)
	api.GET("/gap", s.latestGap)
	if s.trigger != nil {
		api.GET("/trigger", s.getTrigger)
		api.PUT("/trigger", s.putTrigger)
	}
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(err).
				Component("httpapi").
				Category(errors.CategoryNetwork).
				Context("address", s.config.Listen).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return errors.New(err).
			Component("httpapi").
			Category(errors.CategoryNetwork).
			Build()
	}
	<-errCh
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := s.now().Sub(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      s.now().Format(time.RFC3339),
	})
}
