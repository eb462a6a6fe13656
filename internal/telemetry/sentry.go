// Package telemetry forwards internal errors to Sentry when the user opts in.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/patrickmn/go-cache"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Config holds Sentry settings.
type Config struct {
	DSN         string
	Environment string
	Release     string
	// DedupeWindow suppresses repeats of the same error. Zero uses one minute.
	DedupeWindow time.Duration
	// Transport replaces the HTTP transport, used by tests.
	Transport sentry.Transport
}

// Reporter sends categorised errors to Sentry.
type Reporter struct {
	hub    *sentry.Hub
	recent *cache.Cache
	log    logger.Logger
}

// skipped categories are user or control-flow errors, not defects.
var skipped = map[errors.ErrorCategory]bool{
	errors.CategoryValidation:   true,
	errors.CategoryNotFound:     true,
	errors.CategoryCancellation: true,
}

// NewReporter creates a reporter with its own Sentry client.
func NewReporter(cfg Config, log logger.Logger) (*Reporter, error) {
	if log == nil {
		log = GetLogger()
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = time.Minute
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      cfg.Environment,
		ServerName:       "",
		Release:          fmt.Sprintf("rangelink@%s", cfg.Release),
		Transport:        cfg.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Reporter{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		recent: cache.New(cfg.DedupeWindow, 2*cfg.DedupeWindow),
		log:    log,
	}, nil
}

// Install registers the reporter as an error hook.
func (r *Reporter) Install() {
	errors.AddErrorHook(r.Report)
	r.log.Info("error reporting enabled")
}

// Report captures ee unless its category is skipped or it was reported
// within the dedupe window.
func (r *Reporter) Report(ee *errors.EnhancedError) {
	if ee == nil || skipped[ee.Category] {
		return
	}
	key := ee.GetComponent() + "|" + string(ee.Category) + "|" + ee.Error()
	if err := r.recent.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}

	event := sentry.NewEvent()
	event.Level = levelFor(ee)
	event.Message = fmt.Sprintf("%s: %s", ee.GetComponent(), ee.GetCategory())
	event.Exception = []sentry.Exception{{
		Type:  fmt.Sprintf("%s.%s", ee.GetComponent(), ee.GetCategory()),
		Value: ee.Error(),
	}}
	event.Tags = map[string]string{
		"component": ee.GetComponent(),
		"category":  ee.GetCategory(),
	}
	event.Extra = map[string]any{
		"error_type": fmt.Sprintf("%T", ee.Unwrap()),
		"component":  ee.GetComponent(),
	}
	r.hub.CaptureEvent(event)
}

// Flush waits for queued events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

func levelFor(ee *errors.EnhancedError) sentry.Level {
	switch ee.EffectivePriority() {
	case errors.PriorityCritical:
		return sentry.LevelFatal
	case errors.PriorityHigh:
		return sentry.LevelError
	case errors.PriorityLow:
		return sentry.LevelInfo
	}
	return sentry.LevelWarning
}

// applyPrivacyFilters strips host identifying data from event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
