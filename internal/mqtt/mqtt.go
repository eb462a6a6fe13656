// Package mqtt publishes decoded probe samples, trigger crossings and audio
// arbiter state to an MQTT broker.
package mqtt

import (
	"context"
	"net/url"
	"time"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}

// Client is a broker connection. The paho backed implementation is
// returned by NewClient; tests use an in-memory fake.
type Client interface {
	Connect(ctx context.Context) error
	// Publish uses the retain flag of Config.
	Publish(ctx context.Context, topic string, payload string) error
	PublishWithRetain(ctx context.Context, topic string, payload string, retain bool) error
	IsConnected() bool
	Disconnect()
}

// Config describes the broker connection.
type Config struct {
	Broker   string // tcp://, ssl://, ws:// or wss:// URL
	ClientID string // empty generates rangelink-<uuid>
	Username string
	Password string
	Retain   bool

	// ReconnectCooldown is the minimum time between Connect calls.
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	// DisconnectTimeout bounds the wait for in-flight messages.
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a local broker with conservative timeouts.
func DefaultConfig() Config {
	return Config{
		Broker:            "tcp://localhost:1883",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// brokerURL parses and checks the broker address.
func (c Config) brokerURL() (*url.URL, error) {
	u, err := url.Parse(c.Broker)
	if err == nil && (u.Scheme == "" || u.Host == "") {
		err = errors.NewStd("broker URL needs a scheme and host")
	}
	if err != nil {
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("broker", c.Broker).
			Build()
	}
	return u, nil
}
