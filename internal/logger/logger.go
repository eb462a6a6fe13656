// Package logger is the structured logging layer of rangelink, built on
// log/slog.
//
// Components take a Logger in their constructors and otherwise fall back to
// a module logger of the process-wide CentralLogger:
//
//	log := logger.Global().Module("audiolink")
//	log.Info("frame decoded",
//	    logger.String("uid", uid),
//	    logger.Float32("temperature", t))
//
// Nested modules are joined with a dot: Module("arbiter").Module("watchdog")
// logs module=arbiter.watchdog.
package logger

import (
	"log/slog"
	"time"
)

// LogLevel names a severity in configuration files.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// levelTrace sits below slog.LevelDebug for per-frame detail.
const levelTrace = slog.Level(-8)

var slogLevels = map[LogLevel]slog.Level{
	LogLevelTrace: levelTrace,
	LogLevelDebug: slog.LevelDebug,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelError: slog.LevelError,
}

// toSlog maps a configured level, falling back to info for unknown names.
func toSlog(level string) slog.Level {
	if l, ok := slogLevels[LogLevel(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// Logger is the logging interface passed to components.
type Logger interface {
	// Module returns a child logger for a named component.
	Module(name string) Logger
	// With returns a logger that adds fields to every record.
	With(fields ...Field) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a key/value pair of a record.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field          { return Field{key, value} }
func Int(key string, value int) Field         { return Field{key, value} }
func Float32(key string, value float32) Field { return Field{key, value} }
func Float64(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field       { return Field{key, value} }
func Time(key string, value time.Time) Field  { return Field{key, value} }
func Any(key string, value any) Field         { return Field{key, value} }

// Duration renders as a rounded string such as "1.5s".
func Duration(key string, value time.Duration) Field { return Field{key, value} }

// Error always uses the key "error". A nil error logs a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}
