package logger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"
)

// scoped is a module logger with accumulated fields.
type scoped struct {
	out    *slog.Logger
	module string
	level  slog.Level
	fields []Field
}

// NewSlogLogger returns a text logger writing to w, for tests and tools
// that run without a LoggingConfig. A nil tz means UTC.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if tz == nil {
		tz = time.UTC
	}
	l := toSlog(string(level))
	return &scoped{out: slog.New(newTextHandler(w, l, tz)), level: l}
}

func (s *scoped) Module(name string) Logger {
	child := *s
	if s.module != "" {
		child.module = s.module + "." + name
	} else {
		child.module = name
	}
	child.fields = slices.Clone(s.fields)
	return &child
}

func (s *scoped) With(fields ...Field) Logger {
	child := *s
	child.fields = slices.Concat(s.fields, fields)
	return &child
}

func (s *scoped) Trace(msg string, fields ...Field) { s.emit(levelTrace, msg, fields) }
func (s *scoped) Debug(msg string, fields ...Field) { s.emit(slog.LevelDebug, msg, fields) }
func (s *scoped) Info(msg string, fields ...Field)  { s.emit(slog.LevelInfo, msg, fields) }
func (s *scoped) Warn(msg string, fields ...Field)  { s.emit(slog.LevelWarn, msg, fields) }
func (s *scoped) Error(msg string, fields ...Field) { s.emit(slog.LevelError, msg, fields) }

func (s *scoped) emit(level slog.Level, msg string, fields []Field) {
	// errors are never filtered by module level
	if level < s.level && level < slog.LevelError {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(s.fields)+len(fields))
	if s.module != "" {
		attrs = append(attrs, slog.String("module", s.module))
	}
	for _, f := range s.fields {
		attrs = append(attrs, toAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}
	s.out.LogAttrs(context.Background(), level, msg, attrs...)
}

// toAttr renders floats with three decimals and durations as strings.
func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case float32:
		return slog.Float64(f.Key, round3(float64(v)))
	case float64:
		return slog.Float64(f.Key, round3(v))
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
